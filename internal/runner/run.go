/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package runner measures one algorithm definition against one dataset:
// it builds the index once, sweeps the query-argument groups and persists a
// record per group.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/dataset"
	"github.com/hortator-ai/annbench/internal/distance"
	"github.com/hortator-ai/annbench/internal/results"
)

// ErrMissingQueryArguments is returned when a definition carries
// query-argument groups but the adapter cannot accept them.
var ErrMissingQueryArguments = errors.New("algorithm does not accept query arguments")

// Runner wires together adapter construction, dataset loading, the query
// engine and result persistence.
type Runner struct {
	Registry *algorithm.Registry
	Datasets dataset.Loader
	Store    results.Store
	Engine   *Engine
}

// Request names one unit of work.
type Request struct {
	Definition *v1alpha1.AlgorithmDefinition
	Dataset    string
	Count      int
	RunCount   int
	Batch      bool
}

func (r *Runner) registry() *algorithm.Registry {
	if r.Registry == nil {
		return algorithm.Default
	}
	return r.Registry
}

// Run executes req. The adapter's Done is called exactly once on every path
// after construction succeeds.
func (r *Runner) Run(ctx context.Context, req Request) (err error) {
	def := req.Definition
	logger := log.FromContext(ctx).WithValues(
		"algorithm", def.Algorithm,
		"dataset", req.Dataset,
		"count", req.Count,
		"batch", req.Batch,
	)
	ctx = log.IntoContext(ctx, logger)

	ctx, span := tracer.Start(ctx, "annbench.run")
	span.SetAttributes(runAttrs(def, req.Dataset, req.Count, req.Batch)...)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if req.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", req.Count)
	}
	if req.RunCount < 1 {
		return fmt.Errorf("run count must be at least 1, got %d", req.RunCount)
	}

	a, err := r.registry().Instantiate(def)
	if err != nil {
		return err
	}
	h := algorithm.Resolve(a)

	defer func() {
		if doneErr := h.Done(); doneErr != nil {
			if err == nil {
				err = fmt.Errorf("releasing %s: %w", h.Name(), doneErr)
			} else {
				logger.Error(doneErr, "Failed to release algorithm")
			}
		}
	}()

	if def.HasQueryArguments() && !h.Capabilities().QueryArguments {
		return fmt.Errorf("%w: %s has %d query-argument groups", ErrMissingQueryArguments, h.Name(), len(def.QueryArgumentGroups))
	}

	ds, err := r.Datasets.Get(ctx, req.Dataset)
	if err != nil {
		return fmt.Errorf("loading dataset %s: %w", req.Dataset, err)
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	metric, err := distance.Lookup(ds.Distance)
	if err != nil {
		return fmt.Errorf("dataset %s: %w", req.Dataset, err)
	}
	train := metric.Transform(cloneVectors(ds.Train))
	test := metric.Transform(cloneVectors(ds.Test))
	logger.Info("Got a train set", "size", len(train), "dimension", ds.Dimension())
	logger.Info("Got queries", "size", len(test))

	before := h.MemoryUsage()
	start := time.Now()
	if err := h.Fit(train); err != nil {
		return fmt.Errorf("fitting %s: %w", h.Name(), err)
	}
	buildTime := time.Since(start).Seconds()
	indexSize := h.MemoryUsage() - before
	logger.Info("Built index", "seconds", buildTime, "indexSizeKB", indexSize/1024)
	emitRunEvent(ctx, "annbench.index.built",
		attribute.Float64("annbench.build_seconds", buildTime),
		attribute.Int64("annbench.index_size", indexSize),
	)

	algo := v1alpha1.AlgorithmName(def.Algorithm, req.Batch)
	buildSeconds.WithLabelValues(algo, req.Dataset).Set(buildTime)
	indexSizeBytes.WithLabelValues(algo, req.Dataset).Set(float64(indexSize))

	groups := def.Groups()
	for pos, args := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("Running query argument group %d of %d...", pos+1, len(groups)), "args", args)
		if len(args) > 0 {
			if err := h.SetQueryArguments(args...); err != nil {
				return fmt.Errorf("setting query arguments %v: %w", args, err)
			}
		}

		desc, res, err := r.Engine.RunIndividualQuery(ctx, h, Workload{
			Train:    train,
			Test:     test,
			Metric:   metric,
			Count:    req.Count,
			RunCount: req.RunCount,
			Batch:    req.Batch,
		})
		if err != nil {
			return fmt.Errorf("query argument group %v: %w", args, err)
		}
		desc.BuildTime = buildTime
		desc.IndexSize = indexSize
		desc.Algo = algo
		desc.Dataset = req.Dataset

		if err := r.Store.Put(ctx, results.NewRecord(req.Dataset, req.Count, def, args, desc, res, req.Batch)); err != nil {
			return err
		}
		bestSearchSeconds.WithLabelValues(algo, req.Dataset).Set(desc.BestSearchTime)
		queryGroupsTotal.WithLabelValues(algo, req.Dataset).Inc()
		emitRunEvent(ctx, "annbench.group.stored",
			attribute.Int("annbench.group", pos),
			attribute.Float64("annbench.best_search_seconds", desc.BestSearchTime),
		)
	}
	return nil
}

// cloneVectors copies vs so transforms never touch the loader's data.
func cloneVectors(vs [][]float32) [][]float32 {
	out := make([][]float32, len(vs))
	for i, v := range vs {
		out[i] = append([]float32(nil), v...)
	}
	return out
}
