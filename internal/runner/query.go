/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package runner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/distance"
)

const defaultProgressEvery = 1000

// queryMode is the code path chosen once per run.
type queryMode int

const (
	modeSingle queryMode = iota
	modePrepared
	modeBatch
	modePreparedBatch
)

func (m queryMode) String() string {
	switch m {
	case modePrepared:
		return "prepared"
	case modeBatch:
		return "batch"
	case modePreparedBatch:
		return "prepared-batch"
	default:
		return "single"
	}
}

func selectMode(caps algorithm.Capabilities, batch bool) queryMode {
	switch {
	case batch && caps.PreparedBatch:
		return modePreparedBatch
	case batch:
		return modeBatch
	case caps.Prepared:
		return modePrepared
	default:
		return modeSingle
	}
}

// Engine times query workloads against a fitted adapter. It is strictly
// sequential; nothing runs concurrently with a timed interval.
type Engine struct {
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	// ProgressEvery is how many single queries pass between progress
	// notes; 0 means 1000.
	ProgressEvery int
}

func (e *Engine) now() time.Time {
	if e == nil || e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Engine) progressEvery() int {
	if e == nil || e.ProgressEvery <= 0 {
		return defaultProgressEvery
	}
	return e.ProgressEvery
}

// Workload is the input of RunIndividualQuery.
type Workload struct {
	Train    [][]float32
	Test     [][]float32
	Metric   distance.Metric
	Count    int
	RunCount int
	Batch    bool
}

// rawResult is a query's elapsed time and the neighbor indices as returned
// by the adapter, before distances are joined in.
type rawResult struct {
	elapsed time.Duration
	ids     []int
}

// RunIndividualQuery runs the test workload RunCount times and returns the
// descriptor plus the per-query results of the fastest repetition.
func (e *Engine) RunIndividualQuery(ctx context.Context, h *algorithm.Handle, w Workload) (*v1alpha1.RunDescriptor, []v1alpha1.QueryResult, error) {
	logger := log.FromContext(ctx)

	if w.RunCount < 1 {
		return nil, nil, fmt.Errorf("run count must be at least 1, got %d", w.RunCount)
	}
	if len(w.Test) == 0 {
		return nil, nil, errors.New("empty query set")
	}

	mode := selectMode(h.Capabilities(), w.Batch)
	logger.V(1).Info("Selected query mode", "mode", mode.String())

	var (
		best           []v1alpha1.QueryResult
		bestSearchTime = math.Inf(1)
		bestCandidates float64
	)

	for run := 0; run < w.RunCount; run++ {
		logger.Info(fmt.Sprintf("Run %d/%d...", run+1, w.RunCount))

		var (
			raw []rawResult
			err error
		)
		if w.Batch {
			raw, err = e.batchQuery(h, mode, w)
		} else {
			raw, err = e.singleQueries(logger, h, mode, w)
		}
		if err != nil {
			return nil, nil, err
		}

		res, err := joinDistances(logger, h.Name(), w, raw)
		if err != nil {
			return nil, nil, err
		}

		var total time.Duration
		var candidates int
		for _, r := range res {
			total += r.Elapsed
			candidates += len(r.Neighbors)
		}
		searchTime := total.Seconds() / float64(len(w.Test))
		if searchTime < bestSearchTime || best == nil {
			bestSearchTime = searchTime
			bestCandidates = float64(candidates) / float64(len(w.Test))
			best = res
		}
	}

	desc := &v1alpha1.RunDescriptor{
		BatchMode:      w.Batch,
		BestSearchTime: bestSearchTime,
		Candidates:     bestCandidates,
		ExpectExtra:    h.Capabilities().Verbose,
		RunCount:       w.RunCount,
		Distance:       w.Metric.Name,
		Name:           h.Name(),
		Count:          w.Count,
	}
	if extra := h.Additional(); len(extra) > 0 {
		desc.Extra = make(map[string]any, len(extra))
		for k, v := range extra {
			desc.Extra[k] = v
		}
	}
	return desc, best, nil
}

// singleQueries times each test vector individually.
func (e *Engine) singleQueries(logger logr.Logger, h *algorithm.Handle, mode queryMode, w Workload) ([]rawResult, error) {
	out := make([]rawResult, 0, len(w.Test))
	every := e.progressEvery()

	for i, v := range w.Test {
		var (
			ids     []int
			elapsed time.Duration
			err     error
		)
		if mode == modePrepared {
			p := h.Prepared()
			if err = p.PrepareQuery(v, w.Count); err != nil {
				return nil, fmt.Errorf("preparing query %d: %w", i, err)
			}
			start := e.now()
			err = p.RunPreparedQuery()
			elapsed = e.now().Sub(start)
			if err != nil {
				return nil, fmt.Errorf("running prepared query %d: %w", i, err)
			}
			if ids, err = p.PreparedQueryResults(); err != nil {
				return nil, fmt.Errorf("fetching prepared query %d results: %w", i, err)
			}
		} else {
			start := e.now()
			ids, err = h.Query(v, w.Count)
			elapsed = e.now().Sub(start)
			if err != nil {
				return nil, fmt.Errorf("query %d: %w", i, err)
			}
		}
		out = append(out, rawResult{elapsed: elapsed, ids: ids})

		if processed := i + 1; processed%every == 0 {
			logger.Info(fmt.Sprintf("Processed %d/%d queries...", processed, len(w.Test)))
		}
	}
	return out, nil
}

// batchQuery times one call covering the whole test set. Each query is
// charged the total divided by the test-set size.
func (e *Engine) batchQuery(h *algorithm.Handle, mode queryMode, w Workload) ([]rawResult, error) {
	var (
		elapsed time.Duration
		all     [][]int
		err     error
	)

	switch {
	case mode == modePreparedBatch:
		pb := h.PreparedBatch()
		if err = pb.PrepareBatchQuery(w.Test, w.Count); err != nil {
			return nil, fmt.Errorf("preparing batch query: %w", err)
		}
		start := e.now()
		err = pb.RunBatchQuery()
		elapsed = e.now().Sub(start)
		if err != nil {
			return nil, fmt.Errorf("running batch query: %w", err)
		}
		if all, err = pb.BatchResults(); err != nil {
			return nil, fmt.Errorf("fetching batch results: %w", err)
		}
	case h.Batch() != nil:
		b := h.Batch()
		start := e.now()
		err = b.BatchQuery(w.Test, w.Count)
		elapsed = e.now().Sub(start)
		if err != nil {
			return nil, fmt.Errorf("batch query: %w", err)
		}
		if all, err = b.BatchResults(); err != nil {
			return nil, fmt.Errorf("fetching batch results: %w", err)
		}
	default:
		// No batch capability: answer the set with plain queries inside a
		// single timed interval.
		all = make([][]int, len(w.Test))
		start := e.now()
		for i, v := range w.Test {
			if all[i], err = h.Query(v, w.Count); err != nil {
				return nil, fmt.Errorf("query %d: %w", i, err)
			}
		}
		elapsed = e.now().Sub(start)
	}

	if len(all) != len(w.Test) {
		return nil, fmt.Errorf("batch returned %d result lists for %d queries", len(all), len(w.Test))
	}
	perQuery := elapsed / time.Duration(len(w.Test))
	out := make([]rawResult, len(all))
	for i, ids := range all {
		out[i] = rawResult{elapsed: perQuery, ids: ids}
	}
	return out, nil
}

// joinDistances computes the true distance of every returned neighbor and
// flags result lists longer than requested. Runs outside any timed interval.
func joinDistances(logger logr.Logger, name string, w Workload, raw []rawResult) ([]v1alpha1.QueryResult, error) {
	out := make([]v1alpha1.QueryResult, len(raw))
	for i, r := range raw {
		v := w.Test[i]
		neighbors := make([]v1alpha1.Neighbor, len(r.ids))
		for j, idx := range r.ids {
			if idx < 0 || idx >= len(w.Train) {
				return nil, fmt.Errorf("query %d: algorithm returned neighbor index %d outside training set of %d", i, idx, len(w.Train))
			}
			neighbors[j] = v1alpha1.Neighbor{Index: idx, Distance: w.Metric.Distance(v, w.Train[idx])}
		}
		if len(neighbors) > w.Count {
			logger.Info(fmt.Sprintf("warning: algorithm %s returned %d results, but count is only %d", name, len(neighbors), w.Count))
			candidateOverflowTotal.WithLabelValues(name).Inc()
		}
		out[i] = v1alpha1.QueryResult{Elapsed: r.elapsed, Neighbors: neighbors}
	}
	return out, nil
}
