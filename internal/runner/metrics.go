/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package runner

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/hortator-ai/annbench/api/v1alpha1"
)

// Prometheus metrics
var (
	bestSearchSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "annbench_best_search_seconds",
			Help: "Best (minimum over repetitions) average search time per query",
		},
		[]string{"algorithm", "dataset"},
	)
	buildSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "annbench_build_seconds",
			Help: "Time spent fitting the index",
		},
		[]string{"algorithm", "dataset"},
	)
	indexSizeBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "annbench_index_size_bytes",
			Help: "Adapter-reported memory delta across fit",
		},
		[]string{"algorithm", "dataset"},
	)
	queryGroupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annbench_query_groups_total",
			Help: "Query-argument groups measured and persisted",
		},
		[]string{"algorithm", "dataset"},
	)
	candidateOverflowTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annbench_candidate_overflow_total",
			Help: "Queries that returned more candidates than requested",
		},
		[]string{"algorithm"},
	)
)

var tracer = otel.Tracer("hortator.ai/annbench/runner")

func init() {
	metrics.Registry.MustRegister(bestSearchSeconds, buildSeconds, indexSizeBytes, queryGroupsTotal, candidateOverflowTotal)
}

func runAttrs(def *v1alpha1.AlgorithmDefinition, ds string, count int, batch bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("annbench.algorithm", def.Algorithm),
		attribute.String("annbench.module", def.Module),
		attribute.String("annbench.constructor", def.Constructor),
		attribute.String("annbench.dataset", ds),
		attribute.Int("annbench.count", count),
		attribute.Bool("annbench.batch", batch),
	}
}

// emitRunEvent records a named event on the current span.
func emitRunEvent(ctx context.Context, eventName string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(eventName, trace.WithAttributes(attrs...))
}
