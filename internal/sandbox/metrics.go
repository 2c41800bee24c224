/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package sandbox

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
	sandboxOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annbench_sandbox_outcomes_total",
			Help: "Sandbox runs by outcome",
		},
		[]string{"outcome"},
	)
	sandboxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annbench_sandbox_duration_seconds",
			Help:    "Wall-clock time from sandbox creation to teardown",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		},
	)
	teardownFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "annbench_sandbox_teardown_failures_total",
			Help: "Sandboxes that could not be removed",
		},
	)
)

var tracer = otel.Tracer("hortator.ai/annbench/sandbox")

func init() {
	metrics.Registry.MustRegister(sandboxOutcomesTotal, sandboxDuration, teardownFailuresTotal)
}

// emitSandboxEvent records a lifecycle transition on the current span.
func emitSandboxEvent(ctx context.Context, phase v1alpha1.SandboxPhase, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("annbench.sandbox.phase", string(phase)))
	trace.SpanFromContext(ctx).AddEvent("annbench.sandbox."+string(phase), trace.WithAttributes(attrs...))
}
