/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package algorithm defines the capability surface an ANN adapter exposes to
// the benchmark engine. Only Algorithm is mandatory; the other interfaces are
// optional and discovered once per run by Resolve.
package algorithm

import (
	"fmt"
)

// Algorithm is the mandatory adapter surface.
type Algorithm interface {
	// Fit builds the index over the training vectors.
	Fit(train [][]float32) error

	// Query returns the indices of up to n neighbors of v.
	Query(v []float32, n int) ([]int, error)

	// MemoryUsage reports the adapter's current memory footprint in bytes.
	MemoryUsage() int64

	// Additional returns extra metrics to attach to each run descriptor.
	Additional() map[string]any

	// Done releases the index.
	Done() error
}

// BatchQuerier answers the whole test set in one call.
type BatchQuerier interface {
	BatchQuery(vs [][]float32, n int) error
	BatchResults() ([][]int, error)
}

// PreparedQuerier separates untimed preparation from timed execution.
type PreparedQuerier interface {
	PrepareQuery(v []float32, n int) error
	RunPreparedQuery() error
	PreparedQueryResults() ([]int, error)
}

// PreparedBatchQuerier is the batch flavor of PreparedQuerier. Results are
// read through BatchQuerier.BatchResults.
type PreparedBatchQuerier interface {
	BatchQuerier
	PrepareBatchQuery(vs [][]float32, n int) error
	RunBatchQuery() error
}

// QueryArgumentSetter applies one query-argument group.
type QueryArgumentSetter interface {
	SetQueryArguments(args ...any) error
}

// VerboseQuerier returns per-query diagnostics next to the neighbors.
// Adapters implementing it produce records flagged with expect_extra.
type VerboseQuerier interface {
	QueryVerbose(v []float32, n int) ([]int, map[string]any, error)
}

// PreparedQuerySupporter lets an adapter that implements the prepared
// interfaces opt out of them at runtime.
type PreparedQuerySupporter interface {
	SupportsPreparedQueries() bool
}

// Capabilities is the result of probing an adapter.
type Capabilities struct {
	Batch          bool
	Prepared       bool
	PreparedBatch  bool
	QueryArguments bool
	Verbose        bool
}

// Handle wraps an adapter with its optional capabilities resolved.
type Handle struct {
	Algorithm

	caps          Capabilities
	batch         BatchQuerier
	prepared      PreparedQuerier
	preparedBatch PreparedBatchQuerier
	args          QueryArgumentSetter
}

// Resolve probes a once for its optional capabilities.
func Resolve(a Algorithm) *Handle {
	h := &Handle{Algorithm: a}

	preparedAllowed := true
	if s, ok := a.(PreparedQuerySupporter); ok {
		preparedAllowed = s.SupportsPreparedQueries()
	}

	if b, ok := a.(BatchQuerier); ok {
		h.batch = b
		h.caps.Batch = true
	}
	if p, ok := a.(PreparedQuerier); ok && preparedAllowed {
		h.prepared = p
		h.caps.Prepared = true
	}
	if pb, ok := a.(PreparedBatchQuerier); ok && preparedAllowed {
		h.preparedBatch = pb
		h.caps.PreparedBatch = true
	}
	if _, ok := a.(VerboseQuerier); ok {
		h.caps.Verbose = true
	}
	if s, ok := a.(QueryArgumentSetter); ok {
		h.args = s
		h.caps.QueryArguments = true
	}
	return h
}

// Capabilities returns the probed capabilities.
func (h *Handle) Capabilities() Capabilities { return h.caps }

// Batch returns the batch capability, or nil.
func (h *Handle) Batch() BatchQuerier { return h.batch }

// Prepared returns the prepared single-query capability, or nil.
func (h *Handle) Prepared() PreparedQuerier { return h.prepared }

// PreparedBatch returns the prepared batch capability, or nil.
func (h *Handle) PreparedBatch() PreparedBatchQuerier { return h.preparedBatch }

// SetQueryArguments applies args through the adapter.
func (h *Handle) SetQueryArguments(args ...any) error {
	if h.args == nil {
		return fmt.Errorf("algorithm %s does not accept query arguments", h.Name())
	}
	return h.args.SetQueryArguments(args...)
}

// Name is the adapter's display name: its String() if it has one,
// otherwise its Go type.
func (h *Handle) Name() string {
	if s, ok := h.Algorithm.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", h.Algorithm)
}
