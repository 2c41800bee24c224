/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package v1alpha1

import (
	"fmt"
	"sort"
	"time"
)

// AlgorithmDefinition identifies one algorithm variant to benchmark.
type AlgorithmDefinition struct {
	// Algorithm is the display name (e.g. "bruteforce", "hnswlib").
	Algorithm string `json:"algorithm" yaml:"algorithm"`

	// DockerTag is the image the sandbox runs the orchestrator in.
	// +optional
	DockerTag string `json:"dockerTag,omitempty" yaml:"docker-tag,omitempty"`

	// Module and Constructor select the adapter factory in the algorithm registry.
	Module      string `json:"module" yaml:"module"`
	Constructor string `json:"constructor" yaml:"constructor"`

	// Arguments are passed to the constructor.
	// +optional
	Arguments []any `json:"arguments,omitempty" yaml:"arguments,omitempty"`

	// QueryArgumentGroups are swept in order at query time.
	// +optional
	QueryArgumentGroups [][]any `json:"queryArgumentGroups,omitempty" yaml:"query-argument-groups,omitempty"`

	// Disabled definitions are skipped by the sandbox command.
	// +optional
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// HasQueryArguments reports whether any declared group is non-empty.
func (d *AlgorithmDefinition) HasQueryArguments() bool {
	for _, g := range d.QueryArgumentGroups {
		if len(g) > 0 {
			return true
		}
	}
	return false
}

// Groups returns the query-argument groups to sweep. A definition without
// groups still runs once, with a single empty group.
func (d *AlgorithmDefinition) Groups() [][]any {
	if len(d.QueryArgumentGroups) == 0 {
		return [][]any{{}}
	}
	return d.QueryArgumentGroups
}

// String renders module.constructor(args) for error messages.
func (d *AlgorithmDefinition) String() string {
	return fmt.Sprintf("%s.%s(%v)", d.Module, d.Constructor, d.Arguments)
}

// AlgorithmName returns the name results are stored under.
func AlgorithmName(name string, batch bool) string {
	if batch {
		return name + "-batch"
	}
	return name
}

// Neighbor is a returned neighbor index and its true distance to the query.
type Neighbor struct {
	Index    int     `json:"index"`
	Distance float64 `json:"distance"`
}

// QueryResult is the outcome of one query: elapsed time and its neighbors.
type QueryResult struct {
	Elapsed   time.Duration `json:"elapsed"`
	Neighbors []Neighbor    `json:"neighbors"`
}

// RunDescriptor holds the measurements for one query-argument group.
type RunDescriptor struct {
	BatchMode      bool
	BestSearchTime float64 // seconds per query, best of RunCount
	Candidates     float64 // average candidates per query
	ExpectExtra    bool    // adapter reports per-query diagnostics
	RunCount       int
	Distance       string
	Name           string
	Count          int
	BuildTime      float64 // seconds
	IndexSize      int64   // bytes
	Algo           string
	Dataset        string

	// Extra holds adapter-reported metrics. Keys colliding with the
	// fields above are ignored.
	Extra map[string]any
}

// Descriptor attribute keys.
const (
	AttrBatchMode      = "batch_mode"
	AttrBestSearchTime = "best_search_time"
	AttrCandidates     = "candidates"
	AttrExpectExtra    = "expect_extra"
	AttrRunCount       = "run_count"
	AttrDistance       = "distance"
	AttrName           = "name"
	AttrCount          = "count"
	AttrBuildTime      = "build_time"
	AttrIndexSize      = "index_size"
	AttrAlgo           = "algo"
	AttrDataset        = "dataset"
)

// Attrs flattens the descriptor into its attribute mapping.
func (d *RunDescriptor) Attrs() map[string]any {
	attrs := make(map[string]any, 12+len(d.Extra))
	for k, v := range d.Extra {
		attrs[k] = v
	}
	attrs[AttrBatchMode] = d.BatchMode
	attrs[AttrBestSearchTime] = d.BestSearchTime
	attrs[AttrCandidates] = d.Candidates
	attrs[AttrExpectExtra] = d.ExpectExtra
	attrs[AttrRunCount] = d.RunCount
	attrs[AttrDistance] = d.Distance
	attrs[AttrName] = d.Name
	attrs[AttrCount] = d.Count
	attrs[AttrBuildTime] = d.BuildTime
	attrs[AttrIndexSize] = d.IndexSize
	attrs[AttrAlgo] = d.Algo
	attrs[AttrDataset] = d.Dataset
	return attrs
}

// Keys returns the sorted attribute keys.
func (d *RunDescriptor) Keys() []string {
	attrs := d.Attrs()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SandboxPhase is a state of one sandboxed run.
type SandboxPhase string

const (
	SandboxPhaseCreated        SandboxPhase = "Created"
	SandboxPhaseRunning        SandboxPhase = "Running"
	SandboxPhaseCompletedOK    SandboxPhase = "CompletedOK"
	SandboxPhaseCompletedError SandboxPhase = "CompletedError"
	SandboxPhaseTimedOut       SandboxPhase = "TimedOut"
	SandboxPhaseWaitException  SandboxPhase = "WaitException"
	SandboxPhaseTornDown       SandboxPhase = "TornDown"
)

// IsOutcome reports whether the phase is one of the wait outcomes.
func (p SandboxPhase) IsOutcome() bool {
	switch p {
	case SandboxPhaseCompletedOK, SandboxPhaseCompletedError,
		SandboxPhaseTimedOut, SandboxPhaseWaitException:
		return true
	}
	return false
}
