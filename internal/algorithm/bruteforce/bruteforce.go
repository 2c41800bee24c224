/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package bruteforce is an exact linear-scan adapter. It implements every
// optional capability and serves as the reference point other algorithms
// are compared against.
package bruteforce

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/distance"
)

const (
	Module      = "bruteforce"
	Constructor = "BruteForce"
)

func init() {
	algorithm.Register(Module, Constructor, New)
}

// BruteForce scans every training vector for each query.
type BruteForce struct {
	metric distance.Metric
	train  [][]float32

	// prepared state
	pending  [][]float32
	n        int
	single   []int
	batchRes [][]int
}

// New builds the adapter. args[0], if present, is the metric name.
func New(args []any) (algorithm.Algorithm, error) {
	name := "euclidean"
	if len(args) > 0 {
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("bruteforce: metric argument must be a string, got %T", args[0])
		}
		name = s
	}
	m, err := distance.Lookup(name)
	if err != nil {
		return nil, err
	}
	return &BruteForce{metric: m}, nil
}

func (b *BruteForce) String() string {
	return fmt.Sprintf("BruteForce(metric=%s)", b.metric.Name)
}

// Fit keeps a reference to the training set.
func (b *BruteForce) Fit(train [][]float32) error {
	if len(train) == 0 {
		return errors.New("bruteforce: empty training set")
	}
	b.train = train
	return nil
}

// Query returns the n nearest training indices.
func (b *BruteForce) Query(v []float32, n int) ([]int, error) {
	if b.train == nil {
		return nil, errors.New("bruteforce: query before fit")
	}
	return b.nearest(v, n), nil
}

type scored struct {
	idx  int
	dist float64
}

func (b *BruteForce) nearest(v []float32, n int) []int {
	all := make([]scored, len(b.train))
	for i, t := range b.train {
		all[i] = scored{idx: i, dist: b.metric.Distance(v, t)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist == all[j].dist {
			return all[i].idx < all[j].idx
		}
		return all[i].dist < all[j].dist
	})
	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].idx
	}
	return out
}

// BatchQuery answers every vector and keeps the results for BatchResults.
func (b *BruteForce) BatchQuery(vs [][]float32, n int) error {
	if b.train == nil {
		return errors.New("bruteforce: query before fit")
	}
	b.batchRes = make([][]int, len(vs))
	for i, v := range vs {
		b.batchRes[i] = b.nearest(v, n)
	}
	return nil
}

// BatchResults returns the results of the last batch.
func (b *BruteForce) BatchResults() ([][]int, error) {
	if b.batchRes == nil {
		return nil, errors.New("bruteforce: no batch results")
	}
	return b.batchRes, nil
}

// PrepareQuery stores the query for RunPreparedQuery.
func (b *BruteForce) PrepareQuery(v []float32, n int) error {
	b.pending = [][]float32{v}
	b.n = n
	return nil
}

// RunPreparedQuery executes the stored query.
func (b *BruteForce) RunPreparedQuery() error {
	if len(b.pending) != 1 {
		return errors.New("bruteforce: no prepared query")
	}
	res, err := b.Query(b.pending[0], b.n)
	if err != nil {
		return err
	}
	b.single = res
	return nil
}

// PreparedQueryResults returns the last prepared query's neighbors.
func (b *BruteForce) PreparedQueryResults() ([]int, error) {
	return b.single, nil
}

// PrepareBatchQuery stores the batch for RunBatchQuery.
func (b *BruteForce) PrepareBatchQuery(vs [][]float32, n int) error {
	b.pending = vs
	b.n = n
	return nil
}

// RunBatchQuery executes the stored batch.
func (b *BruteForce) RunBatchQuery() error {
	return b.BatchQuery(b.pending, b.n)
}

// MemoryUsage reports live heap bytes.
func (b *BruteForce) MemoryUsage() int64 {
	return algorithm.HeapInUse()
}

// Additional reports the number of distance computations per query.
func (b *BruteForce) Additional() map[string]any {
	return map[string]any{"dist_comps": len(b.train)}
}

// Done drops the training set reference.
func (b *BruteForce) Done() error {
	b.train = nil
	b.pending = nil
	b.single = nil
	b.batchRes = nil
	return nil
}
