/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package runner

import (
	"context"
	"time"

	"github.com/hortator-ai/annbench/internal/dataset"
	"github.com/hortator-ai/annbench/internal/results"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// fakeAlgo answers every query of repetition r with answers[r] and moves the
// clock forward by delays[r] while doing so.
type fakeAlgo struct {
	clock   *fakeClock
	testN   int
	delays  []time.Duration
	answers [][]int
	extra   map[string]any
	fitErr  error

	queries int
	fitted  [][]float32
	done    int
}

func (f *fakeAlgo) String() string { return "fake" }

func (f *fakeAlgo) Fit(train [][]float32) error {
	f.fitted = train
	return f.fitErr
}

func (f *fakeAlgo) Query(_ []float32, _ int) ([]int, error) {
	r := 0
	if f.testN > 0 {
		r = f.queries / f.testN
	}
	f.queries++
	if f.clock != nil && r < len(f.delays) {
		f.clock.advance(f.delays[r])
	}
	if r < len(f.answers) {
		return f.answers[r], nil
	}
	return []int{0}, nil
}

func (f *fakeAlgo) MemoryUsage() int64 { return 0 }

func (f *fakeAlgo) Additional() map[string]any { return f.extra }

func (f *fakeAlgo) Done() error {
	f.done++
	return nil
}

// argsAlgo also accepts query arguments.
type argsAlgo struct {
	*fakeAlgo
	applied [][]any
}

func (a *argsAlgo) SetQueryArguments(args ...any) error {
	a.applied = append(a.applied, args)
	return nil
}

// verboseAlgo can report per-query diagnostics.
type verboseAlgo struct {
	*fakeAlgo
}

func (v *verboseAlgo) QueryVerbose(q []float32, n int) ([]int, map[string]any, error) {
	ids, err := v.Query(q, n)
	return ids, map[string]any{"visited": 1}, err
}

// preparedAlgo spends a long time preparing and a short time running.
type preparedAlgo struct {
	*fakeAlgo
	prepareCost time.Duration
	runCost     time.Duration
	queued      int
	last        []int
}

func (p *preparedAlgo) PrepareQuery(_ []float32, _ int) error {
	p.clock.advance(p.prepareCost)
	p.queued++
	return nil
}

func (p *preparedAlgo) RunPreparedQuery() error {
	p.clock.advance(p.runCost)
	p.last = []int{0}
	return nil
}

func (p *preparedAlgo) PreparedQueryResults() ([]int, error) { return p.last, nil }

// batchAlgo answers a whole batch in one timed call.
type batchAlgo struct {
	*fakeAlgo
	cost time.Duration
	res  [][]int
}

func (b *batchAlgo) BatchQuery(vs [][]float32, _ int) error {
	b.clock.advance(b.cost)
	b.res = make([][]int, len(vs))
	for i := range vs {
		b.res[i] = []int{0}
	}
	return nil
}

func (b *batchAlgo) BatchResults() ([][]int, error) { return b.res, nil }

// preparedBatchAlgo prepares the whole batch up front and runs it later.
type preparedBatchAlgo struct {
	*batchAlgo
	prepareCost time.Duration
	runCost     time.Duration
	pending     [][]float32
	plainBatch  int
}

func (p *preparedBatchAlgo) BatchQuery(vs [][]float32, n int) error {
	p.plainBatch++
	return p.batchAlgo.BatchQuery(vs, n)
}

func (p *preparedBatchAlgo) PrepareBatchQuery(vs [][]float32, _ int) error {
	p.clock.advance(p.prepareCost)
	p.pending = vs
	return nil
}

func (p *preparedBatchAlgo) RunBatchQuery() error {
	p.clock.advance(p.runCost)
	p.res = make([][]int, len(p.pending))
	for i := range p.pending {
		p.res[i] = []int{0}
	}
	return nil
}

type memLoader struct {
	ds    *dataset.Dataset
	calls int
}

func (l *memLoader) Get(_ context.Context, name string) (*dataset.Dataset, error) {
	l.calls++
	if l.ds == nil || l.ds.Name != name {
		return nil, dataset.ErrDatasetNotFound
	}
	return l.ds, nil
}

type memStore struct {
	records []*results.Record
}

func (s *memStore) Put(_ context.Context, rec *results.Record) error {
	s.records = append(s.records, rec)
	return nil
}

func tinyDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Name:     "tiny",
		Distance: "euclidean",
		Train:    [][]float32{{0, 0}, {10, 10}},
		Test:     [][]float32{{0, 1}},
	}
}
