/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package runner

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/algorithm/bruteforce"
	"github.com/hortator-ai/annbench/internal/distance"
)

func euclidean(t *testing.T) distance.Metric {
	t.Helper()
	m, err := distance.Lookup("euclidean")
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-6
}

func TestRunIndividualQueryWorkedExample(t *testing.T) {
	bf, err := bruteforce.New([]any{"euclidean"})
	if err != nil {
		t.Fatal(err)
	}
	train := [][]float32{{0, 0}, {10, 10}}
	if err := bf.Fit(train); err != nil {
		t.Fatal(err)
	}
	h := algorithm.Resolve(bf)

	for _, batch := range []bool{false, true} {
		desc, res, err := (&Engine{}).RunIndividualQuery(context.Background(), h, Workload{
			Train:    train,
			Test:     [][]float32{{0, 1}},
			Metric:   euclidean(t),
			Count:    1,
			RunCount: 1,
			Batch:    batch,
		})
		if err != nil {
			t.Fatalf("batch=%v: %v", batch, err)
		}
		if desc.Count != 1 {
			t.Errorf("count = %d, want 1", desc.Count)
		}
		if desc.Candidates != 1.0 {
			t.Errorf("candidates = %v, want 1.0", desc.Candidates)
		}
		if desc.BatchMode != batch {
			t.Errorf("batch_mode = %v, want %v", desc.BatchMode, batch)
		}
		if desc.Distance != "euclidean" {
			t.Errorf("distance = %q, want euclidean", desc.Distance)
		}
		if len(res) != 1 || len(res[0].Neighbors) != 1 {
			t.Fatalf("results = %+v, want one neighbor", res)
		}
		if got := res[0].Neighbors[0]; got.Index != 0 || got.Distance != 1.0 {
			t.Errorf("neighbor = %+v, want (0, 1.0)", got)
		}
		if desc.Extra["dist_comps"] != 2 {
			t.Errorf("dist_comps = %v, want 2", desc.Extra["dist_comps"])
		}
	}
}

func TestBestOfRunsKeepsFastestResults(t *testing.T) {
	clock := &fakeClock{}
	f := &fakeAlgo{
		clock:   clock,
		testN:   2,
		delays:  []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond},
		answers: [][]int{{0}, {1}, {0}},
	}
	e := &Engine{Now: clock.Now}

	desc, res, err := e.RunIndividualQuery(context.Background(), algorithm.Resolve(f), Workload{
		Train:    [][]float32{{0, 0}, {10, 10}},
		Test:     [][]float32{{0, 1}, {1, 0}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(desc.BestSearchTime, 0.001) {
		t.Errorf("best_search_time = %v, want 0.001", desc.BestSearchTime)
	}
	if desc.RunCount != 3 {
		t.Errorf("run_count = %d, want 3", desc.RunCount)
	}
	for i, r := range res {
		if r.Neighbors[0].Index != 1 {
			t.Errorf("result %d came from the wrong repetition: %+v", i, r)
		}
		if r.Elapsed != time.Millisecond {
			t.Errorf("result %d elapsed = %v, want 1ms", i, r.Elapsed)
		}
	}
	if f.queries != 6 {
		t.Errorf("queries = %d, want 6", f.queries)
	}
}

func TestPreparationIsNotTimed(t *testing.T) {
	clock := &fakeClock{}
	p := &preparedAlgo{
		fakeAlgo:    &fakeAlgo{clock: clock},
		prepareCost: time.Second,
		runCost:     time.Millisecond,
	}
	h := algorithm.Resolve(p)
	if !h.Capabilities().Prepared {
		t.Fatal("expected prepared capability")
	}

	desc, _, err := (&Engine{Now: clock.Now}).RunIndividualQuery(context.Background(), h, Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{1}, {2}, {3}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(desc.BestSearchTime, 0.001) {
		t.Errorf("best_search_time = %v, want 0.001", desc.BestSearchTime)
	}
	if p.queued != 3 {
		t.Errorf("prepared %d queries, want 3", p.queued)
	}
	if p.fakeAlgo.queries != 0 {
		t.Errorf("plain Query called %d times in prepared mode", p.fakeAlgo.queries)
	}
}

func TestBatchTimeIsSpreadOverQueries(t *testing.T) {
	clock := &fakeClock{}
	b := &batchAlgo{fakeAlgo: &fakeAlgo{clock: clock}, cost: 10 * time.Millisecond}

	desc, res, err := (&Engine{Now: clock.Now}).RunIndividualQuery(context.Background(), algorithm.Resolve(b), Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{1}, {2}, {3}, {4}, {5}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
		Batch:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range res {
		if r.Elapsed != 2*time.Millisecond {
			t.Errorf("result %d elapsed = %v, want 2ms", i, r.Elapsed)
		}
	}
	if !approx(desc.BestSearchTime, 0.002) {
		t.Errorf("best_search_time = %v, want 0.002", desc.BestSearchTime)
	}
}

func TestBatchPreparationIsNotTimed(t *testing.T) {
	clock := &fakeClock{}
	p := &preparedBatchAlgo{
		batchAlgo:   &batchAlgo{fakeAlgo: &fakeAlgo{clock: clock}},
		prepareCost: time.Second,
		runCost:     4 * time.Millisecond,
	}
	h := algorithm.Resolve(p)
	if !h.Capabilities().PreparedBatch {
		t.Fatal("expected prepared batch capability")
	}

	desc, res, err := (&Engine{Now: clock.Now}).RunIndividualQuery(context.Background(), h, Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{1}, {2}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
		Batch:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !approx(desc.BestSearchTime, 0.002) {
		t.Errorf("best_search_time = %v, want 0.002", desc.BestSearchTime)
	}
	if len(res) != 2 {
		t.Fatalf("got %d results, want 2", len(res))
	}
	for i, r := range res {
		if r.Elapsed != 2*time.Millisecond {
			t.Errorf("result %d elapsed = %v, want 2ms", i, r.Elapsed)
		}
	}
	if p.plainBatch != 0 {
		t.Errorf("plain BatchQuery called %d times in prepared batch mode", p.plainBatch)
	}
}

func TestProgressIsLogged(t *testing.T) {
	var lines []string
	logger := funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{})
	ctx := log.IntoContext(context.Background(), logger)

	f := &fakeAlgo{}
	_, _, err := (&Engine{ProgressEvery: 2}).RunIndividualQuery(ctx, algorithm.Resolve(f), Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{1}, {2}, {3}, {4}, {5}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	var progress []string
	for _, l := range lines {
		if strings.Contains(l, "Processed ") {
			progress = append(progress, l)
		}
	}
	if len(progress) != 2 {
		t.Fatalf("got %d progress lines, want 2: %v", len(progress), progress)
	}
	for i, want := range []string{"Processed 2/5 queries...", "Processed 4/5 queries..."} {
		if !strings.Contains(progress[i], want) {
			t.Errorf("progress line %d = %s, want %q", i, progress[i], want)
		}
	}
}

func TestBatchWithoutCapabilityFallsBackToQuery(t *testing.T) {
	clock := &fakeClock{}
	f := &fakeAlgo{clock: clock, testN: 4, delays: []time.Duration{time.Millisecond}}

	desc, res, err := (&Engine{Now: clock.Now}).RunIndividualQuery(context.Background(), algorithm.Resolve(f), Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{1}, {2}, {3}, {4}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
		Batch:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 4 {
		t.Fatalf("got %d results, want 4", len(res))
	}
	if !approx(desc.BestSearchTime, 0.001) {
		t.Errorf("best_search_time = %v, want 0.001", desc.BestSearchTime)
	}
}

func TestOverflowIsRecorded(t *testing.T) {
	f := &fakeAlgo{answers: [][]int{{0, 1}}}
	before := testutil.ToFloat64(candidateOverflowTotal.WithLabelValues("fake"))

	desc, res, err := (&Engine{}).RunIndividualQuery(context.Background(), algorithm.Resolve(f), Workload{
		Train:    [][]float32{{0}, {1}},
		Test:     [][]float32{{0}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res[0].Neighbors) != 2 {
		t.Errorf("overflowing neighbors must be kept, got %d", len(res[0].Neighbors))
	}
	if desc.Candidates != 2 {
		t.Errorf("candidates = %v, want 2", desc.Candidates)
	}
	after := testutil.ToFloat64(candidateOverflowTotal.WithLabelValues("fake"))
	if after-before != 1 {
		t.Errorf("overflow counter moved by %v, want 1", after-before)
	}
}

func TestExtrasCannotOverrideBaseAttributes(t *testing.T) {
	f := &fakeAlgo{extra: map[string]any{v1alpha1.AttrName: "spoofed", "dist_comps": 7}}
	desc, _, err := (&Engine{}).RunIndividualQuery(context.Background(), algorithm.Resolve(f), Workload{
		Train:    [][]float32{{0}},
		Test:     [][]float32{{0}},
		Metric:   euclidean(t),
		Count:    1,
		RunCount: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	attrs := desc.Attrs()
	if attrs[v1alpha1.AttrName] != "fake" {
		t.Errorf("name = %v, want fake", attrs[v1alpha1.AttrName])
	}
	if attrs["dist_comps"] != 7 {
		t.Errorf("dist_comps = %v, want 7", attrs["dist_comps"])
	}
}

func TestExpectExtraFollowsVerboseCapability(t *testing.T) {
	tests := []struct {
		name string
		algo algorithm.Algorithm
		want bool
	}{
		{name: "plain", algo: &fakeAlgo{}, want: false},
		{name: "verbose", algo: &verboseAlgo{fakeAlgo: &fakeAlgo{}}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, _, err := (&Engine{}).RunIndividualQuery(context.Background(), algorithm.Resolve(tt.algo), Workload{
				Train:    [][]float32{{0}},
				Test:     [][]float32{{0}},
				Metric:   euclidean(t),
				Count:    1,
				RunCount: 1,
			})
			if err != nil {
				t.Fatal(err)
			}
			if got := desc.Attrs()[v1alpha1.AttrExpectExtra]; got != tt.want {
				t.Errorf("expect_extra = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunIndividualQueryErrors(t *testing.T) {
	tests := []struct {
		name string
		w    Workload
		algo *fakeAlgo
	}{
		{
			name: "zero runs",
			w:    Workload{Train: [][]float32{{0}}, Test: [][]float32{{0}}, Count: 1},
			algo: &fakeAlgo{},
		},
		{
			name: "empty test set",
			w:    Workload{Train: [][]float32{{0}}, Count: 1, RunCount: 1},
			algo: &fakeAlgo{},
		},
		{
			name: "index out of range",
			w:    Workload{Train: [][]float32{{0}}, Test: [][]float32{{0}}, Count: 1, RunCount: 1},
			algo: &fakeAlgo{answers: [][]int{{5}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.w.Metric = euclidean(t)
			if _, _, err := (&Engine{}).RunIndividualQuery(context.Background(), algorithm.Resolve(tt.algo), tt.w); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		caps  algorithm.Capabilities
		batch bool
		want  queryMode
	}{
		{algorithm.Capabilities{}, false, modeSingle},
		{algorithm.Capabilities{Prepared: true}, false, modePrepared},
		{algorithm.Capabilities{Batch: true}, true, modeBatch},
		{algorithm.Capabilities{Batch: true, PreparedBatch: true}, true, modePreparedBatch},
		{algorithm.Capabilities{Prepared: true}, true, modeBatch},
		{algorithm.Capabilities{Batch: true, PreparedBatch: true}, false, modeSingle},
	}
	for _, tt := range tests {
		if got := selectMode(tt.caps, tt.batch); got != tt.want {
			t.Errorf("selectMode(%+v, %v) = %s, want %s", tt.caps, tt.batch, got, tt.want)
		}
	}
}
