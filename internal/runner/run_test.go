/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package runner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/algorithm/bruteforce"
	"github.com/hortator-ai/annbench/internal/dataset"
	"github.com/hortator-ai/annbench/internal/results"
)

func fakeDef(groups ...[]any) *v1alpha1.AlgorithmDefinition {
	return &v1alpha1.AlgorithmDefinition{
		Algorithm:           "fake",
		Module:              "fake",
		Constructor:         "Fake",
		Arguments:           []any{"euclidean"},
		QueryArgumentGroups: groups,
	}
}

func newRunner(a algorithm.Algorithm, ds *dataset.Dataset) (*Runner, *memLoader, *memStore) {
	reg := algorithm.NewRegistry()
	reg.Register("fake", "Fake", func([]any) (algorithm.Algorithm, error) { return a, nil })
	reg.Register(bruteforce.Module, bruteforce.Constructor, bruteforce.New)
	l := &memLoader{ds: ds}
	s := &memStore{}
	return &Runner{Registry: reg, Datasets: l, Store: s, Engine: &Engine{}}, l, s
}

func TestRunWithoutQueryArguments(t *testing.T) {
	f := &fakeAlgo{}
	r, _, s := newRunner(f, tinyDataset())

	err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: "tiny", Count: 1, RunCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(s.records))
	}
	rec := s.records[0]
	if len(rec.QueryArguments) != 0 {
		t.Errorf("query arguments = %v, want none", rec.QueryArguments)
	}
	if rec.Attrs[v1alpha1.AttrAlgo] != "fake" {
		t.Errorf("algo = %v, want fake", rec.Attrs[v1alpha1.AttrAlgo])
	}
	if rec.Attrs[v1alpha1.AttrDataset] != "tiny" {
		t.Errorf("dataset = %v, want tiny", rec.Attrs[v1alpha1.AttrDataset])
	}
	if rec.Attrs[v1alpha1.AttrRunCount] != 2 {
		t.Errorf("run_count = %v, want 2", rec.Attrs[v1alpha1.AttrRunCount])
	}
	for _, k := range []string{v1alpha1.AttrBuildTime, v1alpha1.AttrIndexSize, v1alpha1.AttrBestSearchTime} {
		if _, ok := rec.Attrs[k]; !ok {
			t.Errorf("missing attribute %s", k)
		}
	}
	if f.done != 1 {
		t.Errorf("Done called %d times, want 1", f.done)
	}
}

func TestRunRejectsRaggedTrainingSet(t *testing.T) {
	f := &fakeAlgo{}
	ds := tinyDataset()
	ds.Train = append(ds.Train, []float32{1})
	r, _, s := newRunner(f, ds)

	err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: "tiny", Count: 1, RunCount: 1})
	if err == nil {
		t.Fatal("expected error for a training vector of the wrong dimension")
	}
	if f.fitted != nil {
		t.Error("index was built from a malformed training set")
	}
	if len(s.records) != 0 {
		t.Errorf("stored %d records, want 0", len(s.records))
	}
	if f.done != 1 {
		t.Errorf("Done called %d times, want 1", f.done)
	}
}

func TestRunWithoutGroupsNeverSetsArguments(t *testing.T) {
	a := &argsAlgo{fakeAlgo: &fakeAlgo{}}
	r, _, s := newRunner(a, tinyDataset())

	err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: "tiny", Count: 1, RunCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(s.records) != 1 {
		t.Fatalf("stored %d records, want 1", len(s.records))
	}
	if len(a.applied) != 0 {
		t.Errorf("SetQueryArguments called with %v, want no calls", a.applied)
	}
}

func TestRunRejectsZeroRunsBeforeFit(t *testing.T) {
	f := &fakeAlgo{}
	r, l, s := newRunner(f, tinyDataset())

	err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: "tiny", Count: 1, RunCount: 0})
	if err == nil {
		t.Fatal("expected error for zero runs")
	}
	if f.fitted != nil {
		t.Error("index was built despite zero runs")
	}
	if l.calls != 0 {
		t.Errorf("dataset loaded %d times, want 0", l.calls)
	}
	if len(s.records) != 0 {
		t.Errorf("stored %d records, want 0", len(s.records))
	}
}

func TestRunAppliesGroupsInOrder(t *testing.T) {
	a := &argsAlgo{fakeAlgo: &fakeAlgo{}}
	r, _, s := newRunner(a, tinyDataset())
	groups := [][]any{{10}, {20}, {40, "x"}}

	err := r.Run(context.Background(), Request{Definition: fakeDef(groups...), Dataset: "tiny", Count: 1, RunCount: 1, Batch: true})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.applied, groups) {
		t.Errorf("applied = %v, want %v", a.applied, groups)
	}
	if len(s.records) != len(groups) {
		t.Fatalf("stored %d records, want %d", len(s.records), len(groups))
	}
	for i, rec := range s.records {
		if !reflect.DeepEqual(rec.QueryArguments, groups[i]) {
			t.Errorf("record %d query arguments = %v, want %v", i, rec.QueryArguments, groups[i])
		}
		if rec.Attrs[v1alpha1.AttrAlgo] != "fake-batch" {
			t.Errorf("record %d algo = %v, want fake-batch", i, rec.Attrs[v1alpha1.AttrAlgo])
		}
	}
	if a.done != 1 {
		t.Errorf("Done called %d times, want 1", a.done)
	}
}

func TestRunRejectsGroupsWithoutCapability(t *testing.T) {
	f := &fakeAlgo{}
	r, l, s := newRunner(f, tinyDataset())

	err := r.Run(context.Background(), Request{Definition: fakeDef([]any{1}), Dataset: "tiny", Count: 1, RunCount: 1})
	if !errors.Is(err, ErrMissingQueryArguments) {
		t.Fatalf("err = %v, want ErrMissingQueryArguments", err)
	}
	if l.calls != 0 {
		t.Errorf("dataset loaded %d times before the configuration check", l.calls)
	}
	if f.fitted != nil {
		t.Error("index was built despite configuration error")
	}
	if len(s.records) != 0 {
		t.Errorf("stored %d records, want 0", len(s.records))
	}
	if f.done != 1 {
		t.Errorf("Done called %d times, want 1", f.done)
	}
}

func TestRunReleasesOnFailure(t *testing.T) {
	tests := []struct {
		name string
		algo *fakeAlgo
		ds   string
	}{
		{name: "fit fails", algo: &fakeAlgo{fitErr: errors.New("boom")}, ds: "tiny"},
		{name: "query fails", algo: &fakeAlgo{answers: [][]int{{99}}}, ds: "tiny"},
		{name: "dataset missing", algo: &fakeAlgo{}, ds: "missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, s := newRunner(tt.algo, tinyDataset())
			err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: tt.ds, Count: 1, RunCount: 1})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.algo.done != 1 {
				t.Errorf("Done called %d times, want 1", tt.algo.done)
			}
			if len(s.records) != 0 {
				t.Errorf("stored %d records, want 0", len(s.records))
			}
		})
	}
}

func TestRunUnknownAlgorithm(t *testing.T) {
	r, _, _ := newRunner(&fakeAlgo{}, tinyDataset())
	def := fakeDef()
	def.Module = "nope"
	err := r.Run(context.Background(), Request{Definition: def, Dataset: "tiny", Count: 1, RunCount: 1})
	if !errors.Is(err, algorithm.ErrUnknownAlgorithm) {
		t.Errorf("err = %v, want ErrUnknownAlgorithm", err)
	}
}

func TestRunTransformDoesNotTouchLoadedData(t *testing.T) {
	f := &fakeAlgo{}
	ds := &dataset.Dataset{
		Name:     "ang",
		Distance: "angular",
		Train:    [][]float32{{3, 4}, {0, 2}},
		Test:     [][]float32{{6, 8}},
	}
	r, _, _ := newRunner(f, ds)

	if err := r.Run(context.Background(), Request{Definition: fakeDef(), Dataset: "ang", Count: 1, RunCount: 1}); err != nil {
		t.Fatal(err)
	}
	if ds.Train[0][0] != 3 || ds.Test[0][1] != 8 {
		t.Errorf("loaded vectors were modified: %v %v", ds.Train, ds.Test)
	}
	if got := f.fitted[0]; !approx(float64(got[0]), 0.6) || !approx(float64(got[1]), 0.8) {
		t.Errorf("fitted vector = %v, want normalized [0.6 0.8]", got)
	}
}

func TestRunKeysAreStableAcrossReruns(t *testing.T) {
	dir := t.TempDir()
	def := &v1alpha1.AlgorithmDefinition{
		Algorithm:   "bruteforce",
		Module:      bruteforce.Module,
		Constructor: bruteforce.Constructor,
		Arguments:   []any{"euclidean"},
	}

	var lists [][]string
	for i := 0; i < 2; i++ {
		r, _, _ := newRunner(&fakeAlgo{}, tinyDataset())
		store := &results.FileStore{Dir: dir}
		r.Store = store
		if err := r.Run(context.Background(), Request{Definition: def, Dataset: "tiny", Count: 1, RunCount: 1}); err != nil {
			t.Fatal(err)
		}
		keys, err := store.List("tiny", 1)
		if err != nil {
			t.Fatal(err)
		}
		lists = append(lists, keys)
	}
	if !reflect.DeepEqual(lists[0], lists[1]) || len(lists[0]) != 1 {
		t.Errorf("keys changed across reruns: %v", lists)
	}

	rec, err := (&results.FileStore{Dir: dir}).Load(lists[0][0])
	if err != nil {
		t.Fatal(err)
	}
	if n := rec.Results[0].Neighbors[0]; n.Index != 0 || n.Distance != 1.0 {
		t.Errorf("stored neighbor = %+v, want (0, 1.0)", n)
	}
}
