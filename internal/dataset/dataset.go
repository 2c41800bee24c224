/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package dataset loads benchmark datasets: a training set, a query set and
// the metric the neighbors are defined under.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/internal/codec"
)

// ErrDatasetNotFound is returned when a dataset is neither on disk nor
// obtainable from the configured fetcher.
var ErrDatasetNotFound = errors.New("dataset not found")

// Dataset is read-only once loaded.
type Dataset struct {
	Name     string      `json:"name"`
	Distance string      `json:"distance"`
	Train    [][]float32 `json:"train"`
	Test     [][]float32 `json:"test"`
}

// Dimension returns the vector dimension, or 0 for an empty dataset.
func (d *Dataset) Dimension() int {
	if len(d.Train) == 0 {
		return 0
	}
	return len(d.Train[0])
}

// Validate checks the dataset is usable for a run.
func (d *Dataset) Validate() error {
	if d.Distance == "" {
		return fmt.Errorf("dataset %s: missing distance metric", d.Name)
	}
	if len(d.Train) == 0 {
		return fmt.Errorf("dataset %s: empty training set", d.Name)
	}
	if len(d.Test) == 0 {
		return fmt.Errorf("dataset %s: empty query set", d.Name)
	}
	dim := d.Dimension()
	if dim == 0 {
		return fmt.Errorf("dataset %s: zero-dimensional vectors", d.Name)
	}
	for i, v := range d.Train {
		if len(v) != dim {
			return fmt.Errorf("dataset %s: training vector %d has dimension %d, want %d", d.Name, i, len(v), dim)
		}
	}
	for i, v := range d.Test {
		if len(v) != dim {
			return fmt.Errorf("dataset %s: query %d has dimension %d, want %d", d.Name, i, len(v), dim)
		}
	}
	return nil
}

// Loader provides datasets by name.
type Loader interface {
	Get(ctx context.Context, name string) (*Dataset, error)
}

// Fetcher downloads a missing dataset file to dst.
type Fetcher interface {
	Fetch(ctx context.Context, name, dst string) error
}

// FileLoader reads <Dir>/<name>.json.zst, fetching it first when missing and
// a Fetcher is configured. Names of the form random-<size>-<dim>-<metric>
// are generated instead of read.
type FileLoader struct {
	Dir     string
	Fetcher Fetcher
}

// Path returns where the dataset file for name lives.
func (l *FileLoader) Path(name string) string {
	return filepath.Join(l.Dir, name+codec.Ext)
}

// Get loads the named dataset.
func (l *FileLoader) Get(ctx context.Context, name string) (*Dataset, error) {
	logger := log.FromContext(ctx).WithValues("dataset", name)

	if IsSynthetic(name) {
		logger.V(1).Info("Generating synthetic dataset")
		return Synthetic(name)
	}

	path := l.Path(name)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if l.Fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, path)
		}
		logger.Info("Dataset not on disk, fetching", "path", path)
		if err := l.Fetcher.Fetch(ctx, name, path); err != nil {
			return nil, fmt.Errorf("fetching dataset %s: %w", name, err)
		}
	}

	ds := &Dataset{}
	if err := codec.ReadFile(path, ds); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", name, err)
	}
	if ds.Name == "" {
		ds.Name = name
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// Save writes ds under dir in the format FileLoader reads.
func Save(dir string, ds *Dataset) error {
	return codec.WriteFile(filepath.Join(dir, ds.Name+codec.Ext), ds)
}
