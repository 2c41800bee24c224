/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package distance is the metric registry used to compute true neighbor
// distances. Each metric pairs a distance function with the transform
// applied to raw dataset vectors before they reach an algorithm.
package distance

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/blas/gonum"
)

// ErrUnknownMetric is returned by Lookup for unregistered metric ids.
var ErrUnknownMetric = errors.New("unknown distance metric")

// Func computes the distance between two vectors of equal length.
type Func func(a, b []float32) float64

// Transform rewrites a dataset in place before use.
type Transform func(vs [][]float32) [][]float32

// Metric is one registry entry.
type Metric struct {
	Name      string
	Distance  Func
	Transform Transform
}

var impl = gonum.Implementation{}

var registry = map[string]Metric{
	"euclidean": {Name: "euclidean", Distance: Euclidean, Transform: identity},
	"angular":   {Name: "angular", Distance: Angular, Transform: Normalize},
	"hamming":   {Name: "hamming", Distance: Hamming, Transform: identity},
	"jaccard":   {Name: "jaccard", Distance: Jaccard, Transform: identity},
}

// Lookup returns the metric registered under name.
func Lookup(name string) (Metric, error) {
	m, ok := registry[name]
	if !ok {
		return Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return m, nil
}

// Names lists registered metric ids in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Euclidean is the L2 distance.
func Euclidean(a, b []float32) float64 {
	n := len(a)
	if n == 0 {
		return 0
	}
	diff := make([]float32, n)
	copy(diff, a)
	impl.Saxpy(n, -1, b, 1, diff, 1)
	return float64(impl.Snrm2(n, diff, 1))
}

// Angular is the cosine distance 1 - cos(a, b). Zero vectors are at
// distance 1 from everything.
func Angular(a, b []float32) float64 {
	n := len(a)
	if n == 0 {
		return 1
	}
	na := float64(impl.Snrm2(n, a, 1))
	nb := float64(impl.Snrm2(n, b, 1))
	if na == 0 || nb == 0 {
		return 1
	}
	dot := float64(impl.Sdot(n, a, 1, b, 1))
	return 1 - dot/(na*nb)
}

// Hamming counts positions where the (binary) vectors differ.
func Hamming(a, b []float32) float64 {
	var d float64
	for i := range a {
		if (a[i] != 0) != (b[i] != 0) {
			d++
		}
	}
	return d
}

// Jaccard treats non-zero components as set members and returns
// 1 - |a∩b| / |a∪b|.
func Jaccard(a, b []float32) float64 {
	var inter, union float64
	for i := range a {
		x, y := a[i] != 0, b[i] != 0
		if x && y {
			inter++
		}
		if x || y {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return 1 - inter/union
}

// Normalize scales every vector to unit L2 norm. Zero vectors are left as is.
func Normalize(vs [][]float32) [][]float32 {
	for _, v := range vs {
		n := impl.Snrm2(len(v), v, 1)
		if n == 0 || math.IsNaN(float64(n)) {
			continue
		}
		impl.Sscal(len(v), 1/n, v, 1)
	}
	return vs
}

func identity(vs [][]float32) [][]float32 { return vs }
