/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package dataset

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/hortator-ai/annbench/internal/distance"
)

// syntheticSizes maps the size token of a random-* name to its point count.
var syntheticSizes = map[string]int{
	"xxs": 1000,
	"xs":  10000,
	"s":   100000,
}

// IsSynthetic reports whether name refers to a generated dataset.
func IsSynthetic(name string) bool {
	return strings.HasPrefix(name, "random-")
}

// Synthetic generates random-<size>-<dim>-<metric> deterministically: the
// same name always yields the same vectors. 10% of the points become queries.
func Synthetic(name string) (*Dataset, error) {
	parts := strings.Split(name, "-")
	if len(parts) != 4 || parts[0] != "random" {
		return nil, fmt.Errorf("%w: %s (want random-<size>-<dim>-<metric>)", ErrDatasetNotFound, name)
	}
	n, ok := syntheticSizes[parts[1]]
	if !ok {
		var err error
		if n, err = strconv.Atoi(parts[1]); err != nil || n < 10 {
			return nil, fmt.Errorf("invalid synthetic size %q", parts[1])
		}
	}
	dim, err := strconv.Atoi(parts[2])
	if err != nil || dim <= 0 {
		return nil, fmt.Errorf("invalid synthetic dimension %q", parts[2])
	}
	if _, err := distance.Lookup(parts[3]); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	rng := rand.New(rand.NewPCG(h.Sum64(), 0x9e3779b97f4a7c15))

	binary := parts[3] == "hamming" || parts[3] == "jaccard"
	points := make([][]float32, n)
	for i := range points {
		v := make([]float32, dim)
		for j := range v {
			if binary {
				if rng.IntN(2) == 1 {
					v[j] = 1
				}
			} else {
				v[j] = float32(rng.NormFloat64())
			}
		}
		points[i] = v
	}

	nTest := n / 10
	return &Dataset{
		Name:     name,
		Distance: parts[3],
		Train:    points[:n-nTest],
		Test:     points[n-nTest:],
	}, nil
}
