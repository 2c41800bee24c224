/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package definitions reads the YAML file listing the algorithm variants to
// benchmark.
package definitions

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hortator-ai/annbench/api/v1alpha1"
)

// File is the on-disk layout:
//
//	image: annbench:latest
//	algorithms:
//	  - algorithm: bruteforce
//	    module: bruteforce
//	    constructor: BruteForce
//	    arguments: [euclidean]
//	    query-argument-groups: [[10], [20]]
type File struct {
	// Image is the default docker tag for definitions without one.
	Image      string                         `yaml:"image,omitempty"`
	Algorithms []v1alpha1.AlgorithmDefinition `yaml:"algorithms"`
}

// Load reads and validates a definitions file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening definitions: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode parses definitions strictly; unknown keys are an error.
func Decode(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	file := &File{}
	if err := dec.Decode(file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("definitions file is empty")
		}
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}
	for i := range file.Algorithms {
		def := &file.Algorithms[i]
		if def.DockerTag == "" {
			def.DockerTag = file.Image
		}
		if err := Validate(def); err != nil {
			return nil, fmt.Errorf("definition %d: %w", i, err)
		}
	}
	return file, nil
}

// Validate checks the fields every definition needs.
func Validate(def *v1alpha1.AlgorithmDefinition) error {
	switch {
	case def.Algorithm == "":
		return errors.New("algorithm name is required")
	case def.Module == "":
		return fmt.Errorf("%s: module is required", def.Algorithm)
	case def.Constructor == "":
		return fmt.Errorf("%s: constructor is required", def.Algorithm)
	}
	return nil
}

// Select returns the enabled definitions, restricted to the named
// algorithm when name is non-empty.
func (f *File) Select(name string) []v1alpha1.AlgorithmDefinition {
	var out []v1alpha1.AlgorithmDefinition
	for _, def := range f.Algorithms {
		if def.Disabled {
			continue
		}
		if name != "" && def.Algorithm != name {
			continue
		}
		out = append(out, def)
	}
	return out
}
