/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package algorithm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hortator-ai/annbench/api/v1alpha1"
)

// ErrUnknownAlgorithm is returned when no factory matches a definition.
var ErrUnknownAlgorithm = errors.New("unknown algorithm")

// Factory constructs an adapter from a definition's constructor arguments.
type Factory func(args []any) (Algorithm, error)

// Registry maps module/constructor pairs to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Default is the process-wide registry adapters register into.
var Default = NewRegistry()

// Register adds a factory to the default registry.
func Register(module, constructor string, f Factory) {
	Default.Register(module, constructor, f)
}

func registryKey(module, constructor string) string {
	return module + "." + constructor
}

// Register adds a factory. Registering the same pair twice replaces it.
func (r *Registry) Register(module, constructor string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[registryKey(module, constructor)] = f
}

// Instantiate constructs the adapter for def.
func (r *Registry) Instantiate(def *v1alpha1.AlgorithmDefinition) (Algorithm, error) {
	r.mu.RLock()
	f, ok := r.factories[registryKey(def.Module, def.Constructor)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownAlgorithm, def.Module, def.Constructor)
	}
	a, err := f(def.Arguments)
	if err != nil {
		return nil, fmt.Errorf("constructing %s: %w", def, err)
	}
	return a, nil
}

// Names lists registered module.constructor keys.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for k := range r.factories {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
