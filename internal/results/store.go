/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package results persists run descriptors and per-query results so runs of
// different algorithms can be compared later.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/codec"
)

// ErrResultNotFound is returned by Load for missing result files.
var ErrResultNotFound = errors.New("result not found")

// Record is everything stored for one query-argument group.
type Record struct {
	Dataset        string                       `json:"dataset"`
	Count          int                          `json:"count"`
	Definition     v1alpha1.AlgorithmDefinition `json:"definition"`
	QueryArguments []any                        `json:"queryArguments"`
	Batch          bool                         `json:"batch"`
	Attrs          map[string]any               `json:"attrs"`
	Results        []v1alpha1.QueryResult       `json:"results"`
}

// NewRecord assembles a record from a finished group.
func NewRecord(ds string, count int, def *v1alpha1.AlgorithmDefinition, queryArgs []any,
	desc *v1alpha1.RunDescriptor, res []v1alpha1.QueryResult, batch bool) *Record {
	return &Record{
		Dataset:        ds,
		Count:          count,
		Definition:     *def,
		QueryArguments: queryArgs,
		Batch:          batch,
		Attrs:          desc.Attrs(),
		Results:        res,
	}
}

// Store accepts finished records.
type Store interface {
	Put(ctx context.Context, rec *Record) error
}

var nonWord = regexp.MustCompile(`\W+`)

// Key returns the path of a record relative to the results root:
// <dataset>/<count>/<algorithm>[-batch]/<sanitized arguments>.json.zst
func Key(ds string, count int, def *v1alpha1.AlgorithmDefinition, queryArgs []any, batch bool) string {
	args := make([]any, 0, len(def.Arguments)+len(queryArgs))
	args = append(args, def.Arguments...)
	args = append(args, queryArgs...)
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte(fmt.Sprint(args))
	}
	name := strings.Trim(nonWord.ReplaceAllString(string(raw), "_"), "_")
	if name == "" {
		name = "default"
	}
	return filepath.Join(ds, strconv.Itoa(count), v1alpha1.AlgorithmName(def.Algorithm, batch), name+codec.Ext)
}

// FileStore writes records under Dir.
type FileStore struct {
	Dir string
}

// Put writes rec atomically; an interrupted write never leaves a partial file.
func (s *FileStore) Put(ctx context.Context, rec *Record) error {
	path := filepath.Join(s.Dir, Key(rec.Dataset, rec.Count, &rec.Definition, rec.QueryArguments, rec.Batch))
	if err := codec.WriteFile(path, rec); err != nil {
		return fmt.Errorf("storing results: %w", err)
	}
	log.FromContext(ctx).V(1).Info("Stored results", "path", path)
	return nil
}

// Load reads the record stored under key.
func (s *FileStore) Load(key string) (*Record, error) {
	rec := &Record{}
	if err := codec.ReadFile(filepath.Join(s.Dir, key), rec); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, key)
		}
		return nil, err
	}
	return rec, nil
}

// List returns the keys stored for a dataset, optionally restricted to one
// neighbor count (count <= 0 lists all), sorted.
func (s *FileStore) List(ds string, count int) ([]string, error) {
	root := filepath.Join(s.Dir, ds)
	if count > 0 {
		root = filepath.Join(root, strconv.Itoa(count))
	}
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), codec.Ext) || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, p)
		if err != nil {
			return err
		}
		keys = append(keys, rel)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists reports whether a record has already been stored, so a scheduler can
// skip finished work.
func (s *FileStore) Exists(ds string, count int, def *v1alpha1.AlgorithmDefinition, queryArgs []any, batch bool) bool {
	_, err := os.Stat(filepath.Join(s.Dir, Key(ds, count, def, queryArgs, batch)))
	return err == nil
}
