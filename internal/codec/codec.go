/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package codec reads and writes zstd-compressed JSON files.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Ext is the file extension used for encoded files.
const Ext = ".json.zst"

// Encode writes v as zstd-compressed JSON to w.
func Encode(w io.Writer, v any) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if err := json.NewEncoder(enc).Encode(v); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encoding json: %w", err)
	}
	return enc.Close()
}

// Decode reads zstd-compressed JSON from r into v.
func Decode(r io.Reader, v any) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("creating zstd reader: %w", err)
	}
	defer dec.Close()
	if err := json.NewDecoder(dec).Decode(v); err != nil {
		return fmt.Errorf("decoding json: %w", err)
	}
	return nil
}

// WriteFile atomically writes v to path: readers see either the previous
// file or the complete new one, never a partial write.
func WriteFile(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := Encode(tmp, v); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}
	return nil
}

// ReadFile decodes the file at path into v.
func ReadFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return Decode(f, v)
}
