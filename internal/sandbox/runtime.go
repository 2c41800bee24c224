/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package sandbox

import (
	"context"
	"io"
	"time"
)

// Mount binds a host directory into the sandbox.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Spec describes the sandbox to create.
type Spec struct {
	Name        string
	Image       string
	Command     []string
	CPUSet      string
	MemoryBytes int64
	Mounts      []Mount

	// Timeout lets runtimes that support it enforce a deadline of their own.
	Timeout time.Duration
}

// Runtime creates sandboxes. Docker and Kubernetes implementations exist.
type Runtime interface {
	Create(ctx context.Context, spec Spec) (Instance, error)
}

// Instance is one created sandbox.
type Instance interface {
	ID() string

	// Start launches the workload.
	Start(ctx context.Context) error

	// Logs follows combined stdout/stderr until the workload exits or ctx
	// is cancelled.
	Logs(ctx context.Context) (io.ReadCloser, error)

	// Wait blocks until the workload exits and returns its exit code.
	Wait(ctx context.Context) (int64, error)

	// Output returns everything the workload has logged so far.
	Output(ctx context.Context) (string, error)

	// Remove kills the workload if needed and deletes the sandbox. Removing
	// an already removed sandbox is not an error.
	Remove(ctx context.Context) error
}
