/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

// Package sandbox runs the benchmark orchestrator for one algorithm
// definition inside an isolated, resource-capped and time-bounded container
// or pod, forwarding its logs and removing it afterwards no matter how the
// run ended.
package sandbox

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
)

// In-sandbox mount points.
const (
	CodeMountPath    = "/home/app/annbench"
	DataMountPath    = "/home/app/data"
	ResultsMountPath = "/home/app/results"
)

const teardownTimeout = 10 * time.Second

var (
	liveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Params is one sandboxed run.
type Params struct {
	Definition *v1alpha1.AlgorithmDefinition
	Dataset    string
	Count      int
	Runs       int
	Batch      bool

	CPUSet string
	// Timeout bounds the wait; 0 waits forever.
	Timeout time.Duration
	// MemoryBytes caps sandbox memory; 0 means the memory currently
	// available on this host.
	MemoryBytes int64
}

// Report is what the caller learns about a finished sandbox.
type Report struct {
	Name string
	ID   string

	// Phase is always TornDown once Run returns.
	Phase   v1alpha1.SandboxPhase
	Outcome v1alpha1.SandboxPhase
	// Phases lists every state passed through, in order.
	Phases []v1alpha1.SandboxPhase

	ExitCode int64
	// Err is the wait or start error for TimedOut and WaitException.
	Err error
	// Output holds the full log dump for CompletedError.
	Output string

	TeardownErr error
	Duration    time.Duration
}

func (r *Report) advance(p v1alpha1.SandboxPhase) {
	r.Phase = p
	r.Phases = append(r.Phases, p)
	if p.IsOutcome() {
		r.Outcome = p
	}
}

// Succeeded reports a zero exit.
func (r *Report) Succeeded() bool {
	return r.Outcome == v1alpha1.SandboxPhaseCompletedOK
}

// Controller launches sandboxes through a Runtime.
type Controller struct {
	Runtime Runtime

	// Image is used when a definition carries no docker tag.
	Image string

	// CodeDir is optional; DataDir and ResultsDir are required.
	CodeDir    string
	DataDir    string
	ResultsDir string

	// Out receives forwarded log lines; nil means os.Stdout.
	Out io.Writer

	mu sync.Mutex
}

// Command returns the orchestrator command line executed in the sandbox.
func Command(p Params) ([]string, error) {
	def := p.Definition
	cmd := []string{
		"run",
		"--dataset", p.Dataset,
		"--algorithm", def.Algorithm,
		"--module", def.Module,
		"--constructor", def.Constructor,
		"--runs", strconv.Itoa(p.Runs),
		"--count", strconv.Itoa(p.Count),
		"--data-dir", DataMountPath,
		"--results-dir", ResultsMountPath,
	}
	if p.Batch {
		cmd = append(cmd, "--batch")
	}

	args := def.Arguments
	if args == nil {
		args = []any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments of %s: %w", def.Algorithm, err)
	}
	cmd = append(cmd, string(raw))
	for _, g := range def.QueryArgumentGroups {
		if g == nil {
			g = []any{}
		}
		raw, err := json.Marshal(g)
		if err != nil {
			return nil, fmt.Errorf("encoding query arguments of %s: %w", def.Algorithm, err)
		}
		cmd = append(cmd, string(raw))
	}
	return cmd, nil
}

func (c *Controller) buildSpec(logger logr.Logger, p Params) (Spec, error) {
	if p.Definition == nil {
		return Spec{}, errors.New("no algorithm definition")
	}
	image := p.Definition.DockerTag
	if image == "" {
		image = c.Image
	}
	if image == "" {
		return Spec{}, fmt.Errorf("no image for %s", p.Definition.Algorithm)
	}

	cmd, err := Command(p)
	if err != nil {
		return Spec{}, err
	}

	mem := p.MemoryBytes
	if mem == 0 {
		avail, err := AvailableMemory()
		if err != nil {
			logger.Info("Could not determine available memory, running without a memory cap", "error", err.Error())
		} else {
			mem = avail
		}
	}

	var mounts []Mount
	for _, m := range []Mount{
		{Source: c.CodeDir, Target: CodeMountPath, ReadOnly: true},
		{Source: c.DataDir, Target: DataMountPath, ReadOnly: true},
		{Source: c.ResultsDir, Target: ResultsMountPath},
	} {
		if m.Source == "" {
			if m.Target == CodeMountPath {
				continue
			}
			return Spec{}, fmt.Errorf("no host directory for %s", m.Target)
		}
		abs, err := filepath.Abs(m.Source)
		if err != nil {
			return Spec{}, fmt.Errorf("resolving %s: %w", m.Source, err)
		}
		m.Source = abs
		mounts = append(mounts, m)
	}

	return Spec{
		Name:        "annbench-" + uuid.NewString(),
		Image:       image,
		Command:     cmd,
		CPUSet:      p.CPUSet,
		MemoryBytes: mem,
		Mounts:      mounts,
		Timeout:     p.Timeout,
	}, nil
}

// Run executes p in a fresh sandbox and blocks until it is torn down. Only
// setup failures (bad parameters, sandbox creation) are returned as errors;
// every outcome after creation is carried by the report.
func (c *Controller) Run(ctx context.Context, p Params) (*Report, error) {
	logger := log.FromContext(ctx)
	if p.Definition != nil {
		logger = logger.WithValues("algorithm", p.Definition.Algorithm, "dataset", p.Dataset)
	}

	spec, err := c.buildSpec(logger, p)
	if err != nil {
		return nil, err
	}
	logger = logger.WithValues("sandbox", spec.Name)

	ctx, span := tracer.Start(ctx, "annbench.sandbox")
	defer span.End()
	span.SetAttributes(
		attribute.String("annbench.sandbox.name", spec.Name),
		attribute.String("annbench.sandbox.image", spec.Image),
		attribute.String("annbench.sandbox.cpuset", spec.CPUSet),
		attribute.Int64("annbench.sandbox.memory", spec.MemoryBytes),
	)

	logger.Info("Creating sandbox",
		"image", spec.Image, "cpuset", spec.CPUSet, "memory", spec.MemoryBytes,
		"timeout", p.Timeout.String(), "command", strings.Join(spec.Command, " "))

	inst, err := c.Runtime.Create(ctx, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating sandbox %s: %w", spec.Name, err)
	}

	rep := &Report{Name: spec.Name, ID: inst.ID()}
	rep.advance(v1alpha1.SandboxPhaseCreated)
	emitSandboxEvent(ctx, v1alpha1.SandboxPhaseCreated)
	started := time.Now()

	streamCtx, stopStream := context.WithCancel(ctx)
	var streams sync.WaitGroup

	defer func() {
		c.teardown(logger, inst, rep)
		stopStream()
		streams.Wait()

		rep.Duration = time.Since(started)
		sandboxDuration.Observe(rep.Duration.Seconds())
		sandboxOutcomesTotal.WithLabelValues(string(rep.Outcome)).Inc()
		emitSandboxEvent(ctx, v1alpha1.SandboxPhaseTornDown,
			attribute.String("annbench.sandbox.outcome", string(rep.Outcome)))
		if !rep.Succeeded() {
			span.SetStatus(codes.Error, string(rep.Outcome))
		}
	}()

	if err := inst.Start(ctx); err != nil {
		logger.Error(err, "Failed to start sandbox")
		rep.Err = fmt.Errorf("starting sandbox: %w", err)
		rep.advance(v1alpha1.SandboxPhaseWaitException)
		return rep, nil
	}
	rep.advance(v1alpha1.SandboxPhaseRunning)
	emitSandboxEvent(ctx, v1alpha1.SandboxPhaseRunning)

	streams.Add(1)
	go func() {
		defer streams.Done()
		c.forwardLogs(streamCtx, logger, inst)
	}()

	waitCtx, cancelWait := ctx, context.CancelFunc(func() {})
	if p.Timeout > 0 {
		waitCtx, cancelWait = context.WithTimeout(ctx, p.Timeout)
	}
	defer cancelWait()

	code, werr := inst.Wait(waitCtx)
	rep.ExitCode = code
	switch {
	case werr != nil && ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		rep.Err = fmt.Errorf("sandbox did not finish within %s: %w", p.Timeout, werr)
		rep.advance(v1alpha1.SandboxPhaseTimedOut)
		logger.Error(rep.Err, "Sandbox timed out")
	case werr != nil:
		rep.Err = fmt.Errorf("waiting for sandbox: %w", werr)
		rep.advance(v1alpha1.SandboxPhaseWaitException)
		logger.Error(rep.Err, "Sandbox wait failed")
	case code == 0:
		rep.advance(v1alpha1.SandboxPhaseCompletedOK)
		logger.Info("Sandbox completed")
	default:
		rep.advance(v1alpha1.SandboxPhaseCompletedError)
		out, err := inst.Output(ctx)
		if err != nil {
			logger.Error(err, "Failed to collect sandbox output")
		}
		rep.Output = out
		c.dumpFailure(out)
		logger.Info(fmt.Sprintf("Child process raised exception %d", code), "exitCode", code)
	}
	emitSandboxEvent(ctx, rep.Outcome, attribute.Int64("annbench.sandbox.exit_code", code))
	return rep, nil
}

// teardown removes the sandbox with a fresh context so that cancellation of
// the run never leaks it.
func (c *Controller) teardown(logger logr.Logger, inst Instance, rep *Report) {
	rmCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	if err := inst.Remove(rmCtx); err != nil {
		teardownFailuresTotal.Inc()
		rep.TeardownErr = err
		logger.Error(err, "Failed to remove sandbox", "id", inst.ID())
	}
	rep.advance(v1alpha1.SandboxPhaseTornDown)
}

func (c *Controller) forwardLogs(ctx context.Context, logger logr.Logger, inst Instance) {
	rc, err := inst.Logs(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error(err, "Failed to stream sandbox logs")
		}
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer func() {
		stop()
		_ = rc.Close()
	}()

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		c.writeLine(liveStyle, sc.Text())
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		logger.V(1).Info("Sandbox log stream ended", "error", err.Error())
	}
}

func (c *Controller) dumpFailure(out string) {
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		c.writeLine(failureStyle, line)
	}
}

func (c *Controller) writeLine(style lipgloss.Style, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.Out
	if w == nil {
		w = os.Stdout
	}
	_, _ = fmt.Fprintln(w, style.Render(strings.TrimRight(line, "\r")))
}
