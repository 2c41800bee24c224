/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// SandboxLabel marks every container and pod created by annbench.
const SandboxLabel = "annbench.hortator.ai/sandbox"

// dockerAPI is the subset of the Docker client the runtime needs.
type dockerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options types.ContainerLogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

// DockerRuntime runs sandboxes as local Docker containers.
type DockerRuntime struct {
	Client dockerAPI
}

// NewDockerRuntime connects to the daemon configured by the DOCKER_*
// environment variables.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return &DockerRuntime{Client: cli}, nil
}

// containerConfig translates spec into Docker's create parameters.
func containerConfig(spec Spec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Labels: map[string]string{SandboxLabel: "true"},
	}
	host := &container.HostConfig{
		Resources: container.Resources{
			CpusetCpus: spec.CPUSet,
			Memory:     spec.MemoryBytes,
		},
	}
	for _, m := range spec.Mounts {
		host.Mounts = append(host.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}
	return cfg, host
}

// Create creates, but does not start, the container.
func (d *DockerRuntime) Create(ctx context.Context, spec Spec) (Instance, error) {
	cfg, host := containerConfig(spec)
	resp, err := d.Client.ContainerCreate(ctx, cfg, host, nil, nil, spec.Name)
	if err != nil {
		return nil, err
	}
	return &dockerInstance{api: d.Client, id: resp.ID}, nil
}

type dockerInstance struct {
	api dockerAPI
	id  string
}

func (i *dockerInstance) ID() string { return i.id }

func (i *dockerInstance) Start(ctx context.Context) error {
	return i.api.ContainerStart(ctx, i.id, types.ContainerStartOptions{})
}

func (i *dockerInstance) Wait(ctx context.Context) (int64, error) {
	statusCh, errCh := i.api.ContainerWait(ctx, i.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, err
	case st := <-statusCh:
		if st.Error != nil && st.Error.Message != "" {
			return st.StatusCode, errors.New(st.Error.Message)
		}
		return st.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

// Logs returns the demultiplexed log stream.
func (i *dockerInstance) Logs(ctx context.Context) (io.ReadCloser, error) {
	rc, err := i.api.ContainerLogs(ctx, i.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()
	return &demuxedLogs{PipeReader: pr, raw: rc}, nil
}

type demuxedLogs struct {
	*io.PipeReader
	raw io.ReadCloser
}

func (l *demuxedLogs) Close() error {
	err := l.raw.Close()
	_ = l.PipeReader.Close()
	return err
}

func (i *dockerInstance) Output(ctx context.Context) (string, error) {
	rc, err := i.api.ContainerLogs(ctx, i.id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return buf.String(), err
	}
	return buf.String(), nil
}

func (i *dockerInstance) Remove(ctx context.Context) error {
	err := i.api.ContainerRemove(ctx, i.id, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", i.id, err)
	}
	return nil
}
