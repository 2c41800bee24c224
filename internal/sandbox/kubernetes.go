/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"
	"k8s.io/utils/cpuset"
)

const (
	containerName = "benchmark"

	// activeDeadlineGrace is added on top of the wait timeout so the
	// controller, not the kubelet, normally observes the timeout.
	activeDeadlineGrace = 30 * time.Second
)

// KubernetesRuntime runs sandboxes as single-container pods. Mounts are
// hostPath volumes, so the pod must land on the node that holds the data.
type KubernetesRuntime struct {
	Clientset kubernetes.Interface
	Namespace string

	// NodeName pins pods to the node holding the mounted directories.
	NodeName string

	// PollInterval defaults to one second.
	PollInterval time.Duration
	// StartTimeout bounds the wait for scheduling and image pull; defaults
	// to five minutes.
	StartTimeout time.Duration
}

func (k *KubernetesRuntime) pollInterval() time.Duration {
	if k.PollInterval <= 0 {
		return time.Second
	}
	return k.PollInterval
}

func (k *KubernetesRuntime) startTimeout() time.Duration {
	if k.StartTimeout <= 0 {
		return 5 * time.Minute
	}
	return k.StartTimeout
}

// cpuCount returns the number of distinct CPUs named by a cpuset list such
// as "0-3,8".
func cpuCount(list string) (int, error) {
	set, err := cpuset.Parse(list)
	if err != nil {
		return 0, fmt.Errorf("invalid cpuset %q: %w", list, err)
	}
	return set.Size(), nil
}

// buildResources sets requests equal to limits so the pod gets the
// Guaranteed QoS class the static CPU manager needs to pin cores.
func buildResources(spec Spec) (corev1.ResourceRequirements, error) {
	list := corev1.ResourceList{}
	if spec.CPUSet != "" {
		n, err := cpuCount(spec.CPUSet)
		if err != nil {
			return corev1.ResourceRequirements{}, err
		}
		if n > 0 {
			list[corev1.ResourceCPU] = *resource.NewQuantity(int64(n), resource.DecimalSI)
		}
	}
	if spec.MemoryBytes > 0 {
		list[corev1.ResourceMemory] = *resource.NewQuantity(spec.MemoryBytes, resource.BinarySI)
	}
	if len(list) == 0 {
		return corev1.ResourceRequirements{}, nil
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list.DeepCopy()}, nil
}

func buildVolumes(spec Spec) ([]corev1.Volume, []corev1.VolumeMount) {
	var (
		volumes []corev1.Volume
		mounts  []corev1.VolumeMount
	)
	for i, m := range spec.Mounts {
		name := fmt.Sprintf("mount-%d", i)
		hostType := corev1.HostPathDirectory
		if !m.ReadOnly {
			hostType = corev1.HostPathDirectoryOrCreate
		}
		volumes = append(volumes, corev1.Volume{
			Name: name,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{Path: m.Source, Type: &hostType},
			},
		})
		mounts = append(mounts, corev1.VolumeMount{
			Name:      name,
			MountPath: m.Target,
			ReadOnly:  m.ReadOnly,
		})
	}
	return volumes, mounts
}

func (k *KubernetesRuntime) buildPod(spec Spec) (*corev1.Pod, error) {
	resources, err := buildResources(spec)
	if err != nil {
		return nil, err
	}
	volumes, mounts := buildVolumes(spec)

	var env []corev1.EnvVar
	if spec.CPUSet != "" {
		env = append(env, corev1.EnvVar{Name: "ANNBENCH_CPUSET", Value: spec.CPUSet})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.Name,
			Namespace: k.Namespace,
			Labels: map[string]string{
				SandboxLabel:                   "true",
				"app.kubernetes.io/managed-by": "annbench",
			},
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			NodeName:      k.NodeName,
			Containers: []corev1.Container{{
				Name:         containerName,
				Image:        spec.Image,
				Args:         spec.Command,
				Env:          env,
				Resources:    resources,
				VolumeMounts: mounts,
			}},
			Volumes: volumes,
		},
	}
	if spec.Timeout > 0 {
		deadline := int64((spec.Timeout + activeDeadlineGrace).Seconds())
		pod.Spec.ActiveDeadlineSeconds = &deadline
	}
	return pod, nil
}

// Create submits the pod. Kubernetes starts it as soon as it is scheduled.
func (k *KubernetesRuntime) Create(ctx context.Context, spec Spec) (Instance, error) {
	pod, err := k.buildPod(spec)
	if err != nil {
		return nil, err
	}
	if _, err := k.Clientset.CoreV1().Pods(k.Namespace).Create(ctx, pod, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("creating sandbox pod: %w", err)
	}
	return &podInstance{rt: k, name: spec.Name}, nil
}

type podInstance struct {
	rt   *KubernetesRuntime
	name string
}

func (p *podInstance) ID() string { return p.rt.Namespace + "/" + p.name }

func (p *podInstance) pods() typedcorev1.PodInterface {
	return p.rt.Clientset.CoreV1().Pods(p.rt.Namespace)
}

// Start waits until the container is running or has already finished.
func (p *podInstance) Start(ctx context.Context) error {
	return wait.PollUntilContextTimeout(ctx, p.rt.pollInterval(), p.rt.startTimeout(), true, func(ctx context.Context) (bool, error) {
		pod, err := p.pods().Get(ctx, p.name, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		switch pod.Status.Phase {
		case corev1.PodRunning, corev1.PodSucceeded, corev1.PodFailed:
			return true, nil
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if w := cs.State.Waiting; w != nil && (w.Reason == "ErrImagePull" || w.Reason == "ImagePullBackOff" || w.Reason == "CreateContainerConfigError") {
				return false, fmt.Errorf("sandbox pod cannot start: %s: %s", w.Reason, w.Message)
			}
		}
		return false, nil
	})
}

// Wait polls until the pod has terminated.
func (p *podInstance) Wait(ctx context.Context) (int64, error) {
	code := int64(-1)
	err := wait.PollUntilContextCancel(ctx, p.rt.pollInterval(), true, func(ctx context.Context) (bool, error) {
		pod, err := p.pods().Get(ctx, p.name, metav1.GetOptions{})
		if err != nil {
			if errors.IsNotFound(err) {
				return false, fmt.Errorf("sandbox pod %s disappeared", p.name)
			}
			return false, nil
		}
		if pod.Status.Phase != corev1.PodSucceeded && pod.Status.Phase != corev1.PodFailed {
			return false, nil
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.Name == containerName && cs.State.Terminated != nil {
				code = int64(cs.State.Terminated.ExitCode)
				return true, nil
			}
		}
		return false, fmt.Errorf("sandbox pod %s %s: %s", p.name, strings.ToLower(string(pod.Status.Phase)), pod.Status.Reason)
	})
	if err != nil {
		return -1, err
	}
	return code, nil
}

func (p *podInstance) Logs(ctx context.Context) (io.ReadCloser, error) {
	return p.pods().GetLogs(p.name, &corev1.PodLogOptions{Container: containerName, Follow: true}).Stream(ctx)
}

func (p *podInstance) Output(ctx context.Context) (string, error) {
	raw, err := p.pods().GetLogs(p.name, &corev1.PodLogOptions{Container: containerName}).DoRaw(ctx)
	return string(raw), err
}

func (p *podInstance) Remove(ctx context.Context) error {
	grace := int64(0)
	err := p.pods().Delete(ctx, p.name, metav1.DeleteOptions{GracePeriodSeconds: &grace})
	if err != nil && !errors.IsNotFound(err) {
		return fmt.Errorf("deleting sandbox pod %s: %w", p.name, err)
	}
	return nil
}
