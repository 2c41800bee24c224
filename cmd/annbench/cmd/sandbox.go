/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/definitions"
	"github.com/hortator-ai/annbench/internal/results"
	"github.com/hortator-ai/annbench/internal/sandbox"
)

var (
	sandboxDefinitions string
	sandboxAlgorithm   string
	sandboxDataset     string
	sandboxCount       int
	sandboxRuns        int
	sandboxBatch       bool
	sandboxTimeout     time.Duration
	sandboxCPUSet      string
	sandboxMemory      string
	sandboxRuntime     string
	sandboxImage       string
	sandboxCodeDir     string
	sandboxForce       bool

	kubeconfig   string
	namespace    string
	nodeName     string
	startTimeout time.Duration
)

var sandboxCmd = &cobra.Command{
	Use:   "sandbox",
	Short: "Run algorithm definitions in isolated sandboxes",
	Long: `Run each enabled algorithm definition in its own container or pod, one
at a time. Every sandbox is pinned to --cpuset, capped at --memory and killed
after --timeout; its logs are streamed as they are produced and it is removed
when it finishes, whatever the outcome.

Definitions whose results already exist are skipped unless --force is set.

Examples:
  # Docker, pinned to CPU 0, two hour limit
  annbench sandbox --definitions algos.yaml --dataset glove-25-angular

  # Kubernetes pods on the node that holds the data
  annbench sandbox --runtime kubernetes --namespace bench --node-name gpu-1 \
    --definitions algos.yaml --dataset glove-25-angular --cpuset 2-3 --memory 16Gi`,
	RunE: runSandbox,
}

func init() {
	sandboxCmd.Flags().StringVarP(&sandboxDefinitions, "definitions", "f", envOr("ANNBENCH_DEFINITIONS", "algos.yaml"), "YAML file of algorithm definitions")
	sandboxCmd.Flags().StringVar(&sandboxAlgorithm, "algorithm", "", "Only run definitions with this algorithm name")
	sandboxCmd.Flags().StringVar(&sandboxDataset, "dataset", "", "Dataset name")
	sandboxCmd.Flags().IntVarP(&sandboxCount, "count", "k", 10, "Number of nearest neighbors to search for")
	sandboxCmd.Flags().IntVar(&sandboxRuns, "runs", 2, "Repetitions of the query workload inside each sandbox")
	sandboxCmd.Flags().BoolVar(&sandboxBatch, "batch", false, "Answer all queries in one batch call")
	sandboxCmd.Flags().DurationVar(&sandboxTimeout, "timeout", 2*time.Hour, "Wall-clock limit per sandbox (0 for none)")
	sandboxCmd.Flags().StringVar(&sandboxCPUSet, "cpuset", "0", "CPUs the sandbox is pinned to, e.g. 0-3")
	sandboxCmd.Flags().StringVar(&sandboxMemory, "memory", "", "Memory cap such as 8Gi (defaults to the memory currently available)")
	sandboxCmd.Flags().StringVar(&sandboxRuntime, "runtime", envOr("ANNBENCH_RUNTIME", "docker"), "Sandbox runtime: docker or kubernetes")
	sandboxCmd.Flags().StringVar(&sandboxImage, "image", os.Getenv("ANNBENCH_IMAGE"), "Image for definitions without a docker tag")
	sandboxCmd.Flags().StringVar(&sandboxCodeDir, "code-dir", "", "Host directory mounted read-only as the algorithm code")
	sandboxCmd.Flags().BoolVar(&sandboxForce, "force", false, "Re-run definitions whose results already exist")

	sandboxCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig file (defaults to $KUBECONFIG or ~/.kube/config)")
	sandboxCmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace for sandbox pods")
	sandboxCmd.Flags().StringVar(&nodeName, "node-name", "", "Node to schedule sandbox pods on")
	sandboxCmd.Flags().DurationVar(&startTimeout, "start-timeout", 5*time.Minute, "How long a pod may take to start")

	_ = sandboxCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(sandboxCmd)
}

// getNamespace returns the namespace to use, falling back to default
func getNamespace() string {
	if namespace != "" {
		return namespace
	}
	if ns := os.Getenv("ANNBENCH_NAMESPACE"); ns != "" {
		return ns
	}
	return "default"
}

func newRuntime() (sandbox.Runtime, error) {
	switch sandboxRuntime {
	case "docker":
		return sandbox.NewDockerRuntime()
	case "kubernetes", "k8s":
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		if kubeconfig != "" {
			loadingRules.ExplicitPath = kubeconfig
		}
		kubeConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		config, err := kubeConfig.ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubeconfig: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(config)
		if err != nil {
			return nil, fmt.Errorf("failed to create k8s clientset: %w", err)
		}
		return &sandbox.KubernetesRuntime{
			Clientset:    clientset,
			Namespace:    getNamespace(),
			NodeName:     nodeName,
			StartTimeout: startTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown runtime %q (want docker or kubernetes)", sandboxRuntime)
	}
}

func parseMemory(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --memory %q: %w", s, err)
	}
	if q.Sign() <= 0 {
		return 0, fmt.Errorf("invalid --memory %q: must be positive", s)
	}
	return q.Value(), nil
}

func runSandbox(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := ctrl.Log.WithName("sandbox")

	file, err := definitions.Load(sandboxDefinitions)
	if err != nil {
		return err
	}
	defs := file.Select(sandboxAlgorithm)
	if len(defs) == 0 {
		return fmt.Errorf("no enabled definitions in %s", sandboxDefinitions)
	}

	mem, err := parseMemory(sandboxMemory)
	if err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	controller := &sandbox.Controller{
		Runtime:    rt,
		Image:      sandboxImage,
		CodeDir:    sandboxCodeDir,
		DataDir:    dataDir,
		ResultsDir: resultsDir,
		Out:        cmd.OutOrStdout(),
	}
	store := &results.FileStore{Dir: resultsDir}

	var failed, skipped int
	for i := range defs {
		def := &defs[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sandboxForce && done(store, def) {
			log.Info("Results exist, skipping", "algorithm", def.Algorithm)
			skipped++
			continue
		}

		log.Info(fmt.Sprintf("Running definition %d/%d", i+1, len(defs)), "algorithm", def.Algorithm, "args", def.Arguments)
		rep, err := controller.Run(ctrl.IntoContext(ctx, log), sandbox.Params{
			Definition:  def,
			Dataset:     sandboxDataset,
			Count:       sandboxCount,
			Runs:        sandboxRuns,
			Batch:       sandboxBatch,
			CPUSet:      sandboxCPUSet,
			Timeout:     sandboxTimeout,
			MemoryBytes: mem,
		})
		if err != nil {
			log.Error(err, "Sandbox could not be created", "algorithm", def.Algorithm)
			failed++
			continue
		}
		if !rep.Succeeded() {
			failed++
		}
		log.Info("Sandbox finished", "algorithm", def.Algorithm, "outcome", rep.Outcome,
			"exitCode", rep.ExitCode, "duration", rep.Duration.Round(time.Second).String())
	}

	log.Info("All definitions processed", "total", len(defs), "failed", failed, "skipped", skipped)
	if failed > 0 {
		return fmt.Errorf("%d of %d sandboxes failed", failed, len(defs))
	}
	return nil
}

// done reports whether every query-argument group of def has a stored result.
func done(store *results.FileStore, def *v1alpha1.AlgorithmDefinition) bool {
	for _, g := range def.Groups() {
		if !store.Exists(sandboxDataset, sandboxCount, def, g, sandboxBatch) {
			return false
		}
	}
	return true
}
