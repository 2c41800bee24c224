/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/hortator-ai/annbench/internal/dataset"
)

var (
	// logLevel is debug, info, warn or error
	logLevel string
	// metricsAddr serves /metrics when set
	metricsAddr string
	// dataDir holds dataset files
	dataDir string
	// resultsDir receives result files
	resultsDir string

	datasetEndpoint string
	datasetBucket   string
	datasetPrefix   string
	datasetInsecure bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "annbench",
	Short: "Benchmark approximate nearest-neighbor algorithms",
	Long: `annbench measures approximate nearest-neighbor search algorithms.

Each algorithm definition is run in its own sandbox (a Docker container or a
Kubernetes pod) pinned to a CPU set and capped in memory. Inside the sandbox
the index is built once and every query-argument group is timed against the
dataset's test queries; results are written under the results directory.

Examples:
  # Run every enabled definition against a dataset, one sandbox at a time
  annbench sandbox --definitions algos.yaml --dataset glove-25-angular

  # Run one definition in-process (this is what the sandbox executes)
  annbench run --dataset random-xs-20-euclidean --algorithm bruteforce \
    --module bruteforce --constructor BruteForce '["euclidean"]'

  # List stored results
  annbench results --dataset glove-25-angular`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOr("ANNBENCH_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", os.Getenv("ANNBENCH_METRICS_ADDR"), "Serve Prometheus metrics on this address (disabled if empty)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", envOr("ANNBENCH_DATA_DIR", "data"), "Directory holding dataset files")
	rootCmd.PersistentFlags().StringVar(&resultsDir, "results-dir", envOr("ANNBENCH_RESULTS_DIR", "results"), "Directory receiving result files")

	rootCmd.PersistentFlags().StringVar(&datasetEndpoint, "dataset-endpoint", os.Getenv("ANNBENCH_DATASET_ENDPOINT"), "S3-compatible endpoint to fetch missing datasets from")
	rootCmd.PersistentFlags().StringVar(&datasetBucket, "dataset-bucket", os.Getenv("ANNBENCH_DATASET_BUCKET"), "Bucket holding dataset files")
	rootCmd.PersistentFlags().StringVar(&datasetPrefix, "dataset-prefix", os.Getenv("ANNBENCH_DATASET_PREFIX"), "Key prefix of dataset files in the bucket")
	rootCmd.PersistentFlags().BoolVar(&datasetInsecure, "dataset-insecure", false, "Use plain HTTP for the dataset endpoint")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func setup(cmd *cobra.Command, _ []string) error {
	opts := zap.Options{}
	if logLevel == "debug" {
		opts.Development = true
	}
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if metricsAddr != "" {
		serveMetrics(cmd.Context(), metricsAddr)
	}
	return nil
}

// serveMetrics exposes the metrics registry until ctx is done.
func serveMetrics(ctx context.Context, addr string) {
	log := ctrl.Log.WithName("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "ok")
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// datasetLoader returns a loader over --data-dir that fetches missing files
// from the configured bucket.
func datasetLoader() (*dataset.FileLoader, error) {
	l := &dataset.FileLoader{Dir: dataDir}
	if datasetBucket == "" {
		return l, nil
	}
	if datasetEndpoint == "" {
		return nil, errors.New("--dataset-bucket requires --dataset-endpoint")
	}
	f, err := dataset.NewObjectStoreFetcher(dataset.ObjectStoreConfig{
		Endpoint: datasetEndpoint,
		Bucket:   datasetBucket,
		Prefix:   datasetPrefix,
		Secure:   !datasetInsecure,
	})
	if err != nil {
		return nil, err
	}
	l.Fetcher = f
	return l, nil
}
