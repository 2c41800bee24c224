/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/algorithm"
	_ "github.com/hortator-ai/annbench/internal/algorithm/bruteforce"
	"github.com/hortator-ai/annbench/internal/results"
	"github.com/hortator-ai/annbench/internal/runner"
)

var (
	runDataset     string
	runAlgorithm   string
	runModule      string
	runConstructor string
	runRuns        int
	runCount       int
	runBatch       bool
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <build-arguments-json> [<query-arguments-json>...]",
	Short: "Benchmark one algorithm definition in this process",
	Long: `Build an index for one algorithm definition and time every query-argument
group against the dataset's test queries.

This is the command a sandbox executes. The first positional argument is the
JSON array of constructor arguments; each following argument is one JSON array
of query arguments, applied in order.

Examples:
  annbench run --dataset random-xs-20-euclidean --algorithm bruteforce \
    --module bruteforce --constructor BruteForce '["euclidean"]'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDataset, "dataset", "", "Dataset name")
	runCmd.Flags().StringVar(&runAlgorithm, "algorithm", "", "Algorithm name results are stored under")
	runCmd.Flags().StringVar(&runModule, "module", "", "Adapter module")
	runCmd.Flags().StringVar(&runConstructor, "constructor", "", "Adapter constructor")
	runCmd.Flags().IntVar(&runRuns, "runs", 2, "Repetitions of the query workload; the fastest is kept")
	runCmd.Flags().IntVarP(&runCount, "count", "k", 10, "Number of nearest neighbors to search for")
	runCmd.Flags().BoolVar(&runBatch, "batch", false, "Answer all queries in one batch call")
	for _, f := range []string{"dataset", "algorithm", "module", "constructor"} {
		_ = runCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(runCmd)
}

// parseArgumentList decodes one positional JSON array.
func parseArgumentList(raw string) ([]any, error) {
	var out []any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("argument list %q is not a JSON array: %w", raw, err)
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	log := ctrl.Log.WithName("run")

	build, err := parseArgumentList(args[0])
	if err != nil {
		return err
	}
	var groups [][]any
	for _, raw := range args[1:] {
		g, err := parseArgumentList(raw)
		if err != nil {
			return err
		}
		groups = append(groups, g)
	}

	def := &v1alpha1.AlgorithmDefinition{
		Algorithm:           runAlgorithm,
		Module:              runModule,
		Constructor:         runConstructor,
		Arguments:           build,
		QueryArgumentGroups: groups,
	}

	loader, err := datasetLoader()
	if err != nil {
		return err
	}
	r := &runner.Runner{
		Registry: algorithm.Default,
		Datasets: loader,
		Store:    &results.FileStore{Dir: resultsDir},
		Engine:   &runner.Engine{},
	}

	log.Info("Starting run", "algorithm", def.String(), "dataset", runDataset, "count", runCount, "runs", runRuns, "batch", runBatch)
	return r.Run(ctrl.IntoContext(ctx, log), runner.Request{
		Definition: def,
		Dataset:    runDataset,
		Count:      runCount,
		RunCount:   runRuns,
		Batch:      runBatch,
	})
}
