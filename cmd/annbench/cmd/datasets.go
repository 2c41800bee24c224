/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/hortator-ai/annbench/internal/dataset"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets <name>...",
	Short: "Materialize datasets under the data directory",
	Long: `Make datasets available under --data-dir before sandboxes mount it.
Missing files are fetched from the configured bucket; random-* datasets are
generated and written to disk.

Examples:
  annbench datasets random-xs-20-euclidean
  annbench datasets glove-25-angular --dataset-endpoint s3.example.com --dataset-bucket ann`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDatasets,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
}

func runDatasets(cmd *cobra.Command, args []string) error {
	ctx := ctrl.IntoContext(cmd.Context(), ctrl.Log.WithName("datasets"))
	loader, err := datasetLoader()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tDISTANCE\tTRAIN\tTEST\tDIMENSION")
	for _, name := range args {
		ds, err := loader.Get(ctx, name)
		if err != nil {
			return err
		}
		if dataset.IsSynthetic(name) {
			if err := dataset.Save(loader.Dir, ds); err != nil {
				return fmt.Errorf("saving %s: %w", name, err)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", ds.Name, ds.Distance, len(ds.Train), len(ds.Test), ds.Dimension())
	}
	return w.Flush()
}
