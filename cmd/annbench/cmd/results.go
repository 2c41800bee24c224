/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/hortator-ai/annbench/api/v1alpha1"
	"github.com/hortator-ai/annbench/internal/results"
)

var (
	resultsDataset string
	resultsCount   int
	outputFormat   string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored run descriptors",
	Long: `List the run descriptors stored for a dataset, one line per
query-argument group.

Examples:
  annbench results --dataset glove-25-angular
  annbench results --dataset glove-25-angular -k 100 -o json`,
	RunE: runResults,
}

func init() {
	resultsCmd.Flags().StringVar(&resultsDataset, "dataset", "", "Dataset name")
	resultsCmd.Flags().IntVarP(&resultsCount, "count", "k", 0, "Only show results for this neighbor count (0 for all)")
	resultsCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml")
	_ = resultsCmd.MarkFlagRequired("dataset")
	rootCmd.AddCommand(resultsCmd)
}

// resultRow is one stored descriptor as printed.
type resultRow struct {
	Key            string         `json:"key"`
	QueryArguments []any          `json:"queryArguments"`
	Attrs          map[string]any `json:"attrs"`
}

func runResults(cmd *cobra.Command, args []string) error {
	store := &results.FileStore{Dir: resultsDir}
	keys, err := store.List(resultsDataset, resultsCount)
	if err != nil {
		return fmt.Errorf("listing results: %w", err)
	}

	rows := make([]resultRow, 0, len(keys))
	for _, k := range keys {
		rec, err := store.Load(k)
		if err != nil {
			return err
		}
		rows = append(rows, resultRow{Key: k, QueryArguments: rec.QueryArguments, Attrs: rec.Attrs})
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		data, err := yaml.Marshal(rows)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "table":
		return printResultsTable(out, rows)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}

func printResultsTable(out io.Writer, rows []resultRow) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(os.Stderr, "No results found")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ALGORITHM\tNAME\tK\tQUERY ARGS\tBUILD (s)\tINDEX (kB)\tSEARCH (ms)\tCANDIDATES")
	for _, r := range rows {
		a := r.Attrs
		qa, _ := json.Marshal(r.QueryArguments)
		_, _ = fmt.Fprintf(w, "%v\t%v\t%v\t%s\t%.2f\t%.0f\t%.3f\t%.1f\n",
			a[v1alpha1.AttrAlgo],
			a[v1alpha1.AttrName],
			a[v1alpha1.AttrCount],
			qa,
			num(a[v1alpha1.AttrBuildTime]),
			num(a[v1alpha1.AttrIndexSize])/1024,
			num(a[v1alpha1.AttrBestSearchTime])*1000,
			num(a[v1alpha1.AttrCandidates]),
		)
	}
	return w.Flush()
}

// num reads a decoded JSON number.
func num(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
