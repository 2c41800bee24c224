/*
Copyright (c) 2026 hortator-ai
SPDX-License-Identifier: MIT
*/

package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hortator-ai/annbench/internal/algorithm"
	"github.com/hortator-ai/annbench/internal/distance"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("annbench %s\n", Version)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		fmt.Printf("  Built:      %s\n", BuildTime)
		fmt.Printf("  Go version: %s\n", runtime.Version())
		fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  Algorithms: %v\n", algorithm.Default.Names())
		fmt.Printf("  Metrics:    %v\n", distance.Names())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
