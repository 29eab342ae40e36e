// Package cli implements the shapeq command-line interface using Cobra.
// Each subcommand maps to one way of driving the two schedulers.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "shapeq",
	Short: "shapeq — compare concurrent and sequential task scheduling",
	Long: `shapeq runs the same shape tasks through two schedulers side by side.

The concurrent scheduler gives every task its own timer, so durations
overlap. The sequential scheduler sends one request at a time to a slow
backend, so durations add up.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
