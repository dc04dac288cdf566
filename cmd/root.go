// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "github-pr-stats",
	Short: "A CLI tool to summarize GitHub pull request activity.",
	Long: `github-pr-stats summarizes the pull request activity of a repository or a user
within a time window (2w, 1m, 3m, 6m or all). Results are cached in memory, Redis or
PostgreSQL so repeated queries do not spend API quota.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, describeError(err))
		os.Exit(1)
	}
}

func init() {
	// Persistent flags are available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().String("token", "", "GitHub token (overrides GITHUB_TOKEN)")
	rootCmd.PersistentFlags().String("cache", "", "Cache backend: memory, redis or postgres (overrides CACHE_BACKEND)")
	rootCmd.PersistentFlags().StringP("format", "f", formatJSON, "Output format: json or table")
}
