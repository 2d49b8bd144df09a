package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "optimizer",
		Short: "Adaptive client-performance optimization engine",
		Long: `optimizer keeps a per-subject optimization profile, re-tunes delivery and UX
settings as device and metric reports arrive, and reassesses the whole
population on a schedule.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (default: built-in defaults plus OPTIMIZER_* environment)")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newScoreCommand())
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
