// Genthetic generates synthetic datasets by driving batch pipelines
// against a remote generation service.
//
// Usage:
//
//	genthetic run <dataset.yaml> [--count N | --batches N] [--tui]
//	genthetic history [list | show <run-id>]
//	genthetic config [init | show]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mbleigh/genthetic/internal/cli"
)

// version is set via ldflags at build time.
var version = "dev"

func main() {
	// Signal-aware context for graceful shutdown; a second Ctrl+C
	// force-exits once stop() restores default handling.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "genthetic",
		Short:         "Synthetic dataset generation pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		cli.NewRunCmd(),
		cli.NewHistoryCmd(),
		cli.NewConfigCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
