package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbleigh/genthetic/internal/config"
	"github.com/mbleigh/genthetic/internal/persistence"
)

// NewHistoryCmd creates the `history` command group for inspecting
// past runs.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
	}

	cmd.AddCommand(
		newHistoryListCmd(),
		newHistoryShowCmd(),
	)

	return cmd
}

func openStore(cmd *cobra.Command) (*persistence.SQLiteStore, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	return persistence.NewSQLiteStore(cmd.Context(), cfg.History.Path)
}

func newHistoryListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List past runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPIPELINE\tSTATUS\tITEMS\tBATCHES\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%d\t%s\n",
					r.ID, r.Pipeline, r.Status, r.Items, r.TotalItems,
					r.TotalBatches, r.CreatedAt.Local().Format(time.DateTime))
			}
			return w.Flush()
		},
	}
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			mode := "parallel"
			if run.Serial {
				mode = "serial"
			}
			fmt.Printf("Run:      %s\n", run.ID)
			fmt.Printf("Pipeline: %s\n", run.Pipeline)
			fmt.Printf("Status:   %s\n", run.Status)
			fmt.Printf("Items:    %d of %d in %d batches (%s)\n",
				run.Items, run.TotalItems, run.TotalBatches, mode)
			fmt.Printf("Started:  %s\n", run.CreatedAt.Local().Format(time.DateTime))
			if !run.CompletedAt.IsZero() {
				fmt.Printf("Finished: %s\n", run.CompletedAt.Local().Format(time.DateTime))
			}
			if run.Error != "" {
				fmt.Printf("Error:    %s\n", run.Error)
			}

			batches, err := store.ListBatches(cmd.Context(), run.ID)
			if err != nil {
				return err
			}
			if len(batches) > 0 {
				fmt.Println("\nBatches:")
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "  INDEX\tSIZE\tCOMPLETED")
				for _, b := range batches {
					fmt.Fprintf(w, "  %d\t%d\t%s\n",
						b.Index, b.Size, b.CompletedAt.Local().Format(time.DateTime))
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
