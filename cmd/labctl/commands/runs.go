package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/platformlab/labctl/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent deployment runs",
		Long: `List runs recorded in the history store, newest first. Requires
history to be configured in the manifest.`,
		Example: `  # Show the last 20 runs
  labctl runs

  # Show the last 5 runs as JSON
  labctl runs --limit 5 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.History.Path == "" {
				return fmt.Errorf("run history is not configured (set history.path in the manifest)")
			}

			history, err := stores.Open(cmd.Context(), cfg.History.Path)
			if err != nil {
				return err
			}
			defer history.Close()

			rows, err := history.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tDURATION")
			for _, row := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					row.ID,
					row.Status,
					row.StartedAt.Format(time.RFC3339),
					(time.Duration(row.DurationMs) * time.Millisecond).String(),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")

	return cmd
}
