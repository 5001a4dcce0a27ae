package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platformlab/labctl/pkg/engine"
)

type componentStatus struct {
	ID    string            `json:"id"`
	State engine.StateClass `json:"state"`
	Error string            `json:"error,omitempty"`
}

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show live component state",
		Long: `Classify every component in the manifest against the target cluster
without changing anything: absent, partially configured, or ready.
Each component's full readiness predicate runs exactly as it would
during a deployment, so "ready" here means a deploy would skip it.`,
		Example: `  # Show component state
  labctl status

  # Machine-readable output
  labctl status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			detector := engine.NewResumeDetector(rt.log)

			comps := rt.catalog.Components()
			statuses := make([]componentStatus, 0, len(comps))
			allReady := true
			for i := range comps {
				cs := componentStatus{ID: comps[i].ID}
				state, err := detector.Classify(cmd.Context(), &comps[i])
				if err != nil {
					cs.State = engine.StatePartiallyConfigured
					cs.Error = err.Error()
					allReady = false
				} else {
					cs.State = state
					if state != engine.StateReady {
						allReady = false
					}
				}
				statuses = append(statuses, cs)
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(statuses); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "COMPONENT\tSTATE\tDETAIL")
				for _, cs := range statuses {
					detail := "-"
					if cs.Error != "" {
						detail = cs.Error
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", cs.ID, cs.State, detail)
				}
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if !allReady {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	return cmd
}
