package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/platformlab/labctl/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var dotOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the deployment stage plan",
		Long: `Build the dependency graph from the manifest and print the ordered
stage-sets without touching the target cluster. Components in the same
stage deploy in parallel; stages run sequentially.`,
		Example: `  # Show the stage plan
  labctl plan

  # Emit the graph in Graphviz DOT format
  labctl plan --dot | dot -Tpng -o plan.png`,
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

			comps := rt.catalog.Components()
			stages, err := engine.NewStagePlanner().Build(comps)
			if err != nil {
				return preflight(err)
			}

			if dotOutput {
				fmt.Print(engine.ToDOT(stages, comps))
				return nil
			}

			if jsonOutput {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(stages)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAGE\tCOMPONENT\tDEPENDS ON\tOPTIONAL")
			byID := make(map[string]engine.Component, len(comps))
			for _, c := range comps {
				byID[c.ID] = c
			}
			for _, stage := range stages {
				for _, id := range stage.Components {
					c := byID[id]
					deps := "-"
					if len(c.DependsOn) > 0 {
						deps = fmt.Sprintf("%v", c.DependsOn)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%v\n", stage.Index, id, deps, c.Optional)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&dotOutput, "dot", false, "emit the graph in Graphviz DOT format")

	return cmd
}
