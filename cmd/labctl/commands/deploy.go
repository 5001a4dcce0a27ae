package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		parallelism int
		trace       bool
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the platform",
		Long: `Deploy every component in the manifest, in dependency order.

This command:
  - Builds the dependency graph and stage plan
  - Classifies each component (absent, partially configured, ready)
  - Installs or repairs components in parallel within each stage
  - Waits for readiness with capped exponential backoff
  - Reconciles shared credentials between control planes
  - Records the run in history when configured

Already-healthy components are left untouched, so re-running after a
partial failure resumes where the previous run stopped.`,
		Example: `  # Deploy with the default manifest
  labctl deploy

  # Deploy a specific manifest with limited parallelism
  labctl deploy -c lab.yaml --parallelism 2

  # Deploy with span output and a live metrics endpoint
  labctl deploy --trace --metrics-addr :9464`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if parallelism > 0 {
				cfg.Parallelism = parallelism
			}

			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			telCfg := telemetry.DefaultConfig()
			telCfg.Tracing.Enabled = trace
			telCfg.Tracing.Exporter = "stdout"
			telCfg.Metrics.ListenAddr = metricsAddr
			if err := telCfg.Validate(); err != nil {
				return preflight(err)
			}

			tracer, err := telemetry.NewTracer(cmd.Context(), *telCfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := tracer.Shutdown(cmd.Context()); err != nil {
					rt.log.Warn().Err(err).Msg("trace exporter shutdown failed")
				}
			}()

			metrics, err := telemetry.NewMetrics(telCfg.Metrics)
			if err != nil {
				return err
			}
			rt.catalog.SetObserver(metrics)
			if metricsAddr != "" {
				go func() {
					if err := metrics.Serve(); err != nil {
						rt.log.Warn().Err(err).Msg("metrics listener stopped")
					}
				}()
			}

			opts := []engine.DriverOption{engine.WithMaxParallel(cfg.Parallelism)}
			if rt.history != nil {
				opts = append(opts, engine.WithRecorder(rt.history))
			}
			driver := engine.NewDriver(rt.log, opts...)

			log.Info().
				Str("platform", cfg.Platform).
				Int("components", len(cfg.Components)).
				Msg("Starting deployment")

			report, err := driver.Deploy(cmd.Context(), rt.catalog.Components())
			if err != nil {
				// Deploy errors are strictly pre-flight: nothing was touched.
				return preflight(err)
			}

			metrics.ObserveRun(string(report.Status), report.Duration)
			for _, r := range report.SortedResults() {
				metrics.ObservePhase(r.ComponentID, string(r.Status), r.Attempts, r.Duration)
			}

			if jsonOutput {
				if err := report.WriteJSON(os.Stdout); err != nil {
					return err
				}
			} else if err := report.WriteTable(os.Stdout); err != nil {
				return err
			}

			if code := report.Status.ExitCode(); code != 0 {
				return &ExitError{Code: code, Err: fmt.Errorf("deployment finished with status %s", report.Status)}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "max parallel phases per stage (0 uses the manifest value)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print spans for the run to stdout")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	return cmd
}
