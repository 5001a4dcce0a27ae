package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSyncSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-secrets",
		Short: "Reconcile shared credentials",
		Long: `Reconcile every shared credential declared in the manifest between
its owner (the identity provider) and its consumer (the access
gateway), without running a full deployment.

For each credential the owner's current value is fetched, pushed to
the consumer when fingerprints disagree, and verified with a
functional authentication probe. A credential that still fails its
probe after the resync is reported as unresolved drift.`,
		Example: `  # Reconcile all declared credentials
  labctl sync-secrets`,
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

			if len(cfg.Secrets) == 0 {
				log.Info().Msg("No shared credentials declared")
				return nil
			}

			if err := rt.catalog.SyncSecrets(cmd.Context()); err != nil {
				return &ExitError{Code: 1, Err: err}
			}
			log.Info().Int("secrets", len(cfg.Secrets)).Msg("All credentials in sync")
			return nil
		},
	}

	return cmd
}
