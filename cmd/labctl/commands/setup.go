package commands

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/clients"
	"github.com/platformlab/labctl/pkg/components"
	"github.com/platformlab/labctl/pkg/config"
	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/secrets"
	"github.com/platformlab/labctl/pkg/stores"
	"github.com/platformlab/labctl/pkg/target"
	"github.com/platformlab/labctl/pkg/telemetry"
)

// runtime bundles everything a command needs after config is loaded.
type runtime struct {
	cfg     *config.Config
	catalog *components.Catalog
	history *stores.SQLiteStore
	log     zerolog.Logger
}

// Close releases the history store if one was opened.
func (r *runtime) Close() {
	if r.history != nil {
		if err := r.history.Close(); err != nil {
			r.log.Warn().Err(err).Msg("closing history store")
		}
	}
}

// preflight wraps configuration and graph errors in the pre-flight exit
// code so callers can tell them apart from execution failures.
func preflight(err error) error {
	return &ExitError{Code: engine.ExitCodePreflight, Err: err}
}

// loadConfig loads and validates the manifest from the --config flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, preflight(err)
	}
	return cfg, nil
}

// newRuntime wires clients, the target store, and the component catalog
// from a validated manifest. Credentials come from the environment only.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	creds, err := config.LoadCredentials()
	if err != nil {
		return nil, preflight(err)
	}

	logCfg := telemetry.LoggingConfig{Level: "info", Format: "console", Output: "stderr"}
	if verbose {
		logCfg.Level = "debug"
	}
	if jsonOutput {
		// Keep stderr machine-readable alongside --json stdout output.
		logCfg.Format = "json"
	}
	logger, err := telemetry.NewLogger(logCfg)
	if err != nil {
		return nil, err
	}

	store := target.NewKubectlStore(logger)

	vault := clients.NewVault(clients.VaultConfig{
		BaseURL:  cfg.Vault.Endpoint,
		Insecure: cfg.InsecureTLS,
	}, logger)

	keycloak := clients.NewKeycloak(clients.KeycloakConfig{
		BaseURL:       cfg.Keycloak.Endpoint,
		Realm:         cfg.Keycloak.Realm,
		AdminUser:     cfg.Keycloak.AdminUser,
		AdminPassword: creds.KeycloakAdminPassword,
		Insecure:      cfg.InsecureTLS,
	}, logger)

	boundary := clients.NewBoundary(clients.BoundaryConfig{
		BaseURL:           cfg.Boundary.Endpoint,
		AdminAuthMethodID: cfg.Boundary.AdminAuthMethodID,
		AdminUser:         cfg.Boundary.AdminUser,
		AdminPassword:     creds.BoundaryAdminPassword,
		Insecure:          cfg.InsecureTLS,
	}, logger)

	rt := &runtime{cfg: cfg, log: logger}

	var records secrets.RecordStore
	if cfg.History.Path != "" {
		history, err := stores.Open(ctx, cfg.History.Path)
		if err != nil {
			return nil, preflight(err)
		}
		rt.history = history
		records = history
	}

	rt.catalog = components.New(cfg, store, vault, keycloak, boundary, records, logger)
	return rt, nil
}
