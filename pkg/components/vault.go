package components

import (
	"context"

	"github.com/platformlab/labctl/pkg/config"
	"github.com/platformlab/labctl/pkg/engine"
)

// installVault applies the vault manifests and, for a fresh store,
// initializes and unseals it with a single key share (the lab default).
// Every step is safe to repeat against a partially-configured target.
func (c *Catalog) installVault(cc config.ComponentConfig) engine.InstallFunc {
	return func(ctx context.Context) error {
		if err := c.store.ApplyFile(ctx, cc.ManifestPath); err != nil {
			return err
		}

		// The API only answers once the pod is up; poll instead of sleeping.
		outcome, err := c.prober.WaitFor(ctx, c.vaultAnswering(), engine.WaitOptions{
			Timeout: cc.ReadinessTimeout.Std(),
		})
		if outcome != engine.WaitReady {
			return err
		}

		health, err := c.vault.Health(ctx)
		if err != nil {
			return err
		}
		if !health.Initialized {
			init, err := c.vault.Init(ctx)
			if err != nil {
				return err
			}
			// Unseal material is surfaced once and never persisted.
			c.log.Warn().Str("root_token", init.RootToken).
				Msg("vault initialized; store the root token and unseal key now")
			for _, key := range init.Keys {
				if err := c.vault.Unseal(ctx, key); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// vaultAnswering reports whether the vault API responds at all, in any
// init/seal state.
func (c *Catalog) vaultAnswering() engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		if _, err := c.vault.Health(ctx); err != nil {
			return engine.ProbeNotReady, err
		}
		return engine.ProbeReady, nil
	}
}

// vaultHealthy requires an initialized, unsealed vault. A sealed vault that
// was initialized in an earlier run cannot be repaired without its unseal
// key, so that state fails hard rather than burning the whole timeout.
func (c *Catalog) vaultHealthy() engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		health, err := c.vault.Health(ctx)
		if err != nil {
			return engine.ProbeNotReady, err
		}
		if !health.Initialized {
			return engine.ProbeNotReady, nil
		}
		if health.Sealed {
			return engine.ProbeFailed, engine.NewPermanentError(
				"vault is sealed and requires its unseal key", nil).
				WithCode(engine.ErrCodeProbeFailed)
		}
		return engine.ProbeReady, nil
	}
}
