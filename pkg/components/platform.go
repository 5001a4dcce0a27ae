package components

import (
	"context"

	"github.com/platformlab/labctl/pkg/clients"
	"github.com/platformlab/labctl/pkg/config"
	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/secrets"
)

// keycloakServing reports whether the identity provider serves its realm.
func (c *Catalog) keycloakServing() engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		if err := c.keycloak.Ping(ctx); err != nil {
			return engine.ProbeNotReady, err
		}
		return engine.ProbeReady, nil
	}
}

// boundaryServing reports whether the gateway control plane answers.
func (c *Catalog) boundaryServing() engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		if err := c.boundary.Ping(ctx); err != nil {
			return engine.ProbeNotReady, err
		}
		return engine.ProbeReady, nil
	}
}

// installBoundary applies the gateway manifests, waits for the control
// plane to answer, then reconciles every shared secret so the gateway can
// authenticate against the identity provider.
func (c *Catalog) installBoundary(cc config.ComponentConfig) engine.InstallFunc {
	return func(ctx context.Context) error {
		if err := c.store.ApplyFile(ctx, cc.ManifestPath); err != nil {
			return err
		}

		outcome, err := c.prober.WaitFor(ctx, c.boundaryServing(), engine.WaitOptions{
			Timeout: cc.ReadinessTimeout.Std(),
		})
		if outcome != engine.WaitReady {
			return err
		}

		return c.SyncSecrets(ctx)
	}
}

// SyncSecrets reconciles every declared shared secret. It is invoked from
// the gateway's install and is also the backing for `labctl sync-secrets`.
func (c *Catalog) SyncSecrets(ctx context.Context) error {
	for _, sc := range c.cfg.Secrets {
		record, err := c.loadRecord(ctx, sc.LogicalName)
		if err != nil {
			return err
		}

		owner := &clients.ClientSecretOwner{
			Keycloak: c.keycloak,
			ClientID: sc.ClientID,
		}
		consumer := &clients.OIDCSecretConsumer{
			Boundary:     c.boundary,
			AuthMethodID: sc.AuthMethodID,
			Keycloak:     c.keycloak,
			ClientID:     sc.ClientID,
		}

		if err := c.reconciler.Reconcile(ctx, record, owner, consumer); err != nil {
			return err
		}
		if c.records != nil {
			if err := c.records.SaveRecord(ctx, record); err != nil {
				c.log.Warn().Err(err).Str("secret", sc.LogicalName).
					Msg("could not persist secret record")
			}
		}
	}
	return nil
}

// secretsInSync is the drift gate in the gateway's readiness predicate: a
// gateway whose configured credential disagrees with the identity provider
// is partially configured and gets repaired, even when its pods are healthy.
func (c *Catalog) secretsInSync() engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		for _, sc := range c.cfg.Secrets {
			record, err := c.loadRecord(ctx, sc.LogicalName)
			if err != nil {
				return engine.ProbeNotReady, err
			}
			if record.State != secrets.StateSynced {
				return engine.ProbeNotReady, nil
			}

			value, err := c.keycloak.ClientSecret(ctx, sc.ClientID)
			if err != nil {
				return engine.ProbeNotReady, err
			}
			if secrets.Fingerprint(value) != record.OwnerFingerprint {
				c.log.Info().Str("secret", sc.LogicalName).
					Msg("owner rotated credential since last sync")
				return engine.ProbeNotReady, nil
			}

			am, err := c.boundary.GetAuthMethod(ctx, sc.AuthMethodID)
			if err != nil {
				return engine.ProbeNotReady, err
			}
			if "hmac:"+am.ClientSecretHmac != record.ConsumerFingerprint {
				c.log.Info().Str("secret", sc.LogicalName).
					Msg("consumer credential changed since last sync")
				return engine.ProbeNotReady, nil
			}
		}
		return engine.ProbeReady, nil
	}
}

// loadRecord fetches the persisted record for a logical name, or starts a
// fresh unsynced one.
func (c *Catalog) loadRecord(ctx context.Context, name string) (*secrets.Record, error) {
	if c.records != nil {
		record, err := c.records.LoadRecord(ctx, name)
		if err != nil {
			return nil, err
		}
		if record != nil {
			return record, nil
		}
	}
	return &secrets.Record{LogicalName: name, State: secrets.StateUnsynced}, nil
}
