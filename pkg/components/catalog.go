// Package components builds the deployable component set for the lab
// platform from a validated manifest. Each component couples an idempotent
// install (manifest apply plus control-plane configuration) with a
// side-effect-free readiness predicate.
package components

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/clients"
	"github.com/platformlab/labctl/pkg/config"
	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/secrets"
	"github.com/platformlab/labctl/pkg/target"
)

// Catalog wires manifest entries to install and readiness logic.
type Catalog struct {
	cfg   *config.Config
	store target.Store

	vault    *clients.Vault
	keycloak *clients.Keycloak
	boundary *clients.Boundary

	reconciler *secrets.Reconciler
	records    secrets.RecordStore

	prober *engine.StateProber
	log    zerolog.Logger
}

// New creates a component catalog.
func New(
	cfg *config.Config,
	store target.Store,
	vault *clients.Vault,
	keycloak *clients.Keycloak,
	boundary *clients.Boundary,
	records secrets.RecordStore,
	log zerolog.Logger,
) *Catalog {
	return &Catalog{
		cfg:        cfg,
		store:      store,
		vault:      vault,
		keycloak:   keycloak,
		boundary:   boundary,
		reconciler: secrets.NewReconciler(log),
		records:    records,
		prober:     engine.NewStateProber(log),
		log:        log,
	}
}

// SetObserver attaches a metrics observer to the secret reconciler.
func (c *Catalog) SetObserver(o secrets.Observer) {
	c.reconciler.SetObserver(o)
}

// Components builds the engine component set from the manifest.
func (c *Catalog) Components() []engine.Component {
	out := make([]engine.Component, 0, len(c.cfg.Components))
	for i := range c.cfg.Components {
		cc := c.cfg.Components[i]
		out = append(out, engine.Component{
			ID:               cc.ID,
			Name:             fmt.Sprintf("%s (%s)", cc.ID, cc.Kind),
			DependsOn:        cc.DependsOn,
			Optional:         cc.Optional,
			ReadinessTimeout: cc.ReadinessTimeout.Std(),
			Install:          c.installFor(cc),
			Readiness:        c.readinessFor(cc),
			Exists:           c.existsFor(cc),
		})
	}
	return out
}

// existsFor checks whether the component's backing workload exists at all.
func (c *Catalog) existsFor(cc config.ComponentConfig) func(ctx context.Context) (bool, error) {
	return func(ctx context.Context) (bool, error) {
		_, err := c.store.Get(ctx, cc.Workload.Kind, cc.Workload.Name, cc.Namespace)
		if err != nil {
			if errors.Is(err, target.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
}

// installFor builds the create-or-update install for a component kind.
func (c *Catalog) installFor(cc config.ComponentConfig) engine.InstallFunc {
	switch cc.Kind {
	case config.KindVault:
		return c.installVault(cc)
	case config.KindBoundary:
		return c.installBoundary(cc)
	default:
		// Keycloak and plain workloads converge through manifest apply
		// alone; their control planes self-configure from the manifests.
		return func(ctx context.Context) error {
			return c.store.ApplyFile(ctx, cc.ManifestPath)
		}
	}
}

// readinessFor builds the readiness predicate for a component kind.
func (c *Catalog) readinessFor(cc config.ComponentConfig) engine.ReadinessPredicate {
	switch cc.Kind {
	case config.KindVault:
		return c.allOf(c.workloadReady(cc), c.vaultHealthy())
	case config.KindKeycloak:
		return c.allOf(c.workloadReady(cc), c.keycloakServing())
	case config.KindBoundary:
		return c.allOf(c.workloadReady(cc), c.boundaryServing(), c.secretsInSync())
	default:
		return c.workloadReady(cc)
	}
}

// allOf combines predicates; the first non-ready answer wins.
func (c *Catalog) allOf(preds ...engine.ReadinessPredicate) engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		for _, p := range preds {
			state, err := p(ctx)
			if state != engine.ProbeReady {
				return state, err
			}
		}
		return engine.ProbeReady, nil
	}
}

// workloadReady checks replica counts on the backing workload.
func (c *Catalog) workloadReady(cc config.ComponentConfig) engine.ReadinessPredicate {
	return func(ctx context.Context) (engine.ProbeState, error) {
		res, err := c.store.Get(ctx, cc.Workload.Kind, cc.Workload.Name, cc.Namespace)
		if err != nil {
			if errors.Is(err, target.ErrNotFound) {
				return engine.ProbeNotReady, nil
			}
			return engine.ProbeNotReady, err
		}
		ready, err := target.WorkloadReady(res)
		if err != nil {
			return engine.ProbeFailed, err
		}
		if !ready {
			return engine.ProbeNotReady, nil
		}
		return engine.ProbeReady, nil
	}
}
