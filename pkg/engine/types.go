package engine

import (
	"context"
	"time"
)

// InstallFunc installs or repairs a component on the target. It must have
// create-or-update semantics: calling it against a partially-configured
// target is safe and converges toward the ready state.
type InstallFunc func(ctx context.Context) error

// ReadinessPredicate is a side-effect-free health check for a component.
// Polling may invoke it hundreds of times per run.
type ReadinessPredicate func(ctx context.Context) (ProbeState, error)

// Component is one deployable unit of the platform.
// Components are declared once at graph-construction time and never
// mutated during a run.
type Component struct {
	// ID is the unique identifier for this component (e.g., "vault").
	ID string `json:"id"`

	// Name is the human-readable name.
	Name string `json:"name,omitempty"`

	// DependsOn lists component ids that must be healthy before this
	// component starts.
	DependsOn []string `json:"depends_on,omitempty"`

	// Optional marks components whose failure does not abort the run.
	Optional bool `json:"optional,omitempty"`

	// Install is the idempotent install/configure operation.
	Install InstallFunc `json:"-"`

	// Exists reports whether the component's resources exist at all,
	// regardless of health. Used by the resume detector to tell Absent
	// from PartiallyConfigured. When nil, any non-ready component is
	// treated as partially configured.
	Exists func(ctx context.Context) (bool, error) `json:"-"`

	// Readiness is the readiness predicate polled after installing.
	Readiness ReadinessPredicate `json:"-"`

	// ReadinessTimeout bounds the post-install readiness wait.
	// Zero means the executor default.
	ReadinessTimeout time.Duration `json:"readiness_timeout,omitempty"`

	// MaxAttempts bounds install+readiness retries for transient failures.
	// Zero means the executor default.
	MaxAttempts int `json:"max_attempts,omitempty"`
}

// StageSet is a batch of components with no dependency relationships among
// them, eligible to deploy concurrently. All dependencies of a component in
// stage k live in stages 0..k-1.
type StageSet struct {
	// Index is the stage position in execution order.
	Index int `json:"index"`

	// Components are the component ids in this stage, sorted for
	// reproducible logs.
	Components []string `json:"components"`
}

// PhaseResult is the outcome of executing one component's phase.
// It is created once per component per run and immutable after creation.
type PhaseResult struct {
	// ComponentID is the component this result belongs to.
	ComponentID string `json:"component_id"`

	// Status is the terminal phase status.
	Status PhaseStatus `json:"status"`

	// Attempts is how many install+readiness attempts were made.
	// Zero for components that were skipped or already ready.
	Attempts int `json:"attempts"`

	// StartedAt is when the phase started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total phase time.
	Duration time.Duration `json:"duration"`

	// DurationMs is the duration in milliseconds for machine consumers.
	DurationMs int64 `json:"duration_ms"`

	// Error is the classified error for failed or skipped phases.
	Error *DeployError `json:"error,omitempty"`
}

// RunReport is the full set of phase results plus the overall run outcome.
// It always lists every component, including skipped ones, so a failure's
// downstream blast radius is explicit.
type RunReport struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// Duration is the total run time.
	Duration time.Duration `json:"duration"`

	// DurationMs is the duration in milliseconds for machine consumers.
	DurationMs int64 `json:"duration_ms"`

	// Stages are the stage-sets in execution order.
	Stages []StageSet `json:"stages"`

	// Results holds one result per component, keyed by component id.
	Results map[string]*PhaseResult `json:"results"`
}

// WaitOptions configures a state prober call.
type WaitOptions struct {
	// Timeout bounds the total wait. Required.
	Timeout time.Duration

	// InitialInterval is the first poll interval. Defaults to 2s.
	InitialInterval time.Duration

	// MaxInterval caps the backed-off poll interval. Defaults to 15s.
	MaxInterval time.Duration
}

// Executor runs a single component's phase. Implemented by PhaseExecutor;
// the interface exists so the scheduler can be tested with doubles.
type Executor interface {
	Execute(ctx context.Context, c *Component) *PhaseResult
}

// Classifier inspects a component's current target state.
// Implemented by the resume detector.
type Classifier interface {
	Classify(ctx context.Context, c *Component) (StateClass, error)
}
