package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds install+readiness retries for transient errors.
const DefaultMaxAttempts = 2

// PhaseExecutor executes one component's install/configure phase, wrapping
// it with resume classification, retry policy, and structured result
// reporting.
type PhaseExecutor struct {
	classifier Classifier
	prober     *StateProber
	log        zerolog.Logger

	// maxAttempts is the default attempt budget for components that do not
	// set their own.
	maxAttempts int
}

// NewPhaseExecutor creates a phase executor.
func NewPhaseExecutor(classifier Classifier, prober *StateProber, log zerolog.Logger) *PhaseExecutor {
	return &PhaseExecutor{
		classifier:  classifier,
		prober:      prober,
		log:         log,
		maxAttempts: DefaultMaxAttempts,
	}
}

// WithMaxAttempts overrides the default attempt budget.
func (e *PhaseExecutor) WithMaxAttempts(n int) *PhaseExecutor {
	if n > 0 {
		e.maxAttempts = n
	}
	return e
}

// Execute runs the component's phase to a terminal PhaseResult.
//
// Already-ready components return immediately with no side effect: re-running
// the whole pipeline never re-creates a healthy component. Otherwise the
// install runs with create-or-update semantics and the readiness predicate
// is polled with a bounded timeout. Transient install errors are retried up
// to the attempt budget; readiness timeouts and permanent errors are not.
func (e *PhaseExecutor) Execute(ctx context.Context, c *Component) *PhaseResult {
	started := time.Now()
	log := e.log.With().Str("component", c.ID).Logger()

	result := &PhaseResult{
		ComponentID: c.ID,
		StartedAt:   started,
	}

	class, err := e.classifier.Classify(ctx, c)
	if err != nil {
		// A permanent classification error (no readiness predicate, rejected
		// config) cannot be repaired by installing; fail the phase.
		if IsPermanent(err) {
			result.Status = PhaseStatusFailed
			result.Error = asDeployError(err, c.ID)
			log.Error().Err(result.Error).Msg("component phase failed")
			e.finish(result)
			return result
		}
		// Transient inspection failures are not fatal: installing is safe
		// against any starting state, so fall through and repair.
		log.Warn().Err(err).Msg("state classification failed, attempting repair")
		class = StatePartiallyConfigured
	}

	if class == StateReady {
		log.Info().Msg("component already ready, skipping install")
		result.Status = PhaseStatusAlreadyReady
		e.finish(result)
		return result
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		log.Info().Int("attempt", attempt).Str("state", string(class)).
			Msg("installing component")

		if err := c.Install(ctx); err != nil {
			lastErr = err
			if !IsRetryable(err) || attempt == maxAttempts {
				break
			}
			log.Warn().Err(err).Int("attempt", attempt).
				Msg("transient install failure, retrying")
			continue
		}

		outcome, waitErr := e.prober.WaitFor(ctx, c.Readiness, WaitOptions{
			Timeout: c.ReadinessTimeout,
		})
		if outcome == WaitReady {
			if class == StateAbsent {
				result.Status = PhaseStatusCreated
			} else {
				result.Status = PhaseStatusRepaired
			}
			log.Info().Str("status", string(result.Status)).
				Int("attempts", attempt).Msg("component ready")
			e.finish(result)
			return result
		}

		lastErr = waitErr
		// A readiness timeout or hard probe failure is terminal at this
		// layer, never retried.
		break
	}

	result.Status = PhaseStatusFailed
	result.Error = asDeployError(lastErr, c.ID)
	log.Error().Err(result.Error).Msg("component phase failed")
	e.finish(result)
	return result
}

// finish stamps durations on a completed result.
func (e *PhaseExecutor) finish(r *PhaseResult) {
	r.Duration = time.Since(r.StartedAt)
	r.DurationMs = r.Duration.Milliseconds()
}

// asDeployError coerces an arbitrary error into a classified DeployError.
func asDeployError(err error, componentID string) *DeployError {
	if err == nil {
		return NewPermanentError("phase failed without error detail", nil).
			WithCode(ErrCodeInternal).
			WithComponent(componentID)
	}
	if de, ok := err.(*DeployError); ok {
		if de.Component == "" {
			de.Component = componentID
		}
		return de
	}
	return NewPermanentError("phase failed", err).WithComponent(componentID)
}
