package engine

import (
	"context"

	"github.com/rs/zerolog"
)

// ResumeDetector classifies a component's current state on the target
// before its phase runs. Classification drives the skip/repair/create
// decision: a ready component is left alone, an existing-but-unhealthy
// component is repaired, an absent one is created.
type ResumeDetector struct {
	log zerolog.Logger
}

// NewResumeDetector creates a resume detector.
func NewResumeDetector(log zerolog.Logger) *ResumeDetector {
	return &ResumeDetector{log: log}
}

// Classify inspects the component's live state. Ready requires the full
// readiness predicate to hold; mere existence of resources is never enough,
// so an unhealthy or misconfigured component is always repaired.
func (d *ResumeDetector) Classify(ctx context.Context, c *Component) (StateClass, error) {
	if c.Readiness == nil {
		return StateAbsent, NewPermanentError(
			"component has no readiness predicate", nil).
			WithCode(ErrCodeConfigInvalid).
			WithComponent(c.ID)
	}

	state, err := c.Readiness(ctx)
	if state == ProbeReady {
		d.log.Debug().Str("component", c.ID).Msg("component already ready")
		return StateReady, nil
	}

	// A hard predicate failure still tells us the resources are there.
	if state == ProbeFailed {
		d.log.Debug().Str("component", c.ID).Err(err).
			Msg("component present but failing its readiness check")
		return StatePartiallyConfigured, nil
	}

	if c.Exists == nil {
		return StatePartiallyConfigured, nil
	}

	exists, err := c.Exists(ctx)
	if err != nil {
		return StateAbsent, NewTransientError(
			"could not inspect component state", err).
			WithCode(ErrCodeNetwork).
			WithComponent(c.ID)
	}
	if !exists {
		return StateAbsent, nil
	}
	return StatePartiallyConfigured, nil
}
