package engine

import (
	"encoding/json"
	"fmt"
)

// PhaseStatus represents the outcome of executing one component's phase.
type PhaseStatus string

const (
	// PhaseStatusCreated indicates the component was absent and was installed.
	PhaseStatusCreated PhaseStatus = "created"

	// PhaseStatusRepaired indicates the component existed but was unhealthy
	// or misconfigured and was brought back to a ready state.
	PhaseStatusRepaired PhaseStatus = "repaired"

	// PhaseStatusAlreadyReady indicates the component was already healthy
	// and no side effect was performed (resume semantics).
	PhaseStatusAlreadyReady PhaseStatus = "already_ready"

	// PhaseStatusFailed indicates the phase failed after exhausting retries.
	PhaseStatusFailed PhaseStatus = "failed"

	// PhaseStatusSkipped indicates the component was never attempted because
	// an upstream dependency failed.
	PhaseStatusSkipped PhaseStatus = "skipped"
)

// IsHealthy returns true if the status represents a component that reached
// a ready state, whether or not a side effect was required.
func (s PhaseStatus) IsHealthy() bool {
	return s == PhaseStatusCreated || s == PhaseStatusRepaired ||
		s == PhaseStatusAlreadyReady
}

// IsTerminal returns true if the status represents a final state.
func (s PhaseStatus) IsTerminal() bool {
	return s == PhaseStatusCreated || s == PhaseStatusRepaired ||
		s == PhaseStatusAlreadyReady || s == PhaseStatusFailed ||
		s == PhaseStatusSkipped
}

// Validate checks if the phase status is valid.
func (s PhaseStatus) Validate() error {
	switch s {
	case PhaseStatusCreated, PhaseStatusRepaired, PhaseStatusAlreadyReady,
		PhaseStatusFailed, PhaseStatusSkipped:
		return nil
	default:
		return fmt.Errorf("invalid phase status: %s", s)
	}
}

// RunStatus represents the overall status of a deployment run.
type RunStatus string

const (
	// RunStatusSuccess indicates every component reached a healthy state.
	RunStatusSuccess RunStatus = "success"

	// RunStatusPartialFailure indicates only optional components failed;
	// the platform is usable but degraded.
	RunStatusPartialFailure RunStatus = "partial_failure"

	// RunStatusFailure indicates a required component failed; downstream
	// components were skipped.
	RunStatusFailure RunStatus = "failure"
)

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusSuccess, RunStatusPartialFailure, RunStatusFailure:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// ExitCode maps a run status to the process exit contract: 0 for success,
// 1 for any failed component. Pre-flight failures (cycles, bad config) use
// ExitCodePreflight so callers can tell "nothing was touched" apart from
// "partial deployment occurred".
func (s RunStatus) ExitCode() int {
	if s == RunStatusSuccess {
		return 0
	}
	return 1
}

// ExitCodePreflight is returned when graph construction or configuration
// validation fails before any deployment action is taken.
const ExitCodePreflight = 2

// StateClass classifies a component's current state on the target before
// its phase runs, driving skip/repair/create decisions.
type StateClass string

const (
	// StateAbsent indicates the component's resources do not exist.
	StateAbsent StateClass = "absent"

	// StatePartiallyConfigured indicates resources exist but the readiness
	// predicate does not hold. Existing-but-unhealthy is always repaired,
	// never left alone.
	StatePartiallyConfigured StateClass = "partially_configured"

	// StateReady indicates the full readiness predicate holds.
	StateReady StateClass = "ready"
)

// Validate checks if the state class is valid.
func (c StateClass) Validate() error {
	switch c {
	case StateAbsent, StatePartiallyConfigured, StateReady:
		return nil
	default:
		return fmt.Errorf("invalid state class: %s", c)
	}
}

// ProbeState is the result of one readiness predicate evaluation.
type ProbeState string

const (
	// ProbeReady indicates the predicate holds.
	ProbeReady ProbeState = "ready"

	// ProbeNotReady indicates the predicate does not hold yet; the prober
	// will sleep and retry.
	ProbeNotReady ProbeState = "not_ready"

	// ProbeFailed indicates a hard failure; the prober returns immediately
	// without waiting out the timeout.
	ProbeFailed ProbeState = "failed"
)

// MarshalJSON implements custom JSON marshaling for type-safe serialization.
func (s PhaseStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *PhaseStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = PhaseStatus(str)
	return s.Validate()
}

// MarshalJSON implements custom JSON marshaling for type-safe serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}
