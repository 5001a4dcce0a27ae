package engine

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// scriptedExecutor returns canned results per component id and records the
// order components were handed to it.
type scriptedExecutor struct {
	mu       sync.Mutex
	statuses map[string]PhaseStatus
	executed []string
}

func (e *scriptedExecutor) Execute(ctx context.Context, c *Component) *PhaseResult {
	e.mu.Lock()
	e.executed = append(e.executed, c.ID)
	e.mu.Unlock()

	status, ok := e.statuses[c.ID]
	if !ok {
		status = PhaseStatusCreated
	}
	r := &PhaseResult{ComponentID: c.ID, Status: status, Attempts: 1}
	if status == PhaseStatusFailed {
		r.Error = NewPermanentError("scripted failure", nil).WithComponent(c.ID)
	}
	return r
}

func (e *scriptedExecutor) executedSet() map[string]bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	set := make(map[string]bool, len(e.executed))
	for _, id := range e.executed {
		set[id] = true
	}
	return set
}

func runPlan(t *testing.T, components []Component, exec Executor) *RunReport {
	t.Helper()
	stages, err := NewStagePlanner().Build(components)
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}
	return NewStageScheduler(4, exec, zerolog.Nop()).Run(context.Background(), stages, components)
}

func platformComponents() []Component {
	return []Component{
		{ID: "vault"},
		{ID: "keycloak", DependsOn: []string{"vault"}},
		{ID: "boundary", DependsOn: []string{"keycloak"}},
		{ID: "sandbox-a", DependsOn: []string{"boundary"}},
		{ID: "sandbox-b", DependsOn: []string{"boundary"}},
	}
}

// TestRunAllHealthy tests the clean first-run path: every component executes
// exactly once and the run succeeds
func TestRunAllHealthy(t *testing.T) {
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{}}
	report := runPlan(t, platformComponents(), exec)

	if report.Status != RunStatusSuccess {
		t.Errorf("Expected status %s, got %s", RunStatusSuccess, report.Status)
	}
	if report.Status.ExitCode() != 0 {
		t.Errorf("Expected exit code 0, got %d", report.Status.ExitCode())
	}
	if len(report.Results) != 5 {
		t.Errorf("Expected 5 results, got %d", len(report.Results))
	}
	if len(exec.executed) != 5 {
		t.Errorf("Expected 5 executions, got %d: %v", len(exec.executed), exec.executed)
	}
	if report.RunID == "" {
		t.Error("Expected a run id")
	}
}

// TestRunResumeMixedStates tests a resumed run where some components are
// already healthy and others need repair
func TestRunResumeMixedStates(t *testing.T) {
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{
		"vault":     PhaseStatusAlreadyReady,
		"keycloak":  PhaseStatusAlreadyReady,
		"boundary":  PhaseStatusRepaired,
		"sandbox-a": PhaseStatusCreated,
		"sandbox-b": PhaseStatusAlreadyReady,
	}}
	report := runPlan(t, platformComponents(), exec)

	if report.Status != RunStatusSuccess {
		t.Errorf("Expected status %s, got %s", RunStatusSuccess, report.Status)
	}
	if got := report.Results["boundary"].Status; got != PhaseStatusRepaired {
		t.Errorf("Expected boundary repaired, got %s", got)
	}
}

// TestRunRequiredFailureHaltsDownstream tests that a failed required
// component skips dependent stages but still reports every component
func TestRunRequiredFailureHaltsDownstream(t *testing.T) {
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{
		"keycloak": PhaseStatusFailed,
	}}
	report := runPlan(t, platformComponents(), exec)

	if report.Status != RunStatusFailure {
		t.Errorf("Expected status %s, got %s", RunStatusFailure, report.Status)
	}
	if report.Status.ExitCode() != 1 {
		t.Errorf("Expected exit code 1, got %d", report.Status.ExitCode())
	}
	if len(report.Results) != 5 {
		t.Fatalf("Expected every component in the report, got %d", len(report.Results))
	}

	executed := exec.executedSet()
	for _, id := range []string{"boundary", "sandbox-a", "sandbox-b"} {
		if executed[id] {
			t.Errorf("Component %s executed despite failed dependency", id)
		}
		r := report.Results[id]
		if r.Status != PhaseStatusSkipped {
			t.Errorf("Expected %s skipped, got %s", id, r.Status)
		}
		if r.Error == nil || r.Error.Code != ErrCodeDependencyFailed {
			t.Errorf("Expected %s error on %s, got %v", ErrCodeDependencyFailed, id, r.Error)
		}
	}
	if report.Results["vault"].Status != PhaseStatusCreated {
		t.Errorf("Upstream component should have completed, got %s", report.Results["vault"].Status)
	}
}

// TestRunSiblingsFinishWhenOneFails tests that an in-stage failure does not
// skip siblings in the same stage
func TestRunSiblingsFinishWhenOneFails(t *testing.T) {
	components := []Component{
		{ID: "base"},
		{ID: "svc-a", DependsOn: []string{"base"}},
		{ID: "svc-b", DependsOn: []string{"base"}},
	}
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{
		"svc-a": PhaseStatusFailed,
	}}
	report := runPlan(t, components, exec)

	if report.Status != RunStatusFailure {
		t.Errorf("Expected status %s, got %s", RunStatusFailure, report.Status)
	}
	if got := report.Results["svc-b"].Status; got != PhaseStatusCreated {
		t.Errorf("Sibling should finish its phase, got %s", got)
	}
}

// TestRunOptionalFailureDegrades tests that a failed optional component
// degrades the run to partial failure without halting it
func TestRunOptionalFailureDegrades(t *testing.T) {
	components := []Component{
		{ID: "vault"},
		{ID: "extras", DependsOn: []string{"vault"}, Optional: true},
		{ID: "boundary", DependsOn: []string{"vault"}},
		{ID: "sandbox", DependsOn: []string{"boundary"}},
	}
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{
		"extras": PhaseStatusFailed,
	}}
	report := runPlan(t, components, exec)

	if report.Status != RunStatusPartialFailure {
		t.Errorf("Expected status %s, got %s", RunStatusPartialFailure, report.Status)
	}
	if report.Status.ExitCode() != 1 {
		t.Errorf("Partial failure should exit non-zero, got %d", report.Status.ExitCode())
	}
	if got := report.Results["sandbox"].Status; got != PhaseStatusCreated {
		t.Errorf("Downstream of a healthy dependency should run, got %s", got)
	}
}

// TestRunCancelledContextSkips tests that a cancelled context marks
// unexecuted components skipped instead of hanging
func TestRunCancelledContextSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	components := platformComponents()
	stages, err := NewStagePlanner().Build(components)
	if err != nil {
		t.Fatalf("Build() returned error: %v", err)
	}

	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{}}
	report := NewStageScheduler(4, exec, zerolog.Nop()).Run(ctx, stages, components)

	if report.Status != RunStatusFailure {
		t.Errorf("Expected status %s, got %s", RunStatusFailure, report.Status)
	}
	if len(report.Results) != len(components) {
		t.Errorf("Expected every component reported, got %d", len(report.Results))
	}
	for id, r := range report.Results {
		if r.Status != PhaseStatusSkipped {
			t.Errorf("Expected %s skipped after cancellation, got %s", id, r.Status)
		}
		if ErrorCode(r.Error) == ErrCodeDependencyFailed {
			t.Errorf("Cancellation skip for %s misattributed to a dependency failure", id)
		}
		if !strings.Contains(r.Error.Error(), "run cancelled") {
			t.Errorf("Expected cancellation reason on %s, got %q", id, r.Error.Error())
		}
	}
}

// TestDeployCycleIsPreflight tests that the driver reports a cycle before
// executing anything
func TestDeployCycleIsPreflight(t *testing.T) {
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{}}
	driver := NewDriver(zerolog.Nop(), WithExecutor(exec))

	report, err := driver.Deploy(context.Background(), []Component{
		{ID: "a", DependsOn: []string{"b"}},
		{ID: "b", DependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if report != nil {
		t.Errorf("Expected nil report on pre-flight failure, got %v", report)
	}
	if len(exec.executed) != 0 {
		t.Errorf("Expected no executions on pre-flight failure, got %v", exec.executed)
	}
}

// recordingStore captures the report handed to the recorder.
type recordingStore struct {
	recorded *RunReport
}

func (r *recordingStore) RecordRun(ctx context.Context, report *RunReport) error {
	r.recorded = report
	return nil
}

// TestDeployRecordsRun tests that a completed run is handed to the recorder
func TestDeployRecordsRun(t *testing.T) {
	exec := &scriptedExecutor{statuses: map[string]PhaseStatus{}}
	rec := &recordingStore{}
	driver := NewDriver(zerolog.Nop(), WithExecutor(exec), WithRecorder(rec))

	report, err := driver.Deploy(context.Background(), []Component{{ID: "vault"}})
	if err != nil {
		t.Fatalf("Deploy() returned error: %v", err)
	}
	if rec.recorded == nil {
		t.Fatal("Expected the run to be recorded")
	}
	if rec.recorded.RunID != report.RunID {
		t.Errorf("Recorded run id %s does not match report %s", rec.recorded.RunID, report.RunID)
	}
}

// nilErrorExecutor returns failed results without error detail.
type nilErrorExecutor struct{}

func (e *nilErrorExecutor) Execute(ctx context.Context, c *Component) *PhaseResult {
	return &PhaseResult{ComponentID: c.ID, Status: PhaseStatusFailed}
}

// TestDeployFailedResultWithoutError tests that a failed result carrying no
// error detail still flows through span recording and status derivation
func TestDeployFailedResultWithoutError(t *testing.T) {
	driver := NewDriver(zerolog.Nop(), WithExecutor(&nilErrorExecutor{}))

	report, err := driver.Deploy(context.Background(), []Component{{ID: "vault"}})
	if err != nil {
		t.Fatalf("Deploy() returned error: %v", err)
	}
	if report.Status != RunStatusFailure {
		t.Errorf("Expected status %s, got %s", RunStatusFailure, report.Status)
	}
	if got := report.Results["vault"].Status; got != PhaseStatusFailed {
		t.Errorf("Expected vault %s, got %s", PhaseStatusFailed, got)
	}
}
