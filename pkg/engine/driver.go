package engine

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReportRecorder persists completed run reports. Recording is best-effort:
// a recorder failure never fails a deployment.
type ReportRecorder interface {
	RecordRun(ctx context.Context, report *RunReport) error
}

// Driver is the top-level orchestration entry point. It builds the stage
// plan, runs the scheduler, and aggregates the final report.
type Driver struct {
	log         zerolog.Logger
	maxParallel int
	executor    Executor
	recorder    ReportRecorder
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithMaxParallel sets the per-stage worker count.
func WithMaxParallel(n int) DriverOption {
	return func(d *Driver) { d.maxParallel = n }
}

// WithExecutor overrides the phase executor, mainly for tests.
func WithExecutor(e Executor) DriverOption {
	return func(d *Driver) { d.executor = e }
}

// WithRecorder attaches a run-history recorder.
func WithRecorder(r ReportRecorder) DriverOption {
	return func(d *Driver) { d.recorder = r }
}

// NewDriver creates an orchestration driver.
func NewDriver(log zerolog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{log: log}
	for _, opt := range opts {
		opt(d)
	}
	if d.executor == nil {
		prober := NewStateProber(log)
		d.executor = NewPhaseExecutor(NewResumeDetector(log), prober, log)
	}
	return d
}

// Plan builds the ordered stage-sets without touching the target.
func (d *Driver) Plan(components []Component) ([]StageSet, error) {
	return NewStagePlanner().Build(components)
}

// Deploy plans and executes the full component set. A non-nil error is
// strictly pre-flight (cycle or invalid graph): nothing was touched on the
// target. Execution failures are reported through the RunReport instead.
func (d *Driver) Deploy(ctx context.Context, components []Component) (*RunReport, error) {
	stages, err := d.Plan(components)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("labctl/engine").Start(ctx, "deploy.run",
		trace.WithAttributes(
			attribute.Int("components", len(components)),
			attribute.Int("stages", len(stages)),
		))
	defer span.End()

	scheduler := NewStageScheduler(d.maxParallel, &tracingExecutor{next: d.executor}, d.log)
	report := scheduler.Run(ctx, stages, components)

	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	if report.Status != RunStatusSuccess {
		span.SetStatus(codes.Error, string(report.Status))
	}

	if d.recorder != nil {
		if err := d.recorder.RecordRun(ctx, report); err != nil {
			d.log.Warn().Err(err).Str("run_id", report.RunID).
				Msg("failed to record run history")
		}
	}

	return report, nil
}

// tracingExecutor wraps an executor with a span per component phase.
type tracingExecutor struct {
	next Executor
}

func (t *tracingExecutor) Execute(ctx context.Context, c *Component) *PhaseResult {
	ctx, span := otel.Tracer("labctl/engine").Start(ctx, "deploy.phase",
		trace.WithAttributes(attribute.String("component", c.ID)))
	defer span.End()

	result := t.next.Execute(ctx, c)

	span.SetAttributes(
		attribute.String("phase.status", string(result.Status)),
		attribute.Int("phase.attempts", result.Attempts),
	)
	if result.Status == PhaseStatusFailed {
		msg := "phase failed"
		if result.Error != nil {
			msg = result.Error.Error()
		}
		span.SetStatus(codes.Error, msg)
	}
	return result
}
