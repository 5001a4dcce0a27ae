package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// StageScheduler executes stage-sets in order, running every component
// within a stage concurrently through the phase executor. Stage-sets execute
// strictly sequentially relative to each other, which is the mechanism that
// enforces the dependency ordering invariant.
type StageScheduler struct {
	// maxParallel is the maximum number of concurrent workers per stage.
	maxParallel int

	executor Executor
	log      zerolog.Logger

	mu      sync.Mutex
	results map[string]*PhaseResult
}

// NewStageScheduler creates a stage scheduler.
func NewStageScheduler(maxParallel int, executor Executor, log zerolog.Logger) *StageScheduler {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &StageScheduler{
		maxParallel: maxParallel,
		executor:    executor,
		log:         log,
		results:     make(map[string]*PhaseResult),
	}
}

// Run executes the plan and returns the full run report. Every component
// appears in the report exactly once, including components skipped because a
// required dependency failed.
//
// Partial-failure policy: a failed non-optional component stops advancement
// past its stage (downstream dependencies are unmet); in-flight siblings in
// the same stage are allowed to finish. Failed optional components degrade
// the run to partial failure but do not halt it.
func (s *StageScheduler) Run(ctx context.Context, stages []StageSet, components []Component) *RunReport {
	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Stages:    stages,
		Results:   make(map[string]*PhaseResult, len(components)),
	}

	byID := make(map[string]*Component, len(components))
	for i := range components {
		byID[components[i].ID] = &components[i]
	}

	log := s.log.With().Str("run_id", report.RunID).Logger()
	halted := false

	for _, stage := range stages {
		if ctx.Err() != nil {
			s.skipStage(stage, "run cancelled", ErrCodeInternal)
			continue
		}
		if halted {
			s.skipStage(stage, "upstream dependency failed", ErrCodeDependencyFailed)
			continue
		}

		log.Info().Int("stage", stage.Index).
			Strs("components", stage.Components).
			Msg("starting stage")

		s.runStage(ctx, stage, byID)

		for _, id := range stage.Components {
			r := s.result(id)
			if r == nil || r.Status != PhaseStatusFailed {
				continue
			}
			if byID[id].Optional {
				log.Warn().Str("component", id).
					Msg("optional component failed, continuing")
				continue
			}
			log.Error().Str("component", id).
				Msg("required component failed, halting pipeline")
			halted = true
		}
	}

	s.mu.Lock()
	for id, r := range s.results {
		report.Results[id] = r
	}
	s.mu.Unlock()

	report.Duration = time.Since(report.StartedAt)
	report.DurationMs = report.Duration.Milliseconds()
	report.Status = deriveRunStatus(report.Results, byID)

	log.Info().Str("status", string(report.Status)).
		Dur("duration", report.Duration).
		Msg("run complete")

	return report
}

// runStage executes one stage's components through a bounded worker pool.
// Each worker owns its phase end to end, so no component's install or
// readiness wait blocks a sibling.
func (s *StageScheduler) runStage(ctx context.Context, stage StageSet, byID map[string]*Component) {
	workers := s.maxParallel
	if len(stage.Components) < workers {
		workers = len(stage.Components)
	}

	queue := make(chan *Component, len(stage.Components))
	for _, id := range stage.Components {
		queue <- byID[id]
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range queue {
				if ctx.Err() != nil {
					s.store(skippedResult(c.ID, "run cancelled", ErrCodeInternal))
					continue
				}
				s.store(s.executor.Execute(ctx, c))
			}
		}()
	}
	wg.Wait()
}

// skipStage records a skipped result for every component in a stage.
func (s *StageScheduler) skipStage(stage StageSet, reason, code string) {
	for _, id := range stage.Components {
		s.log.Warn().Str("component", id).Msg("skipping component: " + reason)
		s.store(skippedResult(id, reason, code))
	}
}

func (s *StageScheduler) store(r *PhaseResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.ComponentID] = r
}

func (s *StageScheduler) result(id string) *PhaseResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[id]
}

// skippedResult builds the terminal result for a never-attempted component.
func skippedResult(id, reason, code string) *PhaseResult {
	now := time.Now()
	return &PhaseResult{
		ComponentID: id,
		Status:      PhaseStatusSkipped,
		StartedAt:   now,
		Error: NewPermanentError(reason, nil).
			WithCode(code).
			WithComponent(id),
	}
}

// deriveRunStatus folds per-component results into the overall run status.
func deriveRunStatus(results map[string]*PhaseResult, byID map[string]*Component) RunStatus {
	status := RunStatusSuccess
	for id, r := range results {
		switch r.Status {
		case PhaseStatusFailed:
			c := byID[id]
			if c != nil && c.Optional {
				if status == RunStatusSuccess {
					status = RunStatusPartialFailure
				}
			} else {
				return RunStatusFailure
			}
		case PhaseStatusSkipped:
			// Skips only happen downstream of a required failure or a
			// cancellation, either way the run did not succeed.
			status = RunStatusFailure
		}
	}
	return status
}
