package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Default probe intervals. Capped exponential backoff keeps load on the
// target low while bounding worst-case detection latency.
const (
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 15 * time.Second
	DefaultProbeTimeout    = 5 * time.Minute
)

// WaitOutcome is the terminal result of a prober call.
type WaitOutcome string

const (
	// WaitReady indicates the predicate was observed true.
	WaitReady WaitOutcome = "ready"

	// WaitTimedOut indicates the timeout elapsed without the predicate
	// ever holding.
	WaitTimedOut WaitOutcome = "timed_out"

	// WaitFailed indicates the predicate reported a hard failure.
	WaitFailed WaitOutcome = "failed"
)

// StateProber polls a readiness predicate until it holds, fails hard, or a
// timeout elapses. It is the only engine piece that waits on the target:
// everything that used to be a fixed sleep goes through WaitFor instead.
type StateProber struct {
	log zerolog.Logger

	// sleep is swapped out in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewStateProber creates a state prober that logs through the given logger.
func NewStateProber(log zerolog.Logger) *StateProber {
	return &StateProber{
		log:   log,
		sleep: sleepCtx,
	}
}

// WaitFor evaluates the predicate in a bounded backoff loop.
//
// Guarantees: WaitReady is only returned after the predicate has been
// observed true in this call, a hard predicate failure returns immediately,
// and the call never blocks longer than opts.Timeout plus one poll interval.
// Context cancellation is honored between evaluations.
func (p *StateProber) WaitFor(
	ctx context.Context,
	predicate ReadinessPredicate,
	opts WaitOptions,
) (WaitOutcome, error) {
	if predicate == nil {
		return WaitFailed, NewPermanentError(
			"no readiness predicate to wait on", nil).
			WithCode(ErrCodeConfigInvalid)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = DefaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}

	deadline := time.Now().Add(opts.Timeout)
	interval := opts.InitialInterval

	for attempt := 1; ; attempt++ {
		state, err := predicate(ctx)
		switch state {
		case ProbeReady:
			p.log.Debug().Int("attempt", attempt).Msg("readiness predicate holds")
			return WaitReady, nil
		case ProbeFailed:
			if err == nil {
				err = NewPermanentError("readiness predicate failed", nil).
					WithCode(ErrCodeProbeFailed)
			}
			return WaitFailed, err
		}

		if err != nil {
			// NotReady with detail is informational; keep polling.
			p.log.Debug().Err(err).Int("attempt", attempt).Msg("target not ready yet")
		}

		if time.Now().After(deadline) {
			return WaitTimedOut, NewPermanentError(
				"target never became ready within timeout", err).
				WithCode(ErrCodeReadinessTimeout)
		}

		if err := p.sleep(ctx, interval); err != nil {
			return WaitFailed, NewPermanentError("readiness wait cancelled", err).
				WithCode(ErrCodeInternal)
		}

		interval *= 2
		if interval > opts.MaxInterval {
			interval = opts.MaxInterval
		}
	}
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
