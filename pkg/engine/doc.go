// Package engine implements the labctl deployment engine.
//
// The engine brings a set of interdependent platform components (secret
// store, identity provider, access gateway, sandbox workloads) to a ready
// state on a target cluster, in dependency order, with resume semantics.
//
// # Workflow
//
// A deployment run flows through four pieces:
//
//   - StagePlanner validates the dependency graph and emits ordered
//     stage-sets (topological levels) via Kahn's algorithm. Cycles fail the
//     run before any side effect.
//   - StageScheduler executes stage-sets strictly in order, running the
//     components within a stage concurrently through a worker pool.
//   - PhaseExecutor wraps one component's install with resume
//     classification (Absent / PartiallyConfigured / Ready), a transient
//     retry budget, and a bounded readiness wait.
//   - StateProber polls readiness predicates with capped exponential
//     backoff. There are no fixed sleeps anywhere in the engine: every wait
//     is a condition-checked loop bounded by a timeout.
//
// The Driver ties these together and produces a RunReport listing every
// component's outcome, including components skipped because an upstream
// dependency failed.
//
// # Resume semantics
//
// Re-running a deployment against a partially or fully deployed target is
// always safe: ready components are detected and skipped without side
// effects, existing-but-unhealthy components are repaired, and only absent
// components are created. Install functions must honor create-or-update
// semantics for this to hold.
//
// # Failure policy
//
// A failed required component halts the pipeline after its stage completes;
// downstream components are reported as skipped rather than silently
// omitted. Failed optional components degrade the run to partial failure
// but do not stop it.
package engine
