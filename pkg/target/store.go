// Package target abstracts the cluster orchestrator as an opaque resource
// store with get/apply/exec semantics. Install functions and readiness
// predicates consume this interface; the concrete implementation shells out
// to kubectl the same way the lab's original tooling drives the cluster.
package target

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the resource does not exist.
var ErrNotFound = errors.New("resource not found")

// Resource is a decoded cluster resource. Only the generic envelope is
// typed; everything else stays raw so the store works for any kind.
type Resource struct {
	// Kind is the resource kind (e.g., "deployment", "statefulset").
	Kind string `json:"kind"`

	// Name is the resource name.
	Name string `json:"name"`

	// Namespace is the resource namespace.
	Namespace string `json:"namespace"`

	// Raw is the full JSON document as returned by the cluster.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// Ref identifies a workload for exec operations.
type Ref struct {
	// Kind is the referenced kind; exec targets resolve to a pod.
	Kind string

	// Name is the resource name or pod selector.
	Name string

	// Namespace is the resource namespace.
	Namespace string
}

// String renders the ref for logs.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s -n %s", r.Kind, r.Name, r.Namespace)
}

// ExecResult carries the output of an in-workload command.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Store is the narrow interface to the cluster orchestrator.
type Store interface {
	// Get fetches one resource. Returns ErrNotFound (possibly wrapped) when
	// the resource does not exist.
	Get(ctx context.Context, kind, name, namespace string) (*Resource, error)

	// Apply creates or updates resources from a manifest with
	// create-or-update semantics.
	Apply(ctx context.Context, manifest []byte) error

	// ApplyFile applies a manifest file or directory from disk.
	ApplyFile(ctx context.Context, path string) error

	// Exec runs a command inside the referenced workload.
	Exec(ctx context.Context, ref Ref, command []string) (*ExecResult, error)
}

// readyReplicas digs readyReplicas/replicas out of a workload resource.
type workloadStatus struct {
	Spec struct {
		Replicas *int64 `json:"replicas"`
	} `json:"spec"`
	Status struct {
		ReadyReplicas int64 `json:"readyReplicas"`
		Replicas      int64 `json:"replicas"`
	} `json:"status"`
}

// WorkloadReady reports whether a deployment or statefulset resource has
// all desired replicas ready. Bare pods are ready when Running.
func WorkloadReady(r *Resource) (bool, error) {
	if r.Kind == "pod" {
		return PodRunning(r)
	}
	var ws workloadStatus
	if err := json.Unmarshal(r.Raw, &ws); err != nil {
		return false, fmt.Errorf("decode workload status: %w", err)
	}
	desired := int64(1)
	if ws.Spec.Replicas != nil {
		desired = *ws.Spec.Replicas
	}
	return desired > 0 && ws.Status.ReadyReplicas >= desired, nil
}

// PodRunning reports whether a pod resource is in the Running phase.
func PodRunning(r *Resource) (bool, error) {
	var ps struct {
		Status struct {
			Phase string `json:"phase"`
		} `json:"status"`
	}
	if err := json.Unmarshal(r.Raw, &ps); err != nil {
		return false, fmt.Errorf("decode pod status: %w", err)
	}
	return ps.Status.Phase == "Running", nil
}
