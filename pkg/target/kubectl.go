package target

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// KubectlStore implements Store by shelling out to kubectl. The deployer
// runs wherever cluster credentials already live, so reusing the operator's
// kubeconfig through the CLI avoids carrying cluster auth plumbing here.
type KubectlStore struct {
	// binary is the kubectl executable, overridable for tests.
	binary string

	// kubeconfig optionally pins a kubeconfig path.
	kubeconfig string

	// kubecontext optionally pins a context name.
	kubecontext string

	log zerolog.Logger

	// runCmd executes a prepared command; swapped out in tests.
	runCmd func(ctx context.Context, args []string, stdin []byte) (stdout, stderr []byte, exitCode int, err error)
}

// KubectlOption configures a KubectlStore.
type KubectlOption func(*KubectlStore)

// WithKubeconfig pins a kubeconfig file.
func WithKubeconfig(path string) KubectlOption {
	return func(s *KubectlStore) { s.kubeconfig = path }
}

// WithContext pins a kubeconfig context.
func WithContext(name string) KubectlOption {
	return func(s *KubectlStore) { s.kubecontext = name }
}

// NewKubectlStore creates a kubectl-backed resource store.
func NewKubectlStore(log zerolog.Logger, opts ...KubectlOption) *KubectlStore {
	s := &KubectlStore{
		binary: "kubectl",
		log:    log,
	}
	s.runCmd = s.execKubectl
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get fetches one resource as JSON. A missing resource returns ErrNotFound.
func (s *KubectlStore) Get(ctx context.Context, kind, name, namespace string) (*Resource, error) {
	args := []string{"get", kind, name, "-n", namespace, "-o", "json"}
	stdout, stderr, code, err := s.runCmd(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("kubectl get %s/%s: %w", kind, name, err)
	}
	if code != 0 {
		if strings.Contains(string(stderr), "NotFound") {
			return nil, fmt.Errorf("%s %s in %s: %w", kind, name, namespace, ErrNotFound)
		}
		return nil, fmt.Errorf("kubectl get %s/%s failed: %s", kind, name, strings.TrimSpace(string(stderr)))
	}

	if !json.Valid(stdout) {
		return nil, fmt.Errorf("kubectl get %s/%s returned invalid JSON", kind, name)
	}
	return &Resource{
		Kind:      kind,
		Name:      name,
		Namespace: namespace,
		Raw:       stdout,
	}, nil
}

// Apply pipes a manifest through kubectl apply. Server-side create-or-update
// semantics make this safe against any partially-configured starting state.
func (s *KubectlStore) Apply(ctx context.Context, manifest []byte) error {
	args := []string{"apply", "-f", "-"}
	_, stderr, code, err := s.runCmd(ctx, args, manifest)
	if err != nil {
		return fmt.Errorf("kubectl apply: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("kubectl apply failed: %s", strings.TrimSpace(string(stderr)))
	}
	return nil
}

// ApplyFile applies a manifest file or directory from disk.
func (s *KubectlStore) ApplyFile(ctx context.Context, path string) error {
	args := []string{"apply", "-f", path}
	_, stderr, code, err := s.runCmd(ctx, args, nil)
	if err != nil {
		return fmt.Errorf("kubectl apply -f %s: %w", path, err)
	}
	if code != 0 {
		return fmt.Errorf("kubectl apply -f %s failed: %s", path, strings.TrimSpace(string(stderr)))
	}
	return nil
}

// Exec runs a command inside the referenced workload's first ready pod.
func (s *KubectlStore) Exec(ctx context.Context, ref Ref, command []string) (*ExecResult, error) {
	args := []string{"exec", "-n", ref.Namespace, fmt.Sprintf("%s/%s", ref.Kind, ref.Name), "--"}
	args = append(args, command...)
	stdout, stderr, code, err := s.runCmd(ctx, args, nil)
	if err != nil {
		return nil, fmt.Errorf("kubectl exec %s: %w", ref, err)
	}
	return &ExecResult{
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		ExitCode: code,
	}, nil
}

// execKubectl runs kubectl with the store's connection flags.
func (s *KubectlStore) execKubectl(ctx context.Context, args []string, stdin []byte) ([]byte, []byte, int, error) {
	full := make([]string, 0, len(args)+4)
	if s.kubeconfig != "" {
		full = append(full, "--kubeconfig", s.kubeconfig)
	}
	if s.kubecontext != "" {
		full = append(full, "--context", s.kubecontext)
	}
	full = append(full, args...)

	s.log.Trace().Strs("args", full).Msg("kubectl")

	cmd := exec.CommandContext(ctx, s.binary, full...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			err = nil
		}
	}
	return stdout.Bytes(), stderr.Bytes(), code, err
}
