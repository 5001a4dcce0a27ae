package components

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/clients"
	"github.com/platformlab/labctl/pkg/config"
	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/secrets"
	"github.com/platformlab/labctl/pkg/target"
)

// fakeTargetStore is an in-memory target.Store.
type fakeTargetStore struct {
	mu        sync.Mutex
	resources map[string]*target.Resource
	applied   []string
	getErr    error
}

func newFakeTargetStore() *fakeTargetStore {
	return &fakeTargetStore{resources: make(map[string]*target.Resource)}
}

func (f *fakeTargetStore) key(kind, name, namespace string) string {
	return kind + "/" + name + "@" + namespace
}

func (f *fakeTargetStore) put(kind, name, namespace string, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[f.key(kind, name, namespace)] = &target.Resource{
		Kind: kind, Name: name, Namespace: namespace, Raw: []byte(raw),
	}
}

func (f *fakeTargetStore) Get(ctx context.Context, kind, name, namespace string) (*target.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	res, ok := f.resources[f.key(kind, name, namespace)]
	if !ok {
		return nil, fmt.Errorf("%s %s in %s: %w", kind, name, namespace, target.ErrNotFound)
	}
	return res, nil
}

func (f *fakeTargetStore) Apply(ctx context.Context, manifest []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, "stdin")
	return nil
}

func (f *fakeTargetStore) ApplyFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, path)
	return nil
}

func (f *fakeTargetStore) Exec(ctx context.Context, ref target.Ref, command []string) (*target.ExecResult, error) {
	return &target.ExecResult{}, nil
}

// memRecords is an in-memory secrets.RecordStore.
type memRecords struct {
	mu      sync.Mutex
	records map[string]*secrets.Record
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[string]*secrets.Record)}
}

func (m *memRecords) LoadRecord(ctx context.Context, name string) (*secrets.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[name]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, nil
}

func (m *memRecords) SaveRecord(ctx context.Context, record *secrets.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.LogicalName] = &copied
	return nil
}

func workloadComponent(id string) config.ComponentConfig {
	return config.ComponentConfig{
		ID:           id,
		Kind:         config.KindWorkload,
		Namespace:    "sandbox",
		ManifestPath: "manifests/" + id,
		Workload:     config.WorkloadRef{Kind: "deployment", Name: id},
	}
}

func testCatalog(cfg *config.Config, store target.Store, records secrets.RecordStore) *Catalog {
	return New(cfg, store, nil, nil, nil, records, zerolog.Nop())
}

// TestComponentsMapping tests manifest-to-engine component translation
func TestComponentsMapping(t *testing.T) {
	cc := workloadComponent("sandbox")
	cc.DependsOn = []string{"boundary"}
	cc.Optional = true
	cfg := &config.Config{Components: []config.ComponentConfig{cc}}

	comps := testCatalog(cfg, newFakeTargetStore(), nil).Components()
	if len(comps) != 1 {
		t.Fatalf("Expected 1 component, got %d", len(comps))
	}
	c := comps[0]
	if c.ID != "sandbox" || !c.Optional {
		t.Errorf("Unexpected component: %+v", c)
	}
	if len(c.DependsOn) != 1 || c.DependsOn[0] != "boundary" {
		t.Errorf("Dependencies not carried over: %v", c.DependsOn)
	}
	if c.Install == nil || c.Readiness == nil || c.Exists == nil {
		t.Error("Expected install, readiness, and exists hooks")
	}
}

// TestExistsHook tests workload existence classification
func TestExistsHook(t *testing.T) {
	store := newFakeTargetStore()
	cfg := &config.Config{Components: []config.ComponentConfig{workloadComponent("sandbox")}}
	c := testCatalog(cfg, store, nil).Components()[0]

	exists, err := c.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists() returned error: %v", err)
	}
	if exists {
		t.Error("Expected absent workload")
	}

	store.put("deployment", "sandbox", "sandbox", `{}`)
	exists, err = c.Exists(context.Background())
	if err != nil {
		t.Fatalf("Exists() returned error: %v", err)
	}
	if !exists {
		t.Error("Expected workload to exist")
	}
}

// TestWorkloadInstallAndReadiness tests the generic workload path: manifests
// applied, readiness from replica counts
func TestWorkloadInstallAndReadiness(t *testing.T) {
	store := newFakeTargetStore()
	cfg := &config.Config{Components: []config.ComponentConfig{workloadComponent("sandbox")}}
	c := testCatalog(cfg, store, nil).Components()[0]

	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install() returned error: %v", err)
	}
	if len(store.applied) != 1 || store.applied[0] != "manifests/sandbox" {
		t.Errorf("Expected manifest apply, got %v", store.applied)
	}

	state, _ := c.Readiness(context.Background())
	if state != engine.ProbeNotReady {
		t.Errorf("Missing workload should be not ready, got %s", state)
	}

	store.put("deployment", "sandbox", "sandbox",
		`{"spec":{"replicas":2},"status":{"readyReplicas":1}}`)
	state, _ = c.Readiness(context.Background())
	if state != engine.ProbeNotReady {
		t.Errorf("Partially ready workload should be not ready, got %s", state)
	}

	store.put("deployment", "sandbox", "sandbox",
		`{"spec":{"replicas":2},"status":{"readyReplicas":2}}`)
	state, err := c.Readiness(context.Background())
	if err != nil {
		t.Fatalf("Readiness() returned error: %v", err)
	}
	if state != engine.ProbeReady {
		t.Errorf("Expected ready, got %s", state)
	}
}

// vaultServer simulates the secret store lifecycle behind an httptest server.
type vaultServer struct {
	mu          sync.Mutex
	initialized bool
	sealed      bool
	unseals     int
}

func (v *vaultServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]bool{
			"initialized": v.initialized,
			"sealed":      v.sealed,
		})
	})
	mux.HandleFunc("/v1/sys/init", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.initialized = true
		v.sealed = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"keys":       []string{"key-1"},
			"root_token": "root",
		})
	})
	mux.HandleFunc("/v1/sys/unseal", func(w http.ResponseWriter, r *http.Request) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.unseals++
		v.sealed = false
		json.NewEncoder(w).Encode(map[string]bool{"sealed": false})
	})
	return mux
}

func vaultCatalog(t *testing.T, vs *vaultServer, store target.Store) (*Catalog, config.ComponentConfig) {
	t.Helper()
	srv := httptest.NewServer(vs.handler())
	t.Cleanup(srv.Close)

	cc := config.ComponentConfig{
		ID:           "vault",
		Kind:         config.KindVault,
		Namespace:    "vault",
		ManifestPath: "manifests/vault",
		Workload:     config.WorkloadRef{Kind: "statefulset", Name: "vault"},
	}
	cfg := &config.Config{Components: []config.ComponentConfig{cc}}
	vault := clients.NewVault(clients.VaultConfig{BaseURL: srv.URL}, zerolog.Nop())
	return New(cfg, store, vault, nil, nil, nil, zerolog.Nop()), cc
}

// TestVaultInstallBootstrapsFreshStore tests that installing a fresh secret
// store applies manifests, initializes, and unseals it
func TestVaultInstallBootstrapsFreshStore(t *testing.T) {
	vs := &vaultServer{}
	store := newFakeTargetStore()
	catalog, _ := vaultCatalog(t, vs, store)

	c := catalog.Components()[0]
	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install() returned error: %v", err)
	}

	if len(store.applied) == 0 || store.applied[0] != "manifests/vault" {
		t.Errorf("Expected vault manifests applied, got %v", store.applied)
	}
	if !vs.initialized {
		t.Error("Expected vault to be initialized")
	}
	if vs.sealed || vs.unseals != 1 {
		t.Errorf("Expected one unseal, got sealed=%v unseals=%d", vs.sealed, vs.unseals)
	}
}

// TestVaultInstallSkipsBootstrapWhenInitialized tests install idempotency
// against an already-bootstrapped store
func TestVaultInstallSkipsBootstrapWhenInitialized(t *testing.T) {
	vs := &vaultServer{initialized: true, sealed: false}
	store := newFakeTargetStore()
	catalog, _ := vaultCatalog(t, vs, store)

	c := catalog.Components()[0]
	if err := c.Install(context.Background()); err != nil {
		t.Fatalf("Install() returned error: %v", err)
	}
	if vs.unseals != 0 {
		t.Errorf("Expected no unseal on an initialized store, got %d", vs.unseals)
	}
}

// TestVaultSealedFailsHard tests that an initialized but sealed store fails
// readiness immediately instead of burning the timeout
func TestVaultSealedFailsHard(t *testing.T) {
	vs := &vaultServer{initialized: true, sealed: true}
	store := newFakeTargetStore()
	store.put("statefulset", "vault", "vault",
		`{"spec":{"replicas":1},"status":{"readyReplicas":1}}`)
	catalog, _ := vaultCatalog(t, vs, store)

	c := catalog.Components()[0]
	state, err := c.Readiness(context.Background())
	if state != engine.ProbeFailed {
		t.Fatalf("Expected %s, got %s", engine.ProbeFailed, state)
	}
	if engine.ErrorCode(err) != engine.ErrCodeProbeFailed {
		t.Errorf("Expected code %s, got %v", engine.ErrCodeProbeFailed, err)
	}
}
