package config

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platformlab/labctl/pkg/engine"
)

const validManifest = `
platform: hashicorp-lab
parallelism: 4
insecure_tls: true

keycloak:
  endpoint: https://keycloak.hashicorp.lab
  realm: lab
  admin_user: admin

boundary:
  endpoint: https://boundary.hashicorp.lab
  admin_auth_method_id: ampw_admin
  admin_user: admin

vault:
  endpoint: https://vault.hashicorp.lab

components:
  - id: vault
    kind: vault
    namespace: vault
    manifest_path: manifests/vault
    workload:
      kind: statefulset
      name: vault
    readiness_timeout: 3m
  - id: keycloak
    kind: keycloak
    namespace: keycloak
    manifest_path: manifests/keycloak
    workload:
      kind: deployment
      name: keycloak
    depends_on: [vault]
  - id: boundary
    kind: boundary
    namespace: boundary
    manifest_path: manifests/boundary
    workload:
      kind: deployment
      name: boundary-controller
    depends_on: [keycloak]
  - id: sandbox
    kind: workload
    namespace: sandbox
    manifest_path: manifests/sandbox
    workload:
      kind: deployment
      name: sandbox
    depends_on: [boundary]
    optional: true

secrets:
  - logical_name: boundary-oidc-client
    client_id: boundary
    auth_method_id: amoidc_1234567890

history:
  path: /var/lib/labctl/history.db
`

// TestParseValidManifest tests that a complete manifest parses with all
// fields populated
func TestParseValidManifest(t *testing.T) {
	cfg, err := Parse([]byte(validManifest))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if cfg.Platform != "hashicorp-lab" {
		t.Errorf("Expected platform 'hashicorp-lab', got %q", cfg.Platform)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("Expected parallelism 4, got %d", cfg.Parallelism)
	}
	if !cfg.InsecureTLS {
		t.Error("Expected insecure_tls true")
	}
	if len(cfg.Components) != 4 {
		t.Fatalf("Expected 4 components, got %d", len(cfg.Components))
	}
	if cfg.Components[0].ReadinessTimeout.Std() != 3*time.Minute {
		t.Errorf("Expected 3m readiness timeout, got %s", cfg.Components[0].ReadinessTimeout.Std())
	}
	if cfg.Components[3].Kind != KindWorkload || !cfg.Components[3].Optional {
		t.Errorf("Expected optional workload component, got %+v", cfg.Components[3])
	}
	if len(cfg.Secrets) != 1 || cfg.Secrets[0].LogicalName != "boundary-oidc-client" {
		t.Errorf("Unexpected secrets: %+v", cfg.Secrets)
	}
	if cfg.History.Path == "" {
		t.Error("Expected history path")
	}
}

// TestParseRejectsUnknownFields tests that typos in field names fail fast
func TestParseRejectsUnknownFields(t *testing.T) {
	manifest := strings.Replace(validManifest, "parallelism: 4", "paralelism: 4", 1)
	_, err := Parse([]byte(manifest))
	if err == nil {
		t.Fatal("Expected error for unknown field, got nil")
	}
	if engine.ErrorCode(err) != engine.ErrCodeConfigInvalid {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeConfigInvalid, engine.ErrorCode(err))
	}
}

// TestParseRejectsMissingRequired tests validator enforcement of required
// fields
func TestParseRejectsMissingRequired(t *testing.T) {
	manifest := strings.Replace(validManifest, "platform: hashicorp-lab", "platform: \"\"", 1)
	_, err := Parse([]byte(manifest))
	if err == nil {
		t.Fatal("Expected error for empty platform, got nil")
	}
}

// TestParseRejectsBadWorkloadKind tests the workload kind whitelist
func TestParseRejectsBadWorkloadKind(t *testing.T) {
	manifest := strings.Replace(validManifest, "kind: statefulset", "kind: daemonset", 1)
	_, err := Parse([]byte(manifest))
	if err == nil {
		t.Fatal("Expected error for unsupported workload kind, got nil")
	}
}

// TestParseRejectsDuplicateComponentIDs tests the uniqueness cross-check
func TestParseRejectsDuplicateComponentIDs(t *testing.T) {
	manifest := strings.Replace(validManifest, "id: sandbox", "id: vault", 1)
	_, err := Parse([]byte(manifest))
	if err == nil {
		t.Fatal("Expected error for duplicate id, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("Expected duplicate id error, got: %v", err)
	}
}

// TestParseRejectsUnresolvedDependency tests the dependency cross-check
func TestParseRejectsUnresolvedDependency(t *testing.T) {
	manifest := strings.Replace(validManifest, "depends_on: [boundary]", "depends_on: [ghost]", 1)
	_, err := Parse([]byte(manifest))
	if err == nil {
		t.Fatal("Expected error for unresolved dependency, got nil")
	}
	if engine.ErrorCode(err) != engine.ErrCodeConfigInvalid {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeConfigInvalid, engine.ErrorCode(err))
	}
}

// TestParseAllFailuresArePermanent tests that every parse failure carries
// the pre-flight classification
func TestParseAllFailuresArePermanent(t *testing.T) {
	for name, manifest := range map[string]string{
		"not yaml":   "{{{",
		"empty":      "",
		"wrong type": strings.Replace(validManifest, "parallelism: 4", "parallelism: lots", 1),
	} {
		_, err := Parse([]byte(manifest))
		if err == nil {
			t.Errorf("%s: expected error, got nil", name)
			continue
		}
		if !engine.IsPermanent(err) {
			t.Errorf("%s: expected permanent error, got: %v", name, err)
		}
	}
}

// TestLoadCredentials tests environment sourcing of admin passwords
func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvKeycloakAdminPassword, "kc-secret")
	t.Setenv(EnvBoundaryAdminPassword, "b-secret")

	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials() returned error: %v", err)
	}
	if creds.KeycloakAdminPassword != "kc-secret" || creds.BoundaryAdminPassword != "b-secret" {
		t.Errorf("Unexpected credentials: %+v", creds)
	}
}

// TestLoadCredentialsMissing tests that absent env vars fail pre-flight
func TestLoadCredentialsMissing(t *testing.T) {
	t.Setenv(EnvKeycloakAdminPassword, "kc-secret")
	t.Setenv(EnvBoundaryAdminPassword, "")

	_, err := LoadCredentials()
	if err == nil {
		t.Fatal("Expected error for missing password, got nil")
	}
	if engine.ErrorCode(err) != engine.ErrCodeConfigInvalid {
		t.Errorf("Expected code %s, got %s", engine.ErrCodeConfigInvalid, engine.ErrorCode(err))
	}
}

// TestDurationParsing tests the YAML duration wrapper
func TestDurationParsing(t *testing.T) {
	var holder struct {
		Wait Duration `yaml:"wait"`
	}
	if err := yaml.Unmarshal([]byte("wait: 90s"), &holder); err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if holder.Wait.Std() != 90*time.Second {
		t.Errorf("Expected 90s, got %s", holder.Wait.Std())
	}

	if err := yaml.Unmarshal([]byte("wait: soon"), &holder); err == nil {
		t.Error("Expected error for unparseable duration")
	}
}
