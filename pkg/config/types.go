// Package config loads and validates the platform deployment manifest.
//
// The manifest is a YAML document describing the components to deploy,
// their dependency edges, the control-plane endpoints, and the shared
// secrets to keep synchronized. Credentials are never stored in the
// manifest; they come from environment variables.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration with YAML string parsing ("90s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ComponentKind selects the component-specific install and readiness logic.
type ComponentKind string

const (
	// KindVault is the secret store.
	KindVault ComponentKind = "vault"

	// KindKeycloak is the identity provider.
	KindKeycloak ComponentKind = "keycloak"

	// KindBoundary is the access gateway control plane.
	KindBoundary ComponentKind = "boundary"

	// KindWorkload is a generic workload (boundary worker, sandboxes):
	// manifests applied, readiness from replica counts only.
	KindWorkload ComponentKind = "workload"
)

// WorkloadRef points at the cluster workload backing a component.
type WorkloadRef struct {
	// Kind is the workload kind.
	Kind string `yaml:"kind" validate:"required,oneof=deployment statefulset pod"`

	// Name is the workload name.
	Name string `yaml:"name" validate:"required"`
}

// ComponentConfig declares one deployable component.
type ComponentConfig struct {
	// ID is the unique component id.
	ID string `yaml:"id" validate:"required"`

	// Kind selects install/readiness behavior.
	Kind ComponentKind `yaml:"kind" validate:"required,oneof=vault keycloak boundary workload"`

	// Namespace is the component's cluster namespace.
	Namespace string `yaml:"namespace" validate:"required"`

	// ManifestPath is the directory or file of manifests to apply.
	ManifestPath string `yaml:"manifest_path" validate:"required"`

	// Workload is the workload whose readiness gates the component.
	Workload WorkloadRef `yaml:"workload" validate:"required"`

	// DependsOn lists component ids that must be healthy first.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// Optional marks components whose failure degrades rather than aborts.
	Optional bool `yaml:"optional,omitempty"`

	// ReadinessTimeout bounds the post-install readiness wait.
	ReadinessTimeout Duration `yaml:"readiness_timeout,omitempty"`

	// Endpoint is the service URL for components with a control-plane API.
	Endpoint string `yaml:"endpoint,omitempty" validate:"omitempty,url"`
}

// KeycloakConfig holds identity-provider connection settings.
// AdminPassword comes from KEYCLOAK_ADMIN_PASSWORD.
type KeycloakConfig struct {
	Endpoint  string `yaml:"endpoint" validate:"required,url"`
	Realm     string `yaml:"realm" validate:"required"`
	AdminUser string `yaml:"admin_user" validate:"required"`
}

// BoundaryConfig holds access-gateway connection settings.
// AdminPassword comes from BOUNDARY_ADMIN_PASSWORD.
type BoundaryConfig struct {
	Endpoint          string `yaml:"endpoint" validate:"required,url"`
	AdminAuthMethodID string `yaml:"admin_auth_method_id" validate:"required"`
	AdminUser         string `yaml:"admin_user" validate:"required"`
}

// VaultConfig holds secret-store connection settings.
type VaultConfig struct {
	Endpoint string `yaml:"endpoint" validate:"required,url"`
}

// SecretSyncConfig declares one owner/consumer shared secret.
type SecretSyncConfig struct {
	// LogicalName identifies the credential across runs.
	LogicalName string `yaml:"logical_name" validate:"required"`

	// ClientID is the OIDC client at the identity provider (the owner).
	ClientID string `yaml:"client_id" validate:"required"`

	// AuthMethodID is the Boundary OIDC auth method (the consumer).
	AuthMethodID string `yaml:"auth_method_id" validate:"required"`
}

// HistoryConfig configures the optional run-history store.
type HistoryConfig struct {
	// Path is the SQLite database path. Empty disables history.
	Path string `yaml:"path,omitempty"`
}

// Config is the full deployment manifest.
type Config struct {
	// Platform is a display name for the deployment.
	Platform string `yaml:"platform" validate:"required"`

	// Parallelism caps concurrent phases per stage. Zero means default.
	Parallelism int `yaml:"parallelism,omitempty" validate:"gte=0,lte=64"`

	// InsecureTLS skips TLS verification toward the lab's self-signed
	// service certificates.
	InsecureTLS bool `yaml:"insecure_tls,omitempty"`

	Keycloak KeycloakConfig `yaml:"keycloak" validate:"required"`
	Boundary BoundaryConfig `yaml:"boundary" validate:"required"`
	Vault    VaultConfig    `yaml:"vault" validate:"required"`

	// Components are the deployable units.
	Components []ComponentConfig `yaml:"components" validate:"required,min=1,dive"`

	// Secrets are the shared credentials to reconcile.
	Secrets []SecretSyncConfig `yaml:"secrets,omitempty" validate:"dive"`

	// History configures run-report persistence.
	History HistoryConfig `yaml:"history,omitempty"`
}

// Credentials carries secrets sourced from the environment, never from the
// manifest file.
type Credentials struct {
	KeycloakAdminPassword string
	BoundaryAdminPassword string
}
