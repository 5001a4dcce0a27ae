package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/platformlab/labctl/pkg/engine"
)

// Env variable names for credentials.
const (
	EnvKeycloakAdminPassword = "KEYCLOAK_ADMIN_PASSWORD"
	EnvBoundaryAdminPassword = "BOUNDARY_ADMIN_PASSWORD"
)

var validate = validator.New()

// Load reads, parses, and validates a manifest file. Any failure is a
// pre-flight CONFIG_INVALID error: nothing has been touched on the target.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, engine.NewPermanentError(
			fmt.Sprintf("could not read manifest %s", path), err).
			WithCode(engine.ErrCodeConfigInvalid)
	}
	return Parse(raw)
}

// Parse parses and validates manifest bytes.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, engine.NewPermanentError("manifest is not valid YAML", err).
			WithCode(engine.ErrCodeConfigInvalid)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, engine.NewPermanentError("manifest failed validation", err).
			WithCode(engine.ErrCodeConfigInvalid)
	}

	if err := cfg.crossCheck(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// crossCheck enforces constraints validator tags cannot express: unique
// component ids, dependency edges that resolve, and endpoints present where
// a component kind needs one.
func (c *Config) crossCheck() error {
	seen := make(map[string]bool, len(c.Components))
	for _, comp := range c.Components {
		if seen[comp.ID] {
			return engine.NewPermanentError(
				fmt.Sprintf("duplicate component id %q", comp.ID), nil).
				WithCode(engine.ErrCodeConfigInvalid)
		}
		seen[comp.ID] = true
	}

	for _, comp := range c.Components {
		for _, dep := range comp.DependsOn {
			if !seen[dep] {
				return engine.NewPermanentError(
					fmt.Sprintf("component %q depends on undeclared component %q", comp.ID, dep), nil).
					WithCode(engine.ErrCodeConfigInvalid).
					WithComponent(comp.ID)
			}
		}
	}

	for _, s := range c.Secrets {
		if s.LogicalName == "" {
			return engine.NewPermanentError("secret entry missing logical_name", nil).
				WithCode(engine.ErrCodeConfigInvalid)
		}
	}

	return nil
}

// LoadCredentials reads control-plane credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	creds := &Credentials{
		KeycloakAdminPassword: os.Getenv(EnvKeycloakAdminPassword),
		BoundaryAdminPassword: os.Getenv(EnvBoundaryAdminPassword),
	}
	if creds.KeycloakAdminPassword == "" {
		return nil, engine.NewPermanentError(
			EnvKeycloakAdminPassword+" is not set", nil).
			WithCode(engine.ErrCodeConfigInvalid)
	}
	if creds.BoundaryAdminPassword == "" {
		return nil, engine.NewPermanentError(
			EnvBoundaryAdminPassword+" is not set", nil).
			WithCode(engine.ErrCodeConfigInvalid)
	}
	return creds, nil
}
