package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/engine"
)

// Vault is a minimal client for the secret store's system API. The
// deployer only needs health, init, and unseal.
type Vault struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// VaultConfig configures a Vault client.
type VaultConfig struct {
	// BaseURL is the Vault API root (e.g., "https://vault.hashicorp.lab").
	BaseURL string

	// Timeout bounds individual requests. Defaults to 15s.
	Timeout time.Duration

	// Insecure skips TLS verification for lab self-signed certificates.
	Insecure bool
}

// NewVault creates a Vault client.
func NewVault(cfg VaultConfig, log zerolog.Logger) *Vault {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Vault{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    newHTTPClient(cfg.Timeout, cfg.Insecure),
		log:     log,
	}
}

// Health is the subset of sys/health the deployer inspects.
type Health struct {
	Initialized bool `json:"initialized"`
	Sealed      bool `json:"sealed"`
	Standby     bool `json:"standby"`
}

// Health queries sys/health. Vault signals state via status codes as well
// as the body (200 active, 429 standby, 501 uninitialized, 503 sealed);
// all of those are valid answers from a live process.
func (v *Vault) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/sys/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, engine.NewTransientError("vault unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusTooManyRequests,
		http.StatusNotImplemented, http.StatusServiceUnavailable:
		var h Health
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			return nil, fmt.Errorf("decode vault health: %w", err)
		}
		return &h, nil
	default:
		return nil, engine.NewTransientError(
			fmt.Sprintf("vault health returned %d", resp.StatusCode), nil).
			WithCode(engine.ErrCodeNotReadyYet)
	}
}

// InitResult carries the unseal material from initialization. The deployer
// surfaces it once and never persists it.
type InitResult struct {
	Keys      []string `json:"keys"`
	RootToken string   `json:"root_token"`
}

// Init initializes an uninitialized Vault with a single key share, the lab
// default.
func (v *Vault) Init(ctx context.Context) (*InitResult, error) {
	body, err := json.Marshal(map[string]int{
		"secret_shares":    1,
		"secret_threshold": 1,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		v.baseURL+"/v1/sys/init", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, engine.NewTransientError("vault unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP("vault init", resp.StatusCode)
	}
	var out InitResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode init result: %w", err)
	}
	v.log.Info().Msg("vault initialized")
	return &out, nil
}

// Unseal submits one unseal key share.
func (v *Vault) Unseal(ctx context.Context, key string) error {
	body, err := json.Marshal(map[string]string{"key": key})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		v.baseURL+"/v1/sys/unseal", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return engine.NewTransientError("vault unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyHTTP("vault unseal", resp.StatusCode)
	}
	return nil
}
