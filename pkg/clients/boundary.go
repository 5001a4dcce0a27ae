package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/engine"
)

// Boundary is an admin REST client for the access gateway.
type Boundary struct {
	baseURL  string
	authID   string
	username string
	password string

	http *http.Client
	log  zerolog.Logger
}

// BoundaryConfig configures a Boundary admin client.
type BoundaryConfig struct {
	// BaseURL is the Boundary API root (e.g., "https://boundary.hashicorp.lab").
	BaseURL string

	// AdminAuthMethodID is the password auth method used for admin login.
	AdminAuthMethodID string

	// AdminUser and AdminPassword authenticate the deployer.
	AdminUser     string
	AdminPassword string

	// Timeout bounds individual requests. Defaults to 15s.
	Timeout time.Duration

	// Insecure skips TLS verification for lab self-signed certificates.
	Insecure bool
}

// NewBoundary creates a Boundary admin client.
func NewBoundary(cfg BoundaryConfig, log zerolog.Logger) *Boundary {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Boundary{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		authID:   cfg.AdminAuthMethodID,
		username: cfg.AdminUser,
		password: cfg.AdminPassword,
		http:     newHTTPClient(cfg.Timeout, cfg.Insecure),
		log:      log,
	}
}

// AuthMethod is the subset of Boundary's auth method resource the deployer
// cares about. Boundary never returns the OIDC client secret, only an HMAC.
type AuthMethod struct {
	ID               string `json:"id"`
	Version          int    `json:"version"`
	ClientSecretHmac string `json:"client_secret_hmac"`
}

// Ping reports whether the controller answers. Used by readiness predicates.
func (b *Boundary) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/v1/auth-methods?scope_id=global", nil)
	if err != nil {
		return err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return engine.NewTransientError("boundary unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()
	// An unauthenticated list gets 401 from a live controller; any HTTP
	// answer means the control plane is up.
	if resp.StatusCode >= 500 {
		return engine.NewTransientError(
			fmt.Sprintf("boundary returned %d", resp.StatusCode), nil).
			WithCode(engine.ErrCodeNotReadyYet)
	}
	return nil
}

// token authenticates with the admin password auth method.
func (b *Boundary) token(ctx context.Context) (string, error) {
	body := map[string]interface{}{
		"attributes": map[string]string{
			"login_name": b.username,
			"password":   b.password,
		},
	}
	endpoint := fmt.Sprintf("%s/v1/auth-methods/%s:authenticate", b.baseURL, b.authID)
	var out struct {
		Attributes struct {
			Token string `json:"token"`
		} `json:"attributes"`
	}
	if err := b.doJSON(ctx, http.MethodPost, endpoint, "", body, &out); err != nil {
		return "", err
	}
	if out.Attributes.Token == "" {
		return "", engine.NewPermanentError("boundary authentication returned no token", nil).
			WithCode(engine.ErrCodeAuthFailed)
	}
	return out.Attributes.Token, nil
}

// GetAuthMethod reads an auth method, including its client_secret_hmac.
func (b *Boundary) GetAuthMethod(ctx context.Context, id string) (*AuthMethod, error) {
	token, err := b.token(ctx)
	if err != nil {
		return nil, err
	}
	var out struct {
		ID         string `json:"id"`
		Version    int    `json:"version"`
		Attributes struct {
			ClientSecretHmac string `json:"client_secret_hmac"`
		} `json:"attributes"`
	}
	endpoint := fmt.Sprintf("%s/v1/auth-methods/%s", b.baseURL, id)
	if err := b.doJSON(ctx, http.MethodGet, endpoint, token, nil, &out); err != nil {
		return nil, err
	}
	return &AuthMethod{
		ID:               out.ID,
		Version:          out.Version,
		ClientSecretHmac: out.Attributes.ClientSecretHmac,
	}, nil
}

// SetOIDCClientSecret updates the OIDC auth method's client secret and
// returns the HMAC Boundary derives from the new value. The HMAC is the
// only fingerprint Boundary exposes; the raw secret is write-only.
func (b *Boundary) SetOIDCClientSecret(ctx context.Context, id, secret string) (string, error) {
	token, err := b.token(ctx)
	if err != nil {
		return "", err
	}
	current, err := b.GetAuthMethod(ctx, id)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"version": current.Version,
		"attributes": map[string]string{
			"client_secret": secret,
		},
	}
	var out struct {
		Attributes struct {
			ClientSecretHmac string `json:"client_secret_hmac"`
		} `json:"attributes"`
	}
	endpoint := fmt.Sprintf("%s/v1/auth-methods/%s", b.baseURL, id)
	if err := b.doJSON(ctx, http.MethodPatch, endpoint, token, body, &out); err != nil {
		return "", err
	}
	b.log.Info().Str("auth_method_id", id).Msg("updated boundary oidc client secret")
	return out.Attributes.ClientSecretHmac, nil
}

// doJSON performs one JSON request/response round trip.
func (b *Boundary) doJSON(ctx context.Context, method, endpoint, token string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return engine.NewTransientError("boundary unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		b.log.Debug().Int("status", resp.StatusCode).
			Str("body", string(raw)).Msg("boundary request rejected")
		return classifyHTTP("boundary request", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OIDCSecretConsumer adapts a Boundary client to the secret protocol's
// consumer side for one OIDC auth method. The functional probe exchanges
// the candidate secret for a token at the identity provider, which is the
// operation Boundary itself performs during an OIDC login.
type OIDCSecretConsumer struct {
	Boundary     *Boundary
	AuthMethodID string
	Keycloak     *Keycloak
	ClientID     string
}

// ConfiguredFingerprint returns Boundary's HMAC of the configured secret.
func (c *OIDCSecretConsumer) ConfiguredFingerprint(ctx context.Context) (string, error) {
	am, err := c.Boundary.GetAuthMethod(ctx, c.AuthMethodID)
	if err != nil {
		return "", err
	}
	if am.ClientSecretHmac == "" {
		return "", engine.NewPermanentError("auth method has no client secret configured", nil).
			WithCode(engine.ErrCodeNotReadyYet)
	}
	return "hmac:" + am.ClientSecretHmac, nil
}

// SetCredential pushes a new client secret into the auth method.
func (c *OIDCSecretConsumer) SetCredential(ctx context.Context, value string) (string, error) {
	hmac, err := c.Boundary.SetOIDCClientSecret(ctx, c.AuthMethodID, value)
	if err != nil {
		return "", err
	}
	return "hmac:" + hmac, nil
}

// Probe verifies the credential by performing a client-credentials token
// exchange, which only succeeds when the identity provider accepts it.
func (c *OIDCSecretConsumer) Probe(ctx context.Context, value string) error {
	return c.Keycloak.VerifyClientCredentials(ctx, c.ClientID, value)
}
