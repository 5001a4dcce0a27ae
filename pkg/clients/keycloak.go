// Package clients contains thin REST clients for the platform control
// planes: Keycloak (identity provider), Boundary (access gateway), and
// Vault (secret store). Each client exposes only what the deployer needs
// and classifies failures for the engine's retry policy.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/engine"
)

// Keycloak is an admin REST client for the identity provider.
type Keycloak struct {
	baseURL  string
	realm    string
	username string
	password string

	http *http.Client
	log  zerolog.Logger
}

// KeycloakConfig configures a Keycloak admin client.
type KeycloakConfig struct {
	// BaseURL is the Keycloak root URL (e.g., "https://keycloak.hashicorp.lab").
	BaseURL string

	// Realm is the realm holding the platform clients.
	Realm string

	// AdminUser and AdminPassword authenticate against the master realm.
	AdminUser     string
	AdminPassword string

	// Timeout bounds individual requests. Defaults to 15s.
	Timeout time.Duration

	// Insecure skips TLS verification for lab self-signed certificates.
	Insecure bool
}

// NewKeycloak creates a Keycloak admin client.
func NewKeycloak(cfg KeycloakConfig, log zerolog.Logger) *Keycloak {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Keycloak{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		realm:    cfg.Realm,
		username: cfg.AdminUser,
		password: cfg.AdminPassword,
		http:     newHTTPClient(cfg.Timeout, cfg.Insecure),
		log:      log,
	}
}

// adminToken obtains an admin access token via the password grant against
// the master realm, the same way kcadm.sh does.
func (k *Keycloak) adminToken(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {k.username},
		"password":   {k.password},
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := k.postForm(ctx, k.baseURL+"/realms/master/protocol/openid-connect/token", form, &out)
	if err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", engine.NewPermanentError("keycloak returned empty admin token", nil).
			WithCode(engine.ErrCodeAuthFailed)
	}
	return out.AccessToken, nil
}

// Ping reports whether the realm is served. Used by readiness predicates.
func (k *Keycloak) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		k.baseURL+"/realms/"+k.realm, nil)
	if err != nil {
		return err
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return engine.NewTransientError("keycloak unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return engine.NewTransientError(
			fmt.Sprintf("keycloak realm %s returned %d", k.realm, resp.StatusCode), nil).
			WithCode(engine.ErrCodeNotReadyYet)
	}
	return nil
}

// clientUUID resolves a clientId to Keycloak's internal object id.
func (k *Keycloak) clientUUID(ctx context.Context, token, clientID string) (string, error) {
	var list []struct {
		ID       string `json:"id"`
		ClientID string `json:"clientId"`
	}
	endpoint := fmt.Sprintf("%s/admin/realms/%s/clients?clientId=%s",
		k.baseURL, k.realm, url.QueryEscape(clientID))
	if err := k.getJSON(ctx, token, endpoint, &list); err != nil {
		return "", err
	}
	for _, c := range list {
		if c.ClientID == clientID {
			return c.ID, nil
		}
	}
	return "", engine.NewPermanentError(
		fmt.Sprintf("keycloak client %s not found in realm %s", clientID, k.realm), nil).
		WithCode(engine.ErrCodeConfigInvalid)
}

// ClientSecret returns the current secret for an OIDC client.
func (k *Keycloak) ClientSecret(ctx context.Context, clientID string) (string, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return "", err
	}
	id, err := k.clientUUID(ctx, token, clientID)
	if err != nil {
		return "", err
	}
	var out struct {
		Value string `json:"value"`
	}
	endpoint := fmt.Sprintf("%s/admin/realms/%s/clients/%s/client-secret", k.baseURL, k.realm, id)
	if err := k.getJSON(ctx, token, endpoint, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// RotateClientSecret asks Keycloak to regenerate a client secret and
// returns the new value.
func (k *Keycloak) RotateClientSecret(ctx context.Context, clientID string) (string, error) {
	token, err := k.adminToken(ctx)
	if err != nil {
		return "", err
	}
	id, err := k.clientUUID(ctx, token, clientID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/admin/realms/%s/clients/%s/client-secret", k.baseURL, k.realm, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := k.http.Do(req)
	if err != nil {
		return "", engine.NewTransientError("keycloak unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP("keycloak rotate client secret", resp.StatusCode)
	}
	var out struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode rotated secret: %w", err)
	}
	k.log.Info().Str("client_id", clientID).Msg("rotated keycloak client secret")
	return out.Value, nil
}

// VerifyClientCredentials performs a client-credentials token exchange with
// the given secret. This is the functional probe for the shared secret: it
// only succeeds when the credential is the one Keycloak currently expects.
func (k *Keycloak) VerifyClientCredentials(ctx context.Context, clientID, secret string) error {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {secret},
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	endpoint := fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", k.baseURL, k.realm)
	if err := k.postForm(ctx, endpoint, form, &out); err != nil {
		return err
	}
	if out.AccessToken == "" {
		return engine.NewPermanentError("token exchange returned no access token", nil).
			WithCode(engine.ErrCodeAuthFailed)
	}
	return nil
}

// postForm posts a urlencoded form and decodes the JSON response.
func (k *Keycloak) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := k.http.Do(req)
	if err != nil {
		return engine.NewTransientError("keycloak unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		k.log.Debug().Int("status", resp.StatusCode).
			Str("body", string(body)).Msg("keycloak request rejected")
		return classifyHTTP("keycloak request", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (k *Keycloak) getJSON(ctx context.Context, token, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := k.http.Do(req)
	if err != nil {
		return engine.NewTransientError("keycloak unreachable", err).
			WithCode(engine.ErrCodeNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return classifyHTTP("keycloak request", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ClientSecretOwner adapts a Keycloak client to the secret protocol's
// owner side for one OIDC client.
type ClientSecretOwner struct {
	Keycloak *Keycloak
	ClientID string
}

// FetchCredential returns the client's current secret.
func (o *ClientSecretOwner) FetchCredential(ctx context.Context) (string, error) {
	return o.Keycloak.ClientSecret(ctx, o.ClientID)
}
