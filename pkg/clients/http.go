package clients

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/platformlab/labctl/pkg/engine"
)

// newHTTPClient builds an HTTP client with the lab's TLS posture. The lab
// uses self-signed certificates per service, so Insecure is commonly on.
func newHTTPClient(timeout time.Duration, insecure bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 lab-only
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// classifyHTTP maps an HTTP status to the engine's error taxonomy.
// 5xx and 429 are transient; auth and client errors are permanent.
func classifyHTTP(op string, status int) *engine.DeployError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return engine.NewPermanentError(
			fmt.Sprintf("%s unauthorized (status %d)", op, status), nil).
			WithCode(engine.ErrCodeAuthFailed)
	case status == http.StatusTooManyRequests || status >= 500:
		return engine.NewTransientError(
			fmt.Sprintf("%s temporarily unavailable (status %d)", op, status), nil).
			WithCode(engine.ErrCodeNotReadyYet)
	default:
		return engine.NewPermanentError(
			fmt.Sprintf("%s rejected (status %d)", op, status), nil).
			WithCode(engine.ErrCodeConfigInvalid)
	}
}
