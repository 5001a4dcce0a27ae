// Package secrets implements the credential synchronization protocol that
// keeps a secret generated by one control plane (the owner) identical to
// the copy configured at another (the consumer), including after rotation.
//
// The canonical instance is the Keycloak-generated OIDC client secret that
// Boundary's auth method must present. Boundary never exposes the stored
// value (only an HMAC), so verification is functional: the protocol proves
// the consumer-side credential works by using it, not by comparing values.
package secrets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SyncState is the state of a shared secret record.
type SyncState string

const (
	// StateUnsynced indicates the record has never been verified, or drift
	// was detected since the last sync.
	StateUnsynced SyncState = "unsynced"

	// StateSyncing indicates a reconcile is in flight for the record.
	StateSyncing SyncState = "syncing"

	// StateSynced indicates the owner and consumer agree on the credential.
	StateSynced SyncState = "synced"
)

// Validate checks if the sync state is valid.
func (s SyncState) Validate() error {
	switch s {
	case StateUnsynced, StateSyncing, StateSynced:
		return nil
	default:
		return fmt.Errorf("invalid sync state: %s", s)
	}
}

// Record tracks one credential shared between an owner and a consumer.
// After a successful sync the owner and consumer fingerprints refer to the
// same credential value; any mismatch on a later run is drift and triggers
// a resync before the consumer is considered ready.
type Record struct {
	// LogicalName identifies the credential (e.g., "boundary-oidc-client").
	LogicalName string `json:"logical_name"`

	// State is the current protocol state.
	State SyncState `json:"state"`

	// OwnerFingerprint is the fingerprint of the value as last observed at
	// the owner.
	OwnerFingerprint string `json:"owner_fingerprint,omitempty"`

	// ConsumerFingerprint is the consumer's configured fingerprint as last
	// observed. Consumers that hash internally (Boundary reports an HMAC)
	// make this opaque: it is compared against the consumer's own previous
	// value, never against OwnerFingerprint.
	ConsumerFingerprint string `json:"consumer_fingerprint,omitempty"`

	// LastSyncedAt is when the record last reached StateSynced.
	LastSyncedAt time.Time `json:"last_synced_at,omitempty"`
}

// Owner is the control plane that generates and rotates the credential.
type Owner interface {
	// FetchCredential returns the current credential value.
	FetchCredential(ctx context.Context) (string, error)
}

// Consumer is the control plane configured to present the credential.
type Consumer interface {
	// ConfiguredFingerprint returns the consumer's view of its configured
	// credential. For stores that hash internally this is an opaque value,
	// stable only while the configured credential is unchanged.
	ConfiguredFingerprint(ctx context.Context) (string, error)

	// SetCredential pushes a new credential value into the consumer's
	// configuration and returns the consumer's resulting fingerprint.
	SetCredential(ctx context.Context, value string) (string, error)

	// Probe verifies the given credential functionally, performing an
	// operation that only succeeds when the credential is valid.
	Probe(ctx context.Context, value string) error
}

// RecordStore persists shared secret records between runs so rotation can
// be detected as a fingerprint mismatch rather than rediscovered by always
// re-pushing. A nil store is valid: the protocol then treats every run as
// a first sync.
type RecordStore interface {
	// LoadRecord returns the record for a logical name, or nil when the
	// secret has never been synced.
	LoadRecord(ctx context.Context, logicalName string) (*Record, error)

	// SaveRecord persists a record after a state change.
	SaveRecord(ctx context.Context, record *Record) error
}

// Fingerprint computes the canonical fingerprint of a credential value:
// hex-encoded SHA-256 with a scheme prefix.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return "sha256:" + hex.EncodeToString(sum[:])
}
