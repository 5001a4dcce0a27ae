package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/platformlab/labctl/pkg/engine"
)

// Observer receives secret reconciliation outcomes, typically for metrics.
type Observer interface {
	// ObserveSecretSync records a reconcile result ("synced", "unchanged",
	// "failed") for a logical secret.
	ObserveSecretSync(secret, result string)

	// ObserveDrift records a detected credential drift.
	ObserveDrift(secret string)
}

// Reconciler drives shared secret records through the sync state machine:
//
//	Unsynced -> Syncing -> Synced
//	Syncing  -> Unsynced on verification failure
//
// Reconciles for the same logical name are serialized so two phases can
// never race a rotate-then-verify sequence; distinct secrets reconcile
// concurrently.
type Reconciler struct {
	log      zerolog.Logger
	observer Observer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewReconciler creates a secret reconciler.
func NewReconciler(log zerolog.Logger) *Reconciler {
	return &Reconciler{
		log:   log,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetObserver attaches an outcome observer. A nil observer is valid.
func (r *Reconciler) SetObserver(o Observer) {
	r.observer = o
}

func (r *Reconciler) observeSync(name, result string) {
	if r.observer != nil {
		r.observer.ObserveSecretSync(name, result)
	}
}

func (r *Reconciler) observeDrift(name string) {
	if r.observer != nil {
		r.observer.ObserveDrift(name)
	}
}

// Reconcile brings the record to StateSynced, pushing the owner's current
// credential to the consumer when drift is detected and verifying via the
// consumer's functional probe. One resync attempt is made after a failed
// verification; if that also fails the record returns to StateUnsynced and
// a DRIFT_UNRESOLVED error naming the rejecting side is returned.
func (r *Reconciler) Reconcile(ctx context.Context, record *Record, owner Owner, consumer Consumer) error {
	lock := r.lockFor(record.LogicalName)
	lock.Lock()
	defer lock.Unlock()

	log := r.log.With().Str("secret", record.LogicalName).Logger()

	value, err := owner.FetchCredential(ctx)
	if err != nil {
		return engine.NewTransientError("could not fetch credential from owner", err).
			WithCode(engine.ErrCodeNetwork)
	}
	ownerFP := Fingerprint(value)

	consumerFP, err := consumer.ConfiguredFingerprint(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("consumer fingerprint unavailable, forcing resync")
		consumerFP = ""
	}

	if r.inSync(record, ownerFP, consumerFP) {
		log.Debug().Msg("credential fingerprints unchanged, already synced")
		record.State = StateSynced
		r.observeSync(record.LogicalName, "unchanged")
		return nil
	}

	if record.OwnerFingerprint != "" {
		// Disagreement after any completed sync is drift, even when the
		// previous repair attempt failed; a fresh record is just a first sync.
		r.observeDrift(record.LogicalName)
	}

	record.State = StateSyncing
	log.Info().
		Str("owner_fingerprint", ownerFP).
		Msg("credential drift detected, pushing owner value to consumer")

	// One initial push plus one resync attempt. The probe, not the push's
	// return code, is what proves the consumer accepted the credential:
	// consumers that hash internally can acknowledge a push they then fail
	// to authenticate with.
	var probeErr error
	for attempt := 1; attempt <= 2; attempt++ {
		newFP, pushErr := consumer.SetCredential(ctx, value)
		if pushErr != nil {
			record.State = StateUnsynced
			r.observeSync(record.LogicalName, "failed")
			return engine.NewPermanentError(
				"consumer rejected credential push", pushErr).
				WithCode(engine.ErrCodeDriftUnresolved)
		}

		probeErr = consumer.Probe(ctx, value)
		if probeErr == nil {
			record.OwnerFingerprint = ownerFP
			record.ConsumerFingerprint = newFP
			record.LastSyncedAt = time.Now()
			record.State = StateSynced
			r.observeSync(record.LogicalName, "synced")
			log.Info().Msg("credential synchronized and verified")
			return nil
		}

		log.Warn().Err(probeErr).Int("attempt", attempt).
			Msg("functional probe failed after credential push")
	}

	record.State = StateUnsynced
	r.observeSync(record.LogicalName, "failed")
	return engine.NewPermanentError(
		fmt.Sprintf("credential %s could not be verified after resync: consumer-side probe rejected it", record.LogicalName),
		probeErr).
		WithCode(engine.ErrCodeDriftUnresolved)
}

// inSync reports whether the record proves owner and consumer still hold
// the credential from the last successful sync. The consumer fingerprint is
// opaque, so it is compared against its own previous observation rather
// than against the owner fingerprint.
func (r *Reconciler) inSync(record *Record, ownerFP, consumerFP string) bool {
	if record.OwnerFingerprint == "" || record.ConsumerFingerprint == "" {
		return false
	}
	return record.OwnerFingerprint == ownerFP &&
		record.ConsumerFingerprint == consumerFP
}

// lockFor returns the mutex serializing reconciles for a logical name.
func (r *Reconciler) lockFor(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[name]; !ok {
		r.locks[name] = &sync.Mutex{}
	}
	return r.locks[name]
}
