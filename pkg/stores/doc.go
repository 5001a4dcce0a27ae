// Package stores provides the optional SQLite-backed history store.
//
// It persists two things: completed run reports (for `labctl runs` and
// downstream automated gating) and shared secret records (so credential
// rotation between runs is detected as a fingerprint mismatch instead of
// rediscovered by re-pushing). The engine runs fine without the store;
// every write is best-effort from the driver's point of view.
package stores
