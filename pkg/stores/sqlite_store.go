package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/platformlab/labctl/pkg/engine"
	"github.com/platformlab/labctl/pkg/secrets"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore persists run history and secret records in a local SQLite
// database. It implements engine.ReportRecorder and secrets.RecordStore.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Open creates, connects, and migrates a history store at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	s := &SQLiteStore{path: path}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate applies the embedded schema migrations.
func (s *SQLiteStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordRun persists a completed run report and its phase results.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *engine.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stages, err := json.Marshal(report.Stages)
	if err != nil {
		return fmt.Errorf("failed to encode stages: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, status, started_at, duration_ms, stages)
		VALUES (?, ?, ?, ?, ?)
	`, report.RunID, string(report.Status), report.StartedAt, report.DurationMs, string(stages))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, r := range report.SortedResults() {
		var errJSON *string
		if r.Error != nil {
			raw, err := json.Marshal(r.Error)
			if err != nil {
				return fmt.Errorf("failed to encode phase error: %w", err)
			}
			v := string(raw)
			errJSON = &v
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO phase_results (run_id, component_id, status, attempts, started_at, duration_ms, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, report.RunID, r.ComponentID, string(r.Status), r.Attempts, r.StartedAt, r.DurationMs, errJSON)
		if err != nil {
			return fmt.Errorf("failed to insert phase result: %w", err)
		}
	}

	return tx.Commit()
}

// RunRow is a persisted run summary for listing.
type RunRow struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// ListRuns lists persisted runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, started_at, duration_ms
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	out := []*RunRow{}
	for rows.Next() {
		r := &RunRow{}
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadRecord returns the persisted record for a logical secret, or nil if
// the secret has never been synced.
func (s *SQLiteStore) LoadRecord(ctx context.Context, logicalName string) (*secrets.Record, error) {
	record := &secrets.Record{}
	var state string
	var syncedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT logical_name, state, owner_fingerprint, consumer_fingerprint, last_synced_at
		FROM secret_records
		WHERE logical_name = ?
	`, logicalName).Scan(
		&record.LogicalName,
		&state,
		&record.OwnerFingerprint,
		&record.ConsumerFingerprint,
		&syncedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load secret record: %w", err)
	}
	record.State = secrets.SyncState(state)
	if syncedAt.Valid {
		record.LastSyncedAt = syncedAt.Time
	}
	return record, nil
}

// SaveRecord upserts a secret record.
func (s *SQLiteStore) SaveRecord(ctx context.Context, record *secrets.Record) error {
	var syncedAt interface{}
	if !record.LastSyncedAt.IsZero() {
		syncedAt = record.LastSyncedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secret_records (logical_name, state, owner_fingerprint, consumer_fingerprint, last_synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(logical_name) DO UPDATE SET
			state = excluded.state,
			owner_fingerprint = excluded.owner_fingerprint,
			consumer_fingerprint = excluded.consumer_fingerprint,
			last_synced_at = excluded.last_synced_at
	`, record.LogicalName, string(record.State), record.OwnerFingerprint,
		record.ConsumerFingerprint, syncedAt)
	if err != nil {
		return fmt.Errorf("failed to save secret record: %w", err)
	}
	return nil
}

// HealthCheck verifies the database answers.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
