// Package state persists the monitor's durable state in SQLite: the single
// current snapshot per target, plus heartbeat and delivery-attempt logs for
// observability. The caller must blank-import a driver registering "sqlite":
//
//	import _ "modernc.org/sqlite"
//	st, err := state.Open("vigil.db")
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/vigil/monitor"
	"github.com/hazyhaar/vigil/notify"
)

// Store is the SQLite-backed persistence layer. It implements
// monitor.SnapshotStore, monitor.HeartbeatRecorder, and notify.AttemptRecorder.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies the
// production pragmas: WAL journal, busy_timeout 10s, synchronous NORMAL.
// SQLite's own locking plus the busy timeout serialize concurrent access.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying handle for read-only consumers.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// GetSnapshot returns the current snapshot for key, or nil when no snapshot
// has been stored yet.
func (s *Store) GetSnapshot(ctx context.Context, key string) (*monitor.Snapshot, error) {
	var fp string
	var capturedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, captured_at FROM snapshots WHERE target_key = ?`, key).
		Scan(&fp, &capturedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: get snapshot: %w", err)
	}
	return &monitor.Snapshot{
		Fingerprint: fp,
		CapturedAt:  time.UnixMilli(capturedAt).UTC(),
	}, nil
}

// SetSnapshot atomically replaces the snapshot for key. A single UPSERT is
// atomic in SQLite, so a concurrent reader sees either the old row or the
// new one, never a mix.
func (s *Store) SetSnapshot(ctx context.Context, key string, snap monitor.Snapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (target_key, fingerprint, captured_at)
		VALUES (?, ?, ?)
		ON CONFLICT(target_key) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			captured_at = excluded.captured_at`,
		key, snap.Fingerprint, snap.CapturedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("state: set snapshot: %w", err)
	}
	return nil
}

// RecordHeartbeat appends a health event to the heartbeat log.
func (s *Store) RecordHeartbeat(ctx context.Context, ev monitor.HealthEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeats (target_key, status, note, emitted_at)
		VALUES (?, ?, ?, ?)`,
		ev.Target.Key(), string(ev.Status), ev.Note, ev.EmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("state: record heartbeat: %w", err)
	}
	return nil
}

// Heartbeat is one row of the heartbeat log.
type Heartbeat struct {
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// LatestHeartbeat returns the most recent heartbeat for key, or nil when
// none has been recorded.
func (s *Store) LatestHeartbeat(ctx context.Context, key string) (*Heartbeat, error) {
	var hb Heartbeat
	var at int64
	err := s.db.QueryRowContext(ctx, `
		SELECT status, note, emitted_at FROM heartbeats
		WHERE target_key = ? ORDER BY emitted_at DESC, id DESC LIMIT 1`, key).
		Scan(&hb.Status, &hb.Note, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: latest heartbeat: %w", err)
	}
	hb.EmittedAt = time.UnixMilli(at).UTC()
	return &hb, nil
}

// RecordAttempt appends a delivery attempt to the log. Non-blocking contract:
// errors are logged, never propagated, so a failing observability write can
// not break delivery itself.
func (s *Store) RecordAttempt(ctx context.Context, a notify.DeliveryAttempt) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, event_id, channel, kind, attempt, outcome, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EventID, a.Channel, string(a.Kind), a.Attempt, string(a.Outcome), a.Error,
		a.At.UnixMilli())
	if err != nil {
		s.logger.Warn("state: record delivery attempt failed", "error", err, "channel", a.Channel)
	}
}

// RecentDeliveries returns up to limit delivery attempts, newest first.
func (s *Store) RecentDeliveries(ctx context.Context, limit int) ([]notify.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, channel, kind, attempt, outcome, error, created_at
		FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("state: recent deliveries: %w", err)
	}
	defer rows.Close()

	var out []notify.DeliveryAttempt
	for rows.Next() {
		var a notify.DeliveryAttempt
		var kind, outcome string
		var at int64
		if err := rows.Scan(&a.ID, &a.EventID, &a.Channel, &kind, &a.Attempt, &outcome, &a.Error, &at); err != nil {
			return nil, fmt.Errorf("state: scan delivery: %w", err)
		}
		a.Kind = notify.Kind(kind)
		a.Outcome = notify.Outcome(outcome)
		a.At = time.UnixMilli(at).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Cleanup deletes heartbeat and delivery rows older than retentionDays.
// Snapshots are never cleaned: there is exactly one per target.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).UnixMilli()

	var total int64
	for _, q := range []string{
		"DELETE FROM heartbeats WHERE emitted_at < ?",
		"DELETE FROM deliveries WHERE created_at < ?",
	} {
		res, err := s.db.ExecContext(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("state: cleanup: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
