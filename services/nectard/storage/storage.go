// Package storage persists nectard operational records in sqlite: the audit
// trail of ledger operations, nonce usage for replay protection, and daily
// supply snapshots.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"

	gatewayauth "nectar/gateway/auth"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    partner TEXT NOT NULL DEFAULT '',
    vault_id TEXT NOT NULL DEFAULT '',
    holder TEXT NOT NULL DEFAULT '',
    amount INTEGER NOT NULL DEFAULT 0,
    detail TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_kind_created
    ON audit_events(kind, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_partner
    ON audit_events(partner, created_at);
CREATE TABLE IF NOT EXISTS api_nonce_usage (
    api_key TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    nonce TEXT NOT NULL,
    observed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (api_key, timestamp, nonce)
);
CREATE INDEX IF NOT EXISTS idx_api_nonce_usage_observed
    ON api_nonce_usage(observed_at);
CREATE TABLE IF NOT EXISTS supply_snapshots (
    day INTEGER PRIMARY KEY,
    circulating INTEGER NOT NULL,
    daily_minted INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

// FileDSN renders a sqlite DSN with the pragmas nectard relies on.
func FileDSN(path string) string {
	return fmt.Sprintf("file:%s?mode=rwc&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
}

// MemoryDSN returns an in-memory DSN, used by tests.
func MemoryDSN() string {
	return "file::memory:?cache=shared"
}

// Storage wraps the sqlite handle.
type Storage struct {
	db *sql.DB
}

// Open connects to the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases the underlying handle.
func (s *Storage) Close() error {
	return s.db.Close()
}

// AuditRecord is one row of the operation audit trail.
type AuditRecord struct {
	ID        string
	Kind      string
	Partner   string
	VaultID   string
	Holder    string
	Amount    uint64
	Detail    string
	CreatedAt time.Time
}

// RecordAudit inserts an audit row, assigning an ID when the caller left it
// empty.
func (s *Storage) RecordAudit(ctx context.Context, rec AuditRecord) (string, error) {
	if strings.TrimSpace(rec.Kind) == "" {
		return "", fmt.Errorf("storage: audit kind required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_events (id, kind, partner, vault_id, holder, amount, detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Partner, rec.VaultID, rec.Holder, int64(rec.Amount), rec.Detail, rec.CreatedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("storage: insert audit event: %w", err)
	}
	return rec.ID, nil
}

// RecentAudit returns up to limit audit rows newest first, optionally
// filtered by kind.
func (s *Storage) RecentAudit(ctx context.Context, kind string, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, kind, partner, vault_id, holder, amount, detail, created_at
FROM audit_events`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query audit events: %w", err)
	}
	defer rows.Close()
	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		var amount int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Partner, &rec.VaultID, &rec.Holder, &amount, &rec.Detail, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan audit event: %w", err)
		}
		rec.Amount = uint64(amount)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// EnsureNonce records nonce usage, reporting whether the nonce had already
// been seen. Implements gatewayauth.NoncePersistence.
func (s *Storage) EnsureNonce(ctx context.Context, rec gatewayauth.NonceRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO api_nonce_usage (api_key, timestamp, nonce, observed_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (api_key, timestamp, nonce) DO NOTHING`,
		rec.APIKey, rec.Timestamp, rec.Nonce, rec.ObservedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("storage: insert nonce usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage: nonce rows affected: %w", err)
	}
	return affected == 0, nil
}

// RecentNonces returns nonce usage observed at or after cutoff.
func (s *Storage) RecentNonces(ctx context.Context, cutoff time.Time) ([]gatewayauth.NonceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT api_key, timestamp, nonce, observed_at
FROM api_nonce_usage
WHERE observed_at >= ?
ORDER BY observed_at ASC`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage: query nonce usage: %w", err)
	}
	defer rows.Close()
	var out []gatewayauth.NonceRecord
	for rows.Next() {
		var rec gatewayauth.NonceRecord
		if err := rows.Scan(&rec.APIKey, &rec.Timestamp, &rec.Nonce, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("storage: scan nonce usage: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneNonces deletes nonce usage observed before cutoff.
func (s *Storage) PruneNonces(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM api_nonce_usage WHERE observed_at < ?`, cutoff.UTC()); err != nil {
		return fmt.Errorf("storage: prune nonce usage: %w", err)
	}
	return nil
}

// SupplySnapshot captures the point supply observed for one UTC day.
type SupplySnapshot struct {
	Day         uint64
	Circulating uint64
	DailyMinted uint64
	RecordedAt  time.Time
}

// UpsertSupplySnapshot records or refreshes the snapshot for a day.
func (s *Storage) UpsertSupplySnapshot(ctx context.Context, snap SupplySnapshot) error {
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO supply_snapshots (day, circulating, daily_minted, recorded_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (day) DO UPDATE SET
    circulating = excluded.circulating,
    daily_minted = excluded.daily_minted,
    recorded_at = excluded.recorded_at`,
		int64(snap.Day), int64(snap.Circulating), int64(snap.DailyMinted), snap.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("storage: upsert supply snapshot: %w", err)
	}
	return nil
}

// SupplyHistory returns up to limit snapshots newest first.
func (s *Storage) SupplyHistory(ctx context.Context, limit int) ([]SupplySnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT day, circulating, daily_minted, recorded_at
FROM supply_snapshots
ORDER BY day DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: query supply snapshots: %w", err)
	}
	defer rows.Close()
	var out []SupplySnapshot
	for rows.Next() {
		var snap SupplySnapshot
		var day, circulating, minted int64
		if err := rows.Scan(&day, &circulating, &minted, &snap.RecordedAt); err != nil {
			return nil, fmt.Errorf("storage: scan supply snapshot: %w", err)
		}
		snap.Day = uint64(day)
		snap.Circulating = uint64(circulating)
		snap.DailyMinted = uint64(minted)
		out = append(out, snap)
	}
	return out, rows.Err()
}
