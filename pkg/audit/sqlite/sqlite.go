// Package sqlite provides a SQLite-backed audit.Sink.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/strata/pkg/audit"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Sink appends audit entries to an audit_log table. Duplicate fingerprints are
// dropped by a UNIQUE constraint.
type Sink struct {
	db *sql.DB
}

// NewSink opens (or creates) the audit log at dbPath.
func NewSink(dbPath string) (*Sink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_log (
			seq          INTEGER PRIMARY KEY AUTOINCREMENT,
			fingerprint  TEXT NOT NULL UNIQUE,
			kind         TEXT NOT NULL,
			item_id      TEXT NOT NULL,
			tier         TEXT NOT NULL DEFAULT '',
			scope        TEXT NOT NULL DEFAULT '',
			source_tier  TEXT NOT NULL DEFAULT '',
			target_tier  TEXT NOT NULL DEFAULT '',
			new_id       TEXT NOT NULL DEFAULT '',
			recorded_at  INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Sink{db: db}, nil
}

func (s *Sink) Append(ctx context.Context, e audit.Entry) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_log
			(fingerprint, kind, item_id, tier, scope, source_tier, target_tier, new_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Fingerprint, string(e.Kind), e.ItemID, string(e.Tier), e.Scope,
		string(e.SourceTier), string(e.TargetTier), e.NewID, e.RecordedAt.UnixNano())
	if err != nil {
		return false, fmt.Errorf("inserting audit entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *Sink) List(ctx context.Context, limit int) ([]audit.Entry, error) {
	query := `SELECT fingerprint, kind, item_id, tier, scope, source_tier, target_tier, new_id, recorded_at
		FROM audit_log ORDER BY seq`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e                          audit.Entry
			kind, tier, source, target string
			recorded                   int64
		)
		if err := rows.Scan(&e.Fingerprint, &kind, &e.ItemID, &tier, &e.Scope,
			&source, &target, &e.NewID, &recorded); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Kind = audit.Kind(kind)
		e.Tier = memory.TierName(tier)
		e.SourceTier = memory.TierName(source)
		e.TargetTier = memory.TierName(target)
		e.RecordedAt = time.Unix(0, recorded).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Sink) Close() error {
	return s.db.Close()
}
