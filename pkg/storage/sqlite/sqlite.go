// Package sqlite provides a SQLite-backed storage.Backend.
//
// Each tier gets its own table inside a shared database file, so all three
// tiers of a local deployment live in one .strata/strata.db.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/storage"
	"github.com/papercomputeco/strata/pkg/vector"
)

var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Driver implements storage.Backend using SQLite via github.com/mattn/go-sqlite3.
type Driver struct {
	db    *sql.DB
	table string
}

// NewDriver opens (or creates) the database at dbPath and ensures the items
// table for tier exists. dbPath can be ":memory:" for an in-memory database.
func NewDriver(dbPath string, tier memory.TierName) (*Driver, error) {
	table := "items_" + string(tier)
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid tier name %q", tier)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: keeps ":memory:" databases coherent and serializes
	// writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}

	d := &Driver{db: db, table: table}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return d, nil
}

func (d *Driver) migrate() error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			content          TEXT NOT NULL DEFAULT '',
			tags             TEXT NOT NULL DEFAULT '[]',
			importance       REAL NOT NULL DEFAULT 0,
			scope            TEXT NOT NULL DEFAULT '',
			embedding        BLOB,
			created_at       INTEGER NOT NULL,
			last_accessed_at INTEGER NOT NULL DEFAULT 0,
			access_count     INTEGER NOT NULL DEFAULT 0,
			metadata         TEXT NOT NULL DEFAULT '{}'
		)`, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at)`, d.table, d.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_scope ON %s(scope)`, d.table, d.table),
	}
	for _, stmt := range stmts {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Put upserts an item.
func (d *Driver) Put(ctx context.Context, item *memory.Item) (string, error) {
	if item == nil {
		return "", memory.ErrNilItem
	}
	return d.put(ctx, d.db, item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *Driver) put(ctx context.Context, ex execer, item *memory.Item) (string, error) {
	id := item.ID
	if id == "" {
		id = uuid.NewString()
	}

	tags, err := json.Marshal(nonNilTags(item.Tags))
	if err != nil {
		return "", fmt.Errorf("encoding tags: %w", err)
	}
	md, err := json.Marshal(item.Metadata)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = ex.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, content, tags, importance, scope, embedding, created_at, last_accessed_at, access_count, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tags = excluded.tags,
			importance = excluded.importance,
			scope = excluded.scope,
			embedding = excluded.embedding,
			created_at = excluded.created_at,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			metadata = excluded.metadata
	`, d.table),
		id, item.Content, string(tags), item.Importance, item.Scope,
		vector.EncodeFloat32(item.Embedding),
		toNanos(item.CreatedAt), toNanos(item.LastAccessedAt), item.AccessCount, string(md),
	)
	if err != nil {
		return "", classify(fmt.Errorf("upserting item %s: %w", id, err))
	}
	return id, nil
}

// Get retrieves an item by id.
func (d *Driver) Get(ctx context.Context, id string) (*memory.Item, error) {
	row := d.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, content, tags, importance, scope, embedding, created_at, last_accessed_at, access_count, metadata
		FROM %s WHERE id = ?
	`, d.table), id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{ID: id}
	}
	if err != nil {
		return nil, classify(fmt.Errorf("getting item %s: %w", id, err))
	}
	return item, nil
}

// Delete removes an item and reports whether it existed.
func (d *Driver) Delete(ctx context.Context, id string) (bool, error) {
	res, err := d.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, d.table), id)
	if err != nil {
		return false, classify(fmt.Errorf("deleting item %s: %w", id, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns items matching filter, oldest first. Scope, importance and
// access time are filtered in SQL; tags are matched in Go.
func (d *Driver) List(ctx context.Context, filter memory.Filter) ([]*memory.Item, error) {
	query := fmt.Sprintf(`
		SELECT id, content, tags, importance, scope, embedding, created_at, last_accessed_at, access_count, metadata
		FROM %s WHERE importance >= ?`, d.table)
	args := []any{filter.MinImportance}

	if filter.Scope != "" {
		query += ` AND scope = ?`
		args = append(args, filter.Scope)
	}
	query += ` ORDER BY created_at, id`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("listing items: %w", err))
	}
	defer rows.Close()

	var items []*memory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		if !filter.Match(item) {
			continue
		}
		items = append(items, item)
		if filter.Limit > 0 && len(items) >= filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterating items: %w", err))
	}
	return items, nil
}

// PutBatch upserts items inside a single transaction.
func (d *Driver) PutBatch(ctx context.Context, items []*memory.Item) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			return nil, memory.ErrNilItem
		}
		id, err := d.put(ctx, tx, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("committing transaction: %w", err))
	}
	return ids, nil
}

// DeleteBatch removes ids inside a single transaction.
func (d *Driver) DeleteBatch(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback()

	removed := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, d.table), id)
		if err != nil {
			return 0, classify(fmt.Errorf("deleting item %s: %w", id, err))
		}
		if n, _ := res.RowsAffected(); n > 0 {
			removed++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(fmt.Errorf("committing transaction: %w", err))
	}
	return removed, nil
}

// Stats reports item count and content bytes.
func (d *Driver) Stats(ctx context.Context) (storage.Stats, error) {
	var stats storage.Stats
	err := d.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(LENGTH(content)), 0) FROM %s`, d.table,
	)).Scan(&stats.Count, &stats.Bytes)
	if err != nil {
		return storage.Stats{}, classify(fmt.Errorf("stats: %w", err))
	}
	return stats, nil
}

// Close closes the database handle.
func (d *Driver) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (*memory.Item, error) {
	var (
		item              memory.Item
		tags, md          string
		embedding         []byte
		created, accessed int64
	)
	if err := s.Scan(&item.ID, &item.Content, &tags, &item.Importance, &item.Scope,
		&embedding, &created, &accessed, &item.AccessCount, &md); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags for %s: %w", item.ID, err)
	}
	if err := json.Unmarshal([]byte(md), &item.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", item.ID, err)
	}
	emb, err := vector.DecodeFloat32(embedding)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", item.ID, err)
	}
	item.Embedding = emb
	item.CreatedAt = fromNanos(created)
	item.LastAccessedAt = fromNanos(accessed)
	if len(item.Tags) == 0 {
		item.Tags = nil
	}
	return &item, nil
}

// classify marks busy and locked database errors as transient.
func classify(err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return storage.Transient(err)
	}
	return err
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
