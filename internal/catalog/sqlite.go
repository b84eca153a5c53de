package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/shehryarbajwa/browserbase-chat/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS models (
	id         TEXT PRIMARY KEY,
	grp        TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteStore keeps the catalog in a single SQLite file
type SQLiteStore struct {
	db  *sql.DB
	now Clock
}

// OpenSQLite opens (and migrates) the catalog database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(path string, now Clock) (*SQLiteStore, error) {
	if now == nil {
		now = time.Now
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; a single connection also
	// keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, now: now}, nil
}

func (s *SQLiteStore) GetCache(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM cache WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}

	entry := CacheEntry{Key: key, Value: value, ExpiresAt: time.UnixMilli(expiresAt)}
	if !entry.Valid(s.now()) {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) PutCache(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) ReplaceModels(ctx context.Context, records []models.ModelRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM models`); err != nil {
		return fmt.Errorf("clear models: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO models (id, grp, created_at, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Group, r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("insert model %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) FindGroup(ctx context.Context, modelID string) (string, bool, error) {
	var group string
	err := s.db.QueryRowContext(ctx, `SELECT grp FROM models WHERE id = ?`, modelID).Scan(&group)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find model %s: %w", modelID, err)
	}
	return group, true, nil
}

func (s *SQLiteStore) ListModels(ctx context.Context) ([]models.ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, grp, created_at, updated_at FROM models ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var out []models.ModelRecord
	for rows.Next() {
		var r models.ModelRecord
		var created, updated int64
		if err := rows.Scan(&r.ID, &r.Group, &created, &updated); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created)
		r.UpdatedAt = time.UnixMilli(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
