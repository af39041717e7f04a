// Package sqlite provides SQLite-backed cache generations and key-value slots.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/spdeepak/offlinecache/cache"
	"github.com/spdeepak/offlinecache/internal/sqlitemigrate"
	"github.com/spdeepak/offlinecache/kv"
	"github.com/spdeepak/offlinecache/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

var (
	_ cache.Storage = (*Store)(nil)
	_ kv.Store      = (*Store)(nil)
)

// Store persists cache generations and slots in one SQLite database.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open returns the generation called name, creating it if absent.
func (s *Store) Open(ctx context.Context, name string) (cache.Cache, error) {
	if name == "" {
		return nil, errors.New("generation name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_generations (name, created_at) VALUES (?, ?)`,
		name, toMillis(time.Now()),
	); err != nil {
		return nil, fmt.Errorf("open generation %s: %w", name, err)
	}
	return &generation{store: s, name: name}, nil
}

func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var found int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM cache_generations WHERE name = ?`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check generation %s: %w", name, err)
	}
	return true, nil
}

// Delete removes the generation; its entries go with it through the cascade.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM cache_generations WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete generation %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT name FROM cache_generations ORDER BY id`)
}

// Get returns the value of a slot.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM kv_slots WHERE slot_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get slot %s: %w", key, err)
	}
	return value, true, nil
}

// Put overwrites a slot.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO kv_slots (slot_key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(slot_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("put slot %s: %w", key, err)
	}
	return nil
}

func (s *Store) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, rows.Err()
}

type generation struct {
	store *Store
	name  string
}

func (g *generation) Match(ctx context.Context, key string) (*cache.Snapshot, bool, error) {
	var (
		status     int
		headerJSON string
		compressed []byte
		digestText string
		storedAt   int64
	)
	err := g.store.sqlDB.QueryRowContext(ctx,
		`SELECT status, headers, body, digest, stored_at FROM cache_entries
		 WHERE generation = ? AND request_key = ?`,
		g.name, key,
	).Scan(&status, &headerJSON, &compressed, &digestText, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match %s: %w", key, err)
	}

	var headers http.Header
	if err := json.Unmarshal([]byte(headerJSON), &headers); err != nil {
		return nil, false, fmt.Errorf("decode headers for %s: %w", key, err)
	}
	body, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress body for %s: %w", key, err)
	}
	snapshot := &cache.Snapshot{
		StatusCode: status,
		Headers:    headers,
		Body:       body,
		StoredAt:   fromMillis(storedAt),
		Digest:     digest.Digest(digestText),
	}
	if err := snapshot.Verify(); err != nil {
		return nil, false, fmt.Errorf("verify %s: %w", key, err)
	}
	return snapshot, true, nil
}

func (g *generation) Put(ctx context.Context, key string, entry *cache.Snapshot) error {
	headerJSON, err := json.Marshal(entry.Headers)
	if err != nil {
		return fmt.Errorf("encode headers for %s: %w", key, err)
	}
	dgst := entry.Digest
	if dgst == "" {
		dgst = digest.FromBytes(entry.Body)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}
	_, err = g.store.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_entries (generation, request_key, status, headers, body, digest, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(generation, request_key) DO UPDATE SET
		   status = excluded.status,
		   headers = excluded.headers,
		   body = excluded.body,
		   digest = excluded.digest,
		   stored_at = excluded.stored_at`,
		g.name, key, entry.StatusCode, string(headerJSON),
		encoder.EncodeAll(entry.Body, nil), dgst.String(), toMillis(storedAt),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (g *generation) Delete(ctx context.Context, key string) (bool, error) {
	res, err := g.store.sqlDB.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE generation = ? AND request_key = ?`, g.name, key)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *generation) Keys(ctx context.Context) ([]string, error) {
	return g.store.queryStrings(ctx,
		`SELECT request_key FROM cache_entries WHERE generation = ? ORDER BY rowid`, g.name)
}
