// Package sqlite persists cache entries in a SQLite database so warm entries
// survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/couchcryptid/bloom-forecast/internal/domain"
)

//go:embed schema.sql
var schema string

const table = "cache_entries"

var columns = []string{"key", "data_type", "data", "stored_at", "hits", "last_accessed"}

// Store implements domain.CacheStore on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the entry for key and records the access.
func (s *Store) Get(ctx context.Context, key string, now time.Time) (domain.CacheEntry, bool, error) {
	query, args, err := sq.Update(table).
		Set("hits", sq.Expr("hits + 1")).
		Set("last_accessed", now.UnixNano()).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("record cache access: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.CacheEntry{}, false, nil
	}

	query, args, err = sq.Select(columns...).From(table).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return domain.CacheEntry{}, false, fmt.Errorf("build select: %w", err)
	}
	e, err := scanEntry(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, err
	}
	return e, true, nil
}

// Put stores entry, overwriting any existing value for its key.
func (s *Store) Put(ctx context.Context, e domain.CacheEntry) error {
	lastAccessed := e.LastAccessed
	if lastAccessed.IsZero() {
		lastAccessed = e.Timestamp
	}
	data := []byte(e.Data)
	if data == nil {
		data = []byte("null")
	}

	query, args, err := sq.Insert(table).
		Columns("key", "data_type", "data", "stored_at", "expires_at", "hits", "last_accessed").
		Values(e.Key, string(e.DataType), data, e.Timestamp.UnixNano(), e.ExpiresAt().UnixNano(), e.Hits, lastAccessed.UnixNano()).
		Suffix(`ON CONFLICT(key) DO UPDATE SET
			data_type = excluded.data_type,
			data = excluded.data,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at,
			hits = excluded.hits,
			last_accessed = excluded.last_accessed`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("put cache entry %s: %w", e.Key, err)
	}
	return nil
}

// Purge deletes every entry that is no longer fresh at now.
func (s *Store) Purge(ctx context.Context, now time.Time) (int, error) {
	query, args, err := sq.Delete(table).Where(sq.LtOrEq{"expires_at": now.UnixNano()}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	return int(n), nil
}

// Expiring lists fresh entries of dataType whose TTL ends within the window,
// soonest first.
func (s *Store) Expiring(ctx context.Context, dataType domain.DataType, now time.Time, within time.Duration) ([]domain.CacheEntry, error) {
	query, args, err := sq.Select(columns...).
		From(table).
		Where(sq.Eq{"data_type": string(dataType)}).
		Where(sq.Gt{"expires_at": now.UnixNano()}).
		Where(sq.LtOrEq{"expires_at": now.Add(within).UnixNano()}).
		OrderBy("expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expiring entries: %w", err)
	}
	defer rows.Close()

	var out []domain.CacheEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list expiring entries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.CacheEntry, error) {
	var (
		e            domain.CacheEntry
		dataType     string
		data         []byte
		storedAt     int64
		lastAccessed int64
	)
	if err := row.Scan(&e.Key, &dataType, &data, &storedAt, &e.Hits, &lastAccessed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("scan cache entry: %w", err)
	}
	e.DataType = domain.DataType(dataType)
	e.Data = data
	e.Timestamp = time.Unix(0, storedAt).UTC()
	e.LastAccessed = time.Unix(0, lastAccessed).UTC()
	return e, nil
}
