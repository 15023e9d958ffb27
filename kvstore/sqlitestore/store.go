// Package sqlitestore is a durable kvstore backed by a single SQLite file.
// Each logical store (credentials, pending writes) is a named bucket in one table.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-session-sync/kvstore"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver, registers as "sqlite"
)

const (
	BucketCredentials     = "credentials"
	BucketPendingWorkouts = "pending_workouts"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv (
		bucket TEXT NOT NULL,
		key    TEXT NOT NULL,
		value  BLOB NOT NULL,
		seq    INTEGER NOT NULL,
		PRIMARY KEY (bucket, key)
	)`,
	`CREATE INDEX IF NOT EXISTS kv_bucket_seq ON kv (bucket, seq)`,
}

// DB wraps the SQLite connection.
type DB struct {
	Conn *sql.DB
}

// Open creates the parent folder if needed, opens the database and applies the schema.
func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent callers.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range migrations {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	log.Debug().Str("path", dbPath).Msg("[sqlitestore] database opened")
	return &DB{Conn: conn}, nil
}

// Close closes the database.
func (db *DB) Close() error {
	return db.Conn.Close()
}

// Bucket returns a kvstore.Repo scoped to the named bucket.
func (db *DB) Bucket(name string) kvstore.Repo {
	return &bucket{db: db.Conn, name: name}
}

type bucket struct {
	db   *sql.DB
	name string
}

var _ kvstore.Repo = (*bucket)(nil)

func (b *bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE bucket = ? AND key = ?`, b.name, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kvstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", b.name, key, err)
	}
	return value, nil
}

// Put upserts the value; an existing key keeps its original sequence so iteration order is stable.
func (b *bucket) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if value == nil {
		value = []byte{}
	}
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO kv (bucket, key, value, seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv))
		ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value`,
		b.name, key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM kv WHERE bucket = ? AND key = ?`, b.name, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", b.name, key, err)
	}
	return nil
}

func (b *bucket) List(ctx context.Context) ([]kvstore.Item, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE bucket = ? ORDER BY seq`, b.name)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", b.name, err)
	}
	defer rows.Close()

	items := make([]kvstore.Item, 0)
	for rows.Next() {
		var item kvstore.Item
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", b.name, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", b.name, err)
	}
	return items, nil
}
