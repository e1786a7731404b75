// Package sqlitestore persists the document-store keyspace in a local SQLite
// database, one JSON document per key. It backs the daemon and ctl; the
// in-memory store backs tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mrezende/courier/internal/bus"
	"github.com/mrezende/courier/internal/remote"
)

// DB wraps a SQLite connection holding the documents table.
type DB struct {
	*sql.DB
	notify *bus.Bus
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{DB: db, notify: bus.New()}, nil
}

// Read returns the JSON-decoded document at key, or remote.ErrAbsent.
func (db *DB) Read(ctx context.Context, key string) (any, error) {
	var raw []byte
	err := db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, remote.ErrAbsent
	}
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return value, nil
}

// Write replaces the document at key with value. Whole-document last write
// wins, matching the remote contract.
func (db *DB) Write(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	now := time.Now().UnixMilli()
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (key, doc, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			doc = excluded.doc,
			updated_at = excluded.updated_at`,
		key, string(raw), now)
	if err != nil {
		return fmt.Errorf("write %q: %w", key, err)
	}

	// Subscribers observe the JSON shape, same as a fresh Read.
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode written %q: %w", key, err)
	}
	db.notify.Publish(bus.Event{
		Key:       key,
		Timestamp: time.Now(),
		Value:     decoded,
	})
	return nil
}

// Subscribe observes key: current value first if present, then every write
// made through this connection.
func (db *DB) Subscribe(key string, fn func(value any)) *remote.Subscription {
	ch, unsub := db.notify.Subscribe(key, 64)

	initial, err := db.Read(context.Background(), key)
	hasInitial := err == nil

	return remote.NewSubscription(initial, hasInitial, ch, unsub, fn)
}
