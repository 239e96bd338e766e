package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores the record as rows of a two-column table, one row per
// field. It is the durable backend for single-device deployments.
type SQLiteBackend struct {
	db        *sql.DB
	writeLock sync.Mutex // go-sqlite does not support concurrent writes
}

// OpenSQLiteBackend opens (creating if needed) the database at path and
// initializes the schema.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS session_fields (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context) (map[string]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT name, value FROM session_fields")
	if err != nil {
		return nil, fmt.Errorf("%w: query fields: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	fields := make(map[string]string, len(Fields))
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("%w: scan field: %v", ErrUnavailable, err)
		}
		fields[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate fields: %v", ErrUnavailable, err)
	}
	return fields, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	for name, value := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_fields (name, value) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
			name, value,
		); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", ErrUnavailable, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrUnavailable, err)
	}
	return nil
}

func (b *SQLiteBackend) Reset(ctx context.Context) error {
	b.writeLock.Lock()
	defer b.writeLock.Unlock()

	if _, err := b.db.ExecContext(ctx, "DELETE FROM session_fields"); err != nil {
		return fmt.Errorf("%w: delete fields: %v", ErrUnavailable, err)
	}
	return nil
}

// Close releases the database handle.
func (b *SQLiteBackend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}
