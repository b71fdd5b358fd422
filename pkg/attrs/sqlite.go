package attrs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteStore keeps attributes in a single sqlite table, one row per
// (element, attribute) pair.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "queryview.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	return newSQLiteStore(db)
}

func newSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS block_attrs (
		block_id TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (block_id, name)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create block_attrs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle so a query source can share it.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Read(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM block_attrs WHERE block_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("select attrs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Write(ctx context.Context, id string, attrs map[string]string) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for name, value := range attrs {
		if value == "" {
			_, err = tx.ExecContext(ctx, `DELETE FROM block_attrs WHERE block_id = ? AND name = ?`, id, name)
		} else {
			_, err = tx.ExecContext(ctx, `INSERT INTO block_attrs (block_id, name, value) VALUES (?, ?, ?)
				ON CONFLICT(block_id, name) DO UPDATE SET value = excluded.value`, id, name, value)
		}
		if err != nil {
			return fmt.Errorf("write attr %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
