package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/frostime/sy-query-view/pkg/errors"
	"github.com/frostime/sy-query-view/pkg/record"
)

// Schema creates the subset of the host schema the engine queries. It is
// used to seed local databases.
const Schema = `
CREATE TABLE IF NOT EXISTS blocks (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	root_id TEXT NOT NULL DEFAULT '',
	box TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	hpath TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	alias TEXT NOT NULL DEFAULT '',
	memo TEXT NOT NULL DEFAULT '',
	tag TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	markdown TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL DEFAULT '',
	subtype TEXT NOT NULL DEFAULT '',
	ial TEXT NOT NULL DEFAULT '',
	created TEXT NOT NULL DEFAULT '',
	updated TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS attributes (
	block_id TEXT NOT NULL,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (block_id, name)
);
CREATE TABLE IF NOT EXISTS notebooks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
`

// lookupTimeout bounds the metadata queries behind [record.Lookup], which
// carries no context.
const lookupTimeout = 5 * time.Second

// SQL is a [Backend] over a database/sql handle.
type SQL struct {
	db      *sql.DB
	dialect string
}

// NewSQL wraps db. dialect selects the placeholder style: "postgres" uses
// $1, anything else uses ?.
func NewSQL(db *sql.DB, dialect string) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// OpenSQLite opens a SQLite database file, or an in-memory one for
// ":memory:".
func OpenSQLite(path string) (*SQL, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "open sqlite %s", path)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return NewSQL(db, "sqlite"), nil
}

// OpenPostgres connects to a PostgreSQL mirror of the host database.
func OpenPostgres(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "ping postgres")
	}
	return NewSQL(db, "postgres"), nil
}

// DB returns the underlying handle.
func (s *SQL) DB() *sql.DB { return s.db }

// Init creates the host tables if they do not exist.
func (s *SQL) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create schema")
	}
	return nil
}

// Query implements [Source].
func (s *SQL) Query(ctx context.Context, stmt string, args ...any) ([]record.Record, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "query")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read columns")
	}
	var out []record.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "scan row")
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if v := normalizeValue(vals[i]); v != nil {
				m[c] = v
			}
		}
		out = append(out, record.New(m))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "iterate rows")
	}
	return out, nil
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(record.TimeLayout)
	}
	return v
}

func (s *SQL) placeholder(n int) string {
	if s.dialect == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// NotebookName implements [record.Lookup] from the notebooks table.
func (s *SQL) NotebookName(box string) string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	var name string
	q := "SELECT name FROM notebooks WHERE id = " + s.placeholder(1)
	if err := s.db.QueryRowContext(ctx, q, box).Scan(&name); err != nil {
		return ""
	}
	return name
}

// Attrs implements [record.Lookup] from the attributes table.
func (s *SQL) Attrs(id string) map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	q := "SELECT name, value FROM attributes WHERE block_id = " + s.placeholder(1)
	rows, err := s.db.QueryContext(ctx, q, id)
	if err != nil {
		return nil
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if rows.Scan(&k, &v) == nil {
			out[k] = v
		}
	}
	return out
}

// Close closes the database handle.
func (s *SQL) Close() error { return s.db.Close() }
