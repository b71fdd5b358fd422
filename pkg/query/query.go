// Package query runs SQL against the host block database and returns the
// rows as records.
//
// Three backends are provided:
//
//   - [SQL] over a database/sql handle, opened with [OpenSQLite] for a local
//     copy of the host database or [OpenPostgres] for a mirrored one
//   - [Kernel], the running host's HTTP API
//
// All of them implement [Source] and [record.Lookup]. [Kernel] additionally
// serves block attributes for reading and writing, so it doubles as the
// durable state tier.
package query

import (
	"context"

	"github.com/frostime/sy-query-view/pkg/record"
)

// Source executes a query and returns the matching rows.
type Source interface {
	Query(ctx context.Context, stmt string, args ...any) ([]record.Record, error)
	Close() error
}

// Backend is a [Source] that can also resolve host metadata for views.
type Backend interface {
	Source
	record.Lookup
}
