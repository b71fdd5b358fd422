// Package pkg provides the libraries of the queryview visualization engine.
//
// # Overview
//
// A user script runs against one embed point of a note document. It queries
// the note database, reshapes the rows, and renders tables, lists, graphs or
// custom views into an output surface owned by the embed point. State the
// script keeps survives re-renders, and everything the script set up is torn
// down when the embed point goes away.
//
// The packages, bottom up:
//
//  1. [record] - rows of the note database and their derived views
//  2. [collection] - immutable, chainable transformations over rows
//  3. [surface] - the host element, its output root and fragments
//  4. [view] - the view registry, built-in views and custom view modules
//  5. [state] - per-instance state over a fast and a durable tier
//  6. [lifecycle] - disposer bookkeeping and host observation
//  7. [queryview] - the instance a script receives, and the manager
//
// Supporting infrastructure:
//
//   - [query] - query sources: SQLite, PostgreSQL and the host kernel API
//   - [cache] - fast-tier backends: memory, file and Redis
//   - [attrs] - durable-tier backends: file, SQLite, MongoDB, S3 and the kernel
//   - [events] - host lifecycle notifications and the Redis bridge
//   - [observability] - hooks for metrics, with a Prometheus implementation
//   - [errors] - structured error codes shared by every package
//
// # Data flow
//
//	script
//	   ↓
//	[queryview] Instance.Query → [query] Source
//	   ↓
//	[collection] Pick / Filter / SortOn / GroupBy / AddCol
//	   ↓
//	[view] Registry.Build → [surface] Fragment
//	   ↓
//	Instance.Add → Surface.Append, disposer recorded by [lifecycle]
//
// On disposal the lifecycle controller runs every disposer in attach order,
// detaches its host observers, flushes [state] to the durable tier in one
// batch and releases the surface.
//
// # Quick start
//
//	src, _ := query.OpenSQLite("siyuan.db")
//	qv, _ := queryview.New(ctx, queryview.Options{
//	    ID:      "20240101120000-abc1234",
//	    Source:  src,
//	    Cache:   cache.NewMemoryCache(),
//	    Durable: attrs.NewMemoryStore(),
//	})
//	defer qv.Dispose(ctx)
//
//	docs, _ := qv.Query(ctx, "SELECT * FROM blocks WHERE type = 'd'")
//	qv.AddTable(ctx, docs.Pick("id", "content"), view.TableOptions{LinkIDs: true})
package pkg
