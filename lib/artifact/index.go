// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/gantry-build/gantry/lib/sqlitepool"
)

// indexSchema creates the artifact index table. The blob files are
// the source of truth; this table exists for keyed lookup (run id,
// artifact name) and listing without scanning blob headers.
const indexSchema = `
	CREATE TABLE IF NOT EXISTS artifacts (
		run_id      TEXT NOT NULL,
		name        TEXT NOT NULL,
		ref         TEXT NOT NULL,
		size        INTEGER NOT NULL,
		stored_size INTEGER NOT NULL,
		compression TEXT NOT NULL,
		node_path   TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		UNIQUE (run_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id, created_at);
`

// Entry is one row of the artifact index: an artifact published by a
// run, pointing at a blob via its ref.
type Entry struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	Ref         string    `json:"ref"`
	Size        int64     `json:"size"`
	StoredSize  int64     `json:"stored_size"`
	Compression string    `json:"compression"`
	NodePath    string    `json:"node_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// RunArtifacts summarizes the artifacts of a single run.
type RunArtifacts struct {
	RunID     string `json:"run_id"`
	Count     int    `json:"count"`
	TotalSize int64  `json:"total_size"`
}

// IndexConfig holds the parameters for opening an artifact index.
type IndexConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 2 if zero or negative — the index sees one writer (the engine)
	// and occasional CLI readers.
	PoolSize int

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Index is the SQLite-backed artifact index.
type Index struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// OpenIndex opens (creating if necessary) the artifact index
// database and ensures the schema exists.
func OpenIndex(cfg IndexConfig) (*Index, error) {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 2
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("artifact index: %w", err)
	}

	index := &Index{pool: pool, logger: cfg.Logger}
	if err := index.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("artifact index: %w", err)
	}
	return index, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (idx *Index) Close() error {
	return idx.pool.Close()
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return err
	}
	defer idx.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, indexSchema, nil); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Record inserts an index entry. Re-recording the same (run id,
// name) replaces the previous row, making a retried publish
// idempotent.
func (idx *Index) Record(ctx context.Context, entry Entry) error {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("artifact index: record: %w", err)
	}
	defer idx.pool.Put(conn)

	err = sqlitex.Execute(conn, `
		INSERT INTO artifacts
			(run_id, name, ref, size, stored_size, compression, node_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, name) DO UPDATE SET
			ref = excluded.ref,
			size = excluded.size,
			stored_size = excluded.stored_size,
			compression = excluded.compression,
			node_path = excluded.node_path,
			created_at = excluded.created_at`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.RunID,
				entry.Name,
				entry.Ref,
				entry.Size,
				entry.StoredSize,
				entry.Compression,
				entry.NodePath,
				entry.CreatedAt.Unix(),
			},
		})
	if err != nil {
		return fmt.Errorf("artifact index: record %s/%s: %w", entry.RunID, entry.Name, err)
	}
	return nil
}

// Get returns the entry for a single artifact by run id and name.
// Returns ErrNotFound if no such artifact was published.
func (idx *Index) Get(ctx context.Context, runID, name string) (Entry, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("artifact index: get: %w", err)
	}
	defer idx.pool.Put(conn)

	var entry Entry
	found := false
	err = sqlitex.Execute(conn, `
		SELECT run_id, name, ref, size, stored_size, compression, node_path, created_at
		FROM artifacts WHERE run_id = ? AND name = ?`,
		&sqlitex.ExecOptions{
			Args: []any{runID, name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entry = scanEntry(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Entry{}, fmt.Errorf("artifact index: get %s/%s: %w", runID, name, err)
	}
	if !found {
		return Entry{}, fmt.Errorf("artifact %s/%s: %w", runID, name, ErrNotFound)
	}
	return entry, nil
}

// List returns all artifacts published by a run, ordered by creation
// time then name. Returns an empty slice for a run with no artifacts.
func (idx *Index) List(ctx context.Context, runID string) ([]Entry, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact index: list: %w", err)
	}
	defer idx.pool.Put(conn)

	var entries []Entry
	err = sqlitex.Execute(conn, `
		SELECT run_id, name, ref, size, stored_size, compression, node_path, created_at
		FROM artifacts WHERE run_id = ?
		ORDER BY created_at, name`,
		&sqlitex.ExecOptions{
			Args: []any{runID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, scanEntry(stmt))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("artifact index: list %s: %w", runID, err)
	}
	return entries, nil
}

// Runs summarizes artifact counts and sizes per run, newest first.
func (idx *Index) Runs(ctx context.Context) ([]RunArtifacts, error) {
	conn, err := idx.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifact index: runs: %w", err)
	}
	defer idx.pool.Put(conn)

	var runs []RunArtifacts
	err = sqlitex.Execute(conn, `
		SELECT run_id, COUNT(*), SUM(size)
		FROM artifacts
		GROUP BY run_id
		ORDER BY MAX(created_at) DESC`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				runs = append(runs, RunArtifacts{
					RunID:     stmt.ColumnText(0),
					Count:     stmt.ColumnInt(1),
					TotalSize: stmt.ColumnInt64(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("artifact index: runs: %w", err)
	}
	return runs, nil
}

// scanEntry reads one artifacts row from a statement positioned on a
// result.
func scanEntry(stmt *sqlite.Stmt) Entry {
	return Entry{
		RunID:       stmt.ColumnText(0),
		Name:        stmt.ColumnText(1),
		Ref:         stmt.ColumnText(2),
		Size:        stmt.ColumnInt64(3),
		StoredSize:  stmt.ColumnInt64(4),
		Compression: stmt.ColumnText(5),
		NodePath:    stmt.ColumnText(6),
		CreatedAt:   time.Unix(stmt.ColumnInt64(7), 0).UTC(),
	}
}
