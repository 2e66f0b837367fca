// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gantry-build/gantry/lib/clock"
)

// SinkConfig holds the parameters for opening an artifact sink.
type SinkConfig struct {
	// Root is the sink directory (<data_directory>/artifacts). Blob
	// shards and the index database live under it.
	Root string

	// IndexPath is the SQLite index file. Defaults to
	// <Root>/index.db.
	IndexPath string

	// Compression is the algorithm for new blobs. Incompressible
	// content falls back to CompressionNone per blob.
	Compression CompressionTag

	// Clock provides stored-at timestamps.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Sink is the run-facing artifact store: a content-addressed blob
// directory plus a SQLite index keyed by (run id, artifact name).
// The engine publishes into it after each leaf stage with declared
// artifacts; the CLI reads from it.
//
// Sink methods are safe for concurrent use. Parallel leaf stages
// publish concurrently during a run.
type Sink struct {
	store       *Store
	index       *Index
	compression CompressionTag
	clock       clock.Clock
	logger      *slog.Logger
}

// OpenSink opens (creating if necessary) the sink directory and its
// index.
func OpenSink(cfg SinkConfig) (*Sink, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	store, err := NewStore(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("artifact sink: %w", err)
	}

	indexPath := cfg.IndexPath
	if indexPath == "" {
		indexPath = cfg.Root + "/index.db"
	}
	index, err := OpenIndex(IndexConfig{Path: indexPath, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}

	return &Sink{
		store:       store,
		index:       index,
		compression: cfg.Compression,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}, nil
}

// Close closes the index database.
func (s *Sink) Close() error {
	return s.index.Close()
}

// Put reads content, stores it as a blob, and records an index entry
// under (entry.RunID, entry.Name). The entry's Ref, Size, StoredSize,
// Compression, and CreatedAt fields are computed here and returned in
// the completed entry.
func (s *Sink) Put(ctx context.Context, entry Entry, content io.Reader) (Entry, error) {
	if entry.RunID == "" || entry.Name == "" {
		return Entry{}, fmt.Errorf("artifact sink: run id and name are required")
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return Entry{}, fmt.Errorf("artifact sink: reading %s: %w", entry.Name, err)
	}

	now := s.clock.Now()
	info, err := s.store.Write(data, s.compression, BlobInfo{
		RunID:    entry.RunID,
		Name:     entry.Name,
		NodePath: entry.NodePath,
		StoredAt: now,
	})
	if err != nil {
		return Entry{}, fmt.Errorf("artifact sink: storing %s: %w", entry.Name, err)
	}

	entry.Ref = info.Ref
	entry.Size = info.Size
	entry.StoredSize = info.StoredSize
	entry.Compression = info.Compression.String()
	entry.CreatedAt = now.UTC()

	if err := s.index.Record(ctx, entry); err != nil {
		return Entry{}, err
	}

	s.logger.Info("artifact stored",
		"run_id", entry.RunID,
		"name", entry.Name,
		"ref", entry.Ref,
		"size", entry.Size,
		"stored_size", entry.StoredSize,
		"compression", entry.Compression,
	)
	return entry, nil
}

// Open returns the index entry and verified content of an artifact
// by run id and name. Returns ErrNotFound when the run never
// published an artifact with that name.
func (s *Sink) Open(ctx context.Context, runID, name string) (Entry, []byte, error) {
	entry, err := s.index.Get(ctx, runID, name)
	if err != nil {
		return Entry{}, nil, err
	}

	content, err := s.readByRef(entry.Ref)
	if err != nil {
		return Entry{}, nil, err
	}
	return entry, content, nil
}

// List returns the index entries for all artifacts a run published.
func (s *Sink) List(ctx context.Context, runID string) ([]Entry, error) {
	return s.index.List(ctx, runID)
}

// Runs summarizes artifact counts and sizes per run, newest first.
func (s *Sink) Runs(ctx context.Context) ([]RunArtifacts, error) {
	return s.index.Runs(ctx)
}

// Inspect resolves a short ref against the blob store, reads the
// blob, verifies its content hash, and returns the header info. The
// content itself is discarded — Inspect answers "is this blob intact
// and what does its header say", independent of the index.
func (s *Sink) Inspect(ref string) (*BlobInfo, error) {
	prefix, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	hash, err := s.store.ResolveRef(prefix)
	if err != nil {
		return nil, err
	}
	info, _, err := s.store.Read(hash)
	return info, err
}

// readByRef resolves a full (non-truncated) index ref and reads the
// blob content with verification.
func (s *Sink) readByRef(ref string) ([]byte, error) {
	prefix, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	hash, err := s.store.ResolveRef(prefix)
	if err != nil {
		return nil, err
	}
	_, content, err := s.store.Read(hash)
	return content, err
}
