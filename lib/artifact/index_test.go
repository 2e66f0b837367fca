// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := OpenIndex(IndexConfig{
		Path: filepath.Join(t.TempDir(), "index.db"),
	})
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	t.Cleanup(func() { index.Close() })
	return index
}

func testEntry(runID, name string, createdAt time.Time) Entry {
	return Entry{
		RunID:       runID,
		Name:        name,
		Ref:         "art-abc123def456",
		Size:        1024,
		StoredSize:  300,
		Compression: "zstd",
		NodePath:    "build",
		CreatedAt:   createdAt,
	}
}

func TestIndexRecordGet(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	want := testEntry("run-1", "binary", createdAt)
	if err := index.Record(ctx, want); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	got, err := index.Get(ctx, "run-1", "binary")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != want {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
}

func TestIndexGetMissing(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()

	if _, err := index.Get(ctx, "run-1", "nothing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get of missing entry = %v, want ErrNotFound", err)
	}
}

func TestIndexRecordReplaces(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	createdAt := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	first := testEntry("run-1", "binary", createdAt)
	if err := index.Record(ctx, first); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A retried publish replaces the row rather than failing the
	// unique constraint.
	second := first
	second.Ref = "art-fedcba987654"
	second.Size = 2048
	second.CreatedAt = createdAt.Add(time.Minute)
	if err := index.Record(ctx, second); err != nil {
		t.Fatalf("second Record failed: %v", err)
	}

	got, err := index.Get(ctx, "run-1", "binary")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Ref != "art-fedcba987654" || got.Size != 2048 {
		t.Errorf("Get after replace = %+v, want second entry", got)
	}

	entries, err := index.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List returned %d entries, want 1", len(entries))
	}
}

func TestIndexList(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	// Insert out of chronological order.
	for _, entry := range []Entry{
		testEntry("run-1", "coverage", base.Add(2*time.Minute)),
		testEntry("run-1", "binary", base),
		testEntry("run-2", "binary", base.Add(time.Minute)),
		testEntry("run-1", "report", base.Add(2*time.Minute)),
	} {
		if err := index.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	entries, err := index.List(ctx, "run-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	if len(entries) != 3 {
		t.Fatalf("List returned %d entries, want 3: %v", len(entries), names)
	}

	// Ordered by created_at, then name for ties.
	want := []string{"binary", "coverage", "report"}
	for i, name := range want {
		if entries[i].Name != name {
			t.Errorf("List[%d].Name = %q, want %q (order %v)", i, entries[i].Name, name, names)
		}
	}

	empty, err := index.List(ctx, "run-none")
	if err != nil {
		t.Fatalf("List of unknown run failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List of unknown run returned %d entries", len(empty))
	}
}

func TestIndexRuns(t *testing.T) {
	index := newTestIndex(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	for _, entry := range []Entry{
		testEntry("run-1", "binary", base),
		testEntry("run-1", "coverage", base.Add(time.Minute)),
		testEntry("run-2", "binary", base.Add(time.Hour)),
	} {
		if err := index.Record(ctx, entry); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	runs, err := index.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Runs returned %d summaries, want 2", len(runs))
	}

	// Newest run first.
	if runs[0].RunID != "run-2" || runs[0].Count != 1 {
		t.Errorf("Runs[0] = %+v, want run-2 with 1 artifact", runs[0])
	}
	if runs[1].RunID != "run-1" || runs[1].Count != 2 {
		t.Errorf("Runs[1] = %+v, want run-1 with 2 artifacts", runs[1])
	}
	if runs[1].TotalSize != 2048 {
		t.Errorf("Runs[1].TotalSize = %d, want 2048", runs[1].TotalSize)
	}
}

func TestIndexPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	index, err := OpenIndex(IndexConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenIndex failed: %v", err)
	}
	entry := testEntry("run-1", "binary", time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC))
	if err := index.Record(ctx, entry); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := index.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenIndex(IndexConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "run-1", "binary")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got != entry {
		t.Errorf("Get after reopen = %+v, want %+v", got, entry)
	}
}
