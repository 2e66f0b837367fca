// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gantry-build/gantry/lib/artifact"
	"github.com/gantry-build/gantry/lib/config"
)

// openTestSink opens the artifact store behind a config file the way
// the subcommands do, for direct inspection in tests.
func openTestSink(t *testing.T, configPath string) *artifact.Sink {
	t.Helper()
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	sink, err := artifact.OpenSink(artifact.SinkConfig{
		Root:      cfg.ArtifactsDirectory(),
		IndexPath: cfg.ArtifactIndexPath(),
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

// TestArtifactStoreFlow runs a pipeline that captures an artifact,
// then reads it back through every artifact subcommand.
func TestArtifactStoreFlow(t *testing.T) {
	t.Parallel()

	configPath := writeConfig(t)
	workDirectory := t.TempDir()
	outFile := filepath.Join(workDirectory, "coverage.txt")

	pipelinePath := writePipeline(t, fmt.Sprintf(`{
  "stages": [
    {
      "name": "test",
      "run": [{"run": "printf 'coverage: 87.4%%%%' > %s"}],
      "artifacts": [{"name": "coverage", "path": %q}]
    }
  ]
}`, outFile, outFile))

	if err := executeRoot(t, "run", pipelinePath, "--config", configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	sink := openTestSink(t, configPath)
	runs, err := sink.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	runID := runs[0].RunID

	entries, err := sink.List(context.Background(), runID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "coverage" {
		t.Fatalf("entries = %+v, want one named coverage", entries)
	}

	if err := executeRoot(t, "artifact", "list", "--config", configPath); err != nil {
		t.Errorf("artifact list: %v", err)
	}
	if err := executeRoot(t, "artifact", "list", "--run", runID, "--config", configPath); err != nil {
		t.Errorf("artifact list --run: %v", err)
	}

	fetched := filepath.Join(workDirectory, "fetched.txt")
	if err := executeRoot(t, "artifact", "show", "--run", runID, "coverage", "-o", fetched, "--config", configPath); err != nil {
		t.Fatalf("artifact show: %v", err)
	}
	content, err := os.ReadFile(fetched)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "coverage: 87.4%" {
		t.Errorf("fetched content = %q, want %q", content, "coverage: 87.4%")
	}

	if err := executeRoot(t, "artifact", "inspect", entries[0].Ref, "--config", configPath); err != nil {
		t.Errorf("artifact inspect: %v", err)
	}
}

func TestArtifactListEmptyStore(t *testing.T) {
	t.Parallel()

	if err := executeRoot(t, "artifact", "list", "--config", writeConfig(t)); err != nil {
		t.Fatalf("artifact list on empty store: %v", err)
	}
}

func TestArtifactShowRequiresRun(t *testing.T) {
	t.Parallel()

	err := executeRoot(t, "artifact", "show", "coverage", "--config", writeConfig(t))
	if err == nil {
		t.Fatal("expected error without --run")
	}
	if !strings.Contains(err.Error(), "--run is required") {
		t.Errorf("error %q should require --run", err.Error())
	}
}

func TestArtifactShowUnknownName(t *testing.T) {
	t.Parallel()

	err := executeRoot(t, "artifact", "show", "--run", "run-unknown", "missing", "--config", writeConfig(t))
	if err == nil {
		t.Fatal("expected error for unknown artifact")
	}
}

func TestArtifactInspectInvalidRef(t *testing.T) {
	t.Parallel()

	err := executeRoot(t, "artifact", "inspect", "not-a-ref", "--config", writeConfig(t))
	if err == nil {
		t.Fatal("expected error for malformed ref")
	}
	if !strings.Contains(err.Error(), "invalid artifact ref") {
		t.Errorf("error %q should reject the ref format", err.Error())
	}
}
