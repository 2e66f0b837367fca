// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// RunLog writes structured JSONL during execution. Each line is an
// independent JSON object, making the log:
//
//   - Crash-safe: a SIGKILL mid-run preserves every completed stage
//     entry. A single JSON document would be truncated and
//     unparseable.
//   - Streamable: an operator can tail the file for stage-by-stage
//     progress instead of waiting for the final report.
//
// All methods are nil-safe no-ops, so callers that did not configure
// a run log just pass nil. Writes are serialized internally; parallel
// stages log through the same RunLog without coordination.
type RunLog struct {
	logger *slog.Logger

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewRunLog creates a JSONL run log at the given path, truncating
// any existing content. A nil logger discards write diagnostics.
func NewRunLog(path string, logger *slog.Logger) (*RunLog, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating run log %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RunLog{
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Close flushes and closes the run log file.
func (l *RunLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Start records the beginning of a run.
func (l *RunLog) Start(runID, pipeline string, stageCount int, startedAt time.Time) {
	if l == nil {
		return
	}
	l.write(runLogStartEntry{
		Type:       "run_start",
		RunID:      runID,
		Pipeline:   pipeline,
		StageCount: stageCount,
		Timestamp:  startedAt.UTC().Format(time.RFC3339),
	})
}

// Stage records a finished stage, including skipped and aborted
// ones. Stages that never started do not appear in the log; they are
// visible in the final report.
func (l *RunLog) Stage(path string, outcome Outcome, duration time.Duration, detail string) {
	if l == nil {
		return
	}
	l.write(runLogStageEntry{
		Type:       "stage",
		Path:       path,
		Outcome:    outcome.String(),
		DurationMS: duration.Milliseconds(),
		Detail:     detail,
	})
}

// Annotation records a non-fatal defect (a failed hook).
func (l *RunLog) Annotation(stage, message string) {
	if l == nil {
		return
	}
	l.write(runLogAnnotationEntry{
		Type:    "annotation",
		Stage:   stage,
		Message: message,
	})
}

// Artifact records a published artifact.
func (l *RunLog) Artifact(name, ref string, size int64, stage string) {
	if l == nil {
		return
	}
	l.write(runLogArtifactEntry{
		Type:  "artifact",
		Name:  name,
		Ref:   ref,
		Size:  size,
		Stage: stage,
	})
}

// Complete records the run's terminal outcome. Always the last line.
func (l *RunLog) Complete(outcome Outcome, duration time.Duration) {
	if l == nil {
		return
	}
	l.write(runLogCompleteEntry{
		Type:       "run_complete",
		Outcome:    outcome.String(),
		DurationMS: duration.Milliseconds(),
	})
}

func (l *RunLog) write(entry any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write run log entry", "error", err)
		return
	}
	// Sync after each line so partial progress survives a crash and
	// is visible to tailing readers immediately.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync run log", "error", err)
	}
}

// JSONL entry types. Separate structs per line type, rather than one
// struct with omitempty everywhere, keep the wire format explicit.

// runLogStartEntry is the first line, written at run start.
type runLogStartEntry struct {
	Type       string `json:"type"`
	RunID      string `json:"run_id"`
	Pipeline   string `json:"pipeline"`
	StageCount int    `json:"stage_count"`
	Timestamp  string `json:"timestamp"`
}

// runLogStageEntry is written after each stage finishes.
type runLogStageEntry struct {
	Type       string `json:"type"`
	Path       string `json:"path"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Detail     string `json:"detail,omitempty"`
}

// runLogAnnotationEntry is written when a hook fails.
type runLogAnnotationEntry struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// runLogArtifactEntry is written when a stage publishes an artifact.
type runLogArtifactEntry struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Ref   string `json:"ref"`
	Size  int64  `json:"size"`
	Stage string `json:"stage"`
}

// runLogCompleteEntry is the last line, written once per run.
type runLogCompleteEntry struct {
	Type       string `json:"type"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
}
