// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/gantry-build/gantry/lib/pipeline"
)

// ArtifactRecord is one artifact published by a run, as surfaced in
// the report. The full index row lives in the artifact store; the
// report carries just enough to find it.
type ArtifactRecord struct {
	// Name keys the artifact within the run.
	Name string `json:"name"`

	// Ref is the content-addressed blob reference.
	Ref string `json:"ref"`

	// Size is the artifact's uncompressed size in bytes.
	Size int64 `json:"size"`

	// Stage is the slash-joined path of the stage that published it.
	Stage string `json:"stage"`
}

// Annotation is a non-fatal defect attached to the run: a hook
// command that failed after its stage's outcome was already
// finalized. Any annotation makes the run's effective outcome at
// least Unstable.
type Annotation struct {
	// Stage is the stage path (or hook path such as
	// "hooks.cleanup[0]") the annotation refers to.
	Stage string `json:"stage"`

	// Message describes what went wrong.
	Message string `json:"message"`
}

// RunContext is the shared state of one pipeline execution: the
// resolved environment every gate and command reads, the trigger
// metadata, and the append-only artifact and annotation lists that
// concurrently executing stages write into.
//
// The environment is immutable after construction. The artifact and
// annotation lists are safe for concurrent appends.
type RunContext struct {
	runID   string
	trigger pipeline.Trigger
	env     map[string]string

	mu          sync.Mutex
	artifacts   []ArtifactRecord
	annotations []Annotation
	outcome     Outcome
	outcomeSet  bool
}

// NewRunContext builds the state for one run. The environment map is
// copied; later changes to the caller's map do not leak into the
// run.
func NewRunContext(runID string, trigger pipeline.Trigger, env map[string]string) *RunContext {
	return &RunContext{
		runID:   runID,
		trigger: trigger,
		env:     maps.Clone(env),
	}
}

// RunID returns the run's unique identifier.
func (r *RunContext) RunID() string { return r.runID }

// Branch returns the branch the run was triggered for.
func (r *RunContext) Branch() string { return r.trigger.Branch }

// Trigger returns the trigger metadata the run started from.
func (r *RunContext) Trigger() pipeline.Trigger { return r.trigger }

// Environment returns the resolved run environment: declared
// variables, decrypted secrets, and trigger built-ins. Callers must
// treat the map as read-only.
func (r *RunContext) Environment() map[string]string {
	if r.env == nil {
		return map[string]string{}
	}
	return r.env
}

// AddArtifact appends a published artifact to the run's list.
func (r *RunContext) AddArtifact(record ArtifactRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts = append(r.artifacts, record)
}

// Artifacts returns a copy of the artifacts published so far, in
// publication order.
func (r *RunContext) Artifacts() []ArtifactRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ArtifactRecord(nil), r.artifacts...)
}

// Annotate records a non-fatal defect against the run.
func (r *RunContext) Annotate(stage, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations = append(r.annotations, Annotation{Stage: stage, Message: message})
}

// Annotations returns a copy of the annotations recorded so far.
func (r *RunContext) Annotations() []Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Annotation(nil), r.annotations...)
}

// FinalizeOutcome sets the run's terminal outcome. Only the first
// call takes effect; it returns false when the outcome was already
// finalized.
func (r *RunContext) FinalizeOutcome(outcome Outcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomeSet {
		return false
	}
	r.outcome = outcome
	r.outcomeSet = true
	return true
}

// Outcome returns the finalized outcome, and whether finalization
// has happened.
func (r *RunContext) Outcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.outcomeSet
}

// NewRunID returns a fresh run identifier: "run-" plus a UTC
// timestamp and a random suffix. IDs sort by start time at second
// granularity.
func NewRunID(now time.Time) string {
	var suffix [2]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("run-%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(suffix[:]))
}
