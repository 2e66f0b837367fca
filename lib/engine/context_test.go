// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gantry-build/gantry/lib/pipeline"
)

func TestRunContextEnvironment(t *testing.T) {
	t.Parallel()

	source := map[string]string{"REGION": "eu-west-1"}
	run := NewRunContext("run-1", pipeline.Trigger{Branch: "main"}, source)

	source["REGION"] = "mutated"
	if got := run.Environment()["REGION"]; got != "eu-west-1" {
		t.Errorf("environment leaked caller mutation: %q", got)
	}
	if run.Branch() != "main" {
		t.Errorf("branch = %q", run.Branch())
	}
	if run.RunID() != "run-1" {
		t.Errorf("run id = %q", run.RunID())
	}

	empty := NewRunContext("run-2", pipeline.Trigger{}, nil)
	if env := empty.Environment(); env == nil || len(env) != 0 {
		t.Errorf("nil source should yield an empty environment, got %v", env)
	}
}

func TestRunContextArtifacts(t *testing.T) {
	t.Parallel()

	run := NewRunContext("run-1", pipeline.Trigger{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			run.AddArtifact(ArtifactRecord{
				Name:  fmt.Sprintf("report-%d", i),
				Ref:   "art-000000000000",
				Stage: "analyze",
			})
		}(i)
	}
	wg.Wait()

	artifacts := run.Artifacts()
	if len(artifacts) != 16 {
		t.Fatalf("artifacts = %d, want 16", len(artifacts))
	}

	// The returned slice is a copy.
	artifacts[0].Name = "tampered"
	if run.Artifacts()[0].Name == "tampered" {
		t.Error("Artifacts() must return a copy")
	}
}

func TestRunContextAnnotations(t *testing.T) {
	t.Parallel()

	run := NewRunContext("run-1", pipeline.Trigger{}, nil)
	if got := run.Annotations(); len(got) != 0 {
		t.Errorf("fresh context annotations = %v", got)
	}

	run.Annotate("build", "hook exited 1")
	run.Annotate("hooks.cleanup[0]", "hook exited 2")

	annotations := run.Annotations()
	if len(annotations) != 2 {
		t.Fatalf("annotations = %d, want 2", len(annotations))
	}
	if annotations[0].Stage != "build" || annotations[0].Message != "hook exited 1" {
		t.Errorf("annotation[0] = %+v", annotations[0])
	}
	if annotations[1].Stage != "hooks.cleanup[0]" {
		t.Errorf("annotation[1] = %+v", annotations[1])
	}
}

func TestRunContextFinalizeOutcome(t *testing.T) {
	t.Parallel()

	run := NewRunContext("run-1", pipeline.Trigger{}, nil)
	if _, set := run.Outcome(); set {
		t.Error("outcome set before finalization")
	}

	if !run.FinalizeOutcome(Failure) {
		t.Error("first finalize should succeed")
	}
	if run.FinalizeOutcome(Success) {
		t.Error("second finalize should be rejected")
	}

	outcome, set := run.Outcome()
	if !set || outcome != Failure {
		t.Errorf("outcome = (%v, %v), want (Failure, true)", outcome, set)
	}
}

func TestNewRunID(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 14, 32, 5, 0, time.UTC)
	id := NewRunID(now)

	pattern := regexp.MustCompile(`^run-20260823-143205-[0-9a-f]{4}$`)
	if !pattern.MatchString(id) {
		t.Errorf("run id %q does not match %s", id, pattern)
	}
	if other := NewRunID(now); other == id {
		t.Errorf("two run ids collided: %q", id)
	}
}
