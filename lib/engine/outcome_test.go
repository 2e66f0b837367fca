// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"encoding/json"
	"testing"
)

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	cases := map[Outcome]string{
		Success:  "success",
		Skipped:  "skipped",
		Unstable: "unstable",
		Failure:  "failed",
		Aborted:  "aborted",
	}
	for outcome, want := range cases {
		if got := outcome.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(outcome), got, want)
		}
	}
	if got := Outcome(42).String(); got != "outcome(42)" {
		t.Errorf("unknown outcome String() = %q", got)
	}
}

func TestWorst(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b, want Outcome
	}{
		{Success, Success, Success},
		{Success, Unstable, Unstable},
		{Unstable, Success, Unstable},
		{Unstable, Failure, Failure},
		{Failure, Unstable, Failure},
		{Failure, Aborted, Aborted},
		{Aborted, Failure, Aborted},
		{Aborted, Success, Aborted},

		// Skipped aggregates as Success: it never degrades a
		// parent, and a Success accumulator absorbs it.
		{Success, Skipped, Success},
		{Skipped, Unstable, Unstable},
		{Unstable, Skipped, Unstable},
	}
	for _, c := range cases {
		if got := Worst(c.a, c.b); got != c.want {
			t.Errorf("Worst(%s, %s) = %s, want %s", c.a, c.b, got, c.want)
		}
	}
}

func TestOutcomeFatal(t *testing.T) {
	t.Parallel()

	for outcome, want := range map[Outcome]bool{
		Success:  false,
		Skipped:  false,
		Unstable: false,
		Failure:  true,
		Aborted:  true,
	} {
		if got := outcome.Fatal(); got != want {
			t.Errorf("%s.Fatal() = %v, want %v", outcome, got, want)
		}
	}
}

func TestOutcomeJSON(t *testing.T) {
	t.Parallel()

	for _, outcome := range []Outcome{Success, Skipped, Unstable, Failure, Aborted} {
		data, err := json.Marshal(outcome)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", outcome, err)
		}
		var decoded Outcome
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if decoded != outcome {
			t.Errorf("round trip %s: got %s", outcome, decoded)
		}
	}

	var decoded Outcome
	if err := json.Unmarshal([]byte(`"sideways"`), &decoded); err == nil {
		t.Error("expected error for unknown outcome string")
	}
	if err := json.Unmarshal([]byte(`3`), &decoded); err == nil {
		t.Error("expected error for numeric outcome")
	}
}
