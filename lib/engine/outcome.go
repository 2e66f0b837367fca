// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "fmt"

// Outcome is the terminal status of a stage or of a whole run.
//
// Aggregation uses the severity order Aborted > Failure > Unstable >
// Success, with Skipped counting as Success: a parent takes the worst
// outcome among its children, and a skipped subtree never degrades
// its parent. Skipped is still recorded distinctly in the report and
// run log so an operator can tell "ran and passed" from "gate said
// no".
type Outcome int

const (
	// Success: the stage (or run) completed with every command
	// exiting zero, or every allowed failure absent.
	Success Outcome = iota

	// Skipped: the stage's gate evaluated false and its body or
	// children never executed. Counts as Success for aggregation.
	Skipped

	// Unstable: the stage completed but an allow_failure command
	// exited non-zero, or a hook failed at run level. Non-fatal:
	// execution continues through remaining stages.
	Unstable

	// Failure: a command exited non-zero (or timed out) and the
	// failure was not allowed. Stops remaining sequential siblings.
	Failure

	// Aborted: the run was cancelled by the operator. Stops
	// remaining sequential siblings; hooks and teardown still run.
	Aborted
)

// String returns the wire form used in reports, run logs, and
// progress output.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Unstable:
		return "unstable"
	case Failure:
		return "failed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalJSON encodes the outcome as its string form.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return []byte(`"` + o.String() + `"`), nil
}

// UnmarshalJSON decodes the string form produced by MarshalJSON.
func (o *Outcome) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("outcome must be a JSON string, got %s", data)
	}
	parsed, err := ParseOutcome(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome converts a wire-form string back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "success":
		return Success, nil
	case "skipped":
		return Skipped, nil
	case "unstable":
		return Unstable, nil
	case "failed":
		return Failure, nil
	case "aborted":
		return Aborted, nil
	default:
		return 0, fmt.Errorf("unknown outcome %q", s)
	}
}

// severity maps outcomes onto the aggregation order. Skipped shares
// Success's rank.
func (o Outcome) severity() int {
	switch o {
	case Success, Skipped:
		return 0
	case Unstable:
		return 1
	case Failure:
		return 2
	case Aborted:
		return 3
	default:
		return 3
	}
}

// Worst returns the more severe of two outcomes. When the two tie in
// severity the first argument wins, which resolves Success vs Skipped
// in favor of whichever the caller accumulated first; aggregation
// seeds with Success, so a parent of only skipped children ends up
// Success.
func Worst(a, b Outcome) Outcome {
	if b.severity() > a.severity() {
		return b
	}
	return a
}

// Fatal reports whether an outcome stops remaining sequential
// siblings: Failure and Aborted do, Unstable and below do not.
func (o Outcome) Fatal() bool {
	return o.severity() >= Failure.severity()
}
