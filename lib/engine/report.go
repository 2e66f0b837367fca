// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import "strings"

// StatusNotRun marks report nodes that never started: an earlier
// sibling failed, an ancestor's gate closed, or the run was aborted
// first. Distinct from Skipped, which means the node's own gate
// evaluated false.
const StatusNotRun = "not-run"

// CommandReport is one executed command in the report. The command
// text is shown unexpanded, so secret values never appear in report
// output.
type CommandReport struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`

	// TimedOut is set when the timeout, not the command, ended
	// execution.
	TimedOut bool `json:"timed_out,omitempty"`

	// AllowedFailure is set when the command exited non-zero but the
	// failure was allowed; the stage degraded to Unstable instead of
	// failing.
	AllowedFailure bool `json:"allowed_failure,omitempty"`

	// Error describes why the command failed beyond a plain exit
	// code: a timeout, a missing program, a failed check.
	Error string `json:"error,omitempty"`

	// Stdout and Stderr carry the captured output of failed
	// commands, trailing whitespace trimmed. Successful commands
	// omit them.
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`
}

// NodeReport is the per-stage entry of the report tree. Every
// declared stage appears exactly once, including stages that never
// ran.
type NodeReport struct {
	Name       string          `json:"name"`
	Path       string          `json:"path"`
	Kind       string          `json:"kind"`
	Status     string          `json:"status"`
	DurationMS int64           `json:"duration_ms"`
	Detail     string          `json:"detail,omitempty"`
	Commands   []CommandReport `json:"commands,omitempty"`
	Children   []*NodeReport   `json:"children,omitempty"`
}

// Report is the exit surface of a run: the final outcome, the full
// per-stage tree, and everything the run published or flagged along
// the way. Rendered as JSON by "gantry run --json".
type Report struct {
	RunID       string           `json:"run_id"`
	Pipeline    string           `json:"pipeline"`
	Branch      string           `json:"branch,omitempty"`
	Outcome     Outcome          `json:"outcome"`
	StartedAt   string           `json:"started_at"`
	DurationMS  int64            `json:"duration_ms"`
	Stages      []*NodeReport    `json:"stages"`
	Annotations []Annotation     `json:"annotations,omitempty"`
	Artifacts   []ArtifactRecord `json:"artifacts,omitempty"`
}

// notRunReport builds the report subtree for a stage that never
// started, marking it and all its descendants StatusNotRun.
func notRunReport(node *Node) *NodeReport {
	report := &NodeReport{
		Name:   node.Name,
		Path:   node.Path,
		Kind:   node.Kind.String(),
		Status: StatusNotRun,
	}
	for _, child := range node.Children {
		report.Children = append(report.Children, notRunReport(child))
	}
	return report
}

// trimOutput converts captured output for the report: trailing
// whitespace is dropped, since nearly every command ends with a
// newline the reader doesn't want.
func trimOutput(output []byte) string {
	return strings.TrimRight(string(output), " \t\n\r")
}
