// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine executes compiled pipelines: it walks the stage
// graph, runs external commands through a Runner, evaluates gates
// against the run context, aggregates stage outcomes, fires
// outcome-scoped hooks, and guarantees resource teardown on every
// exit path.
//
// The package is organized around a single pass through the graph:
//
//   - Compile turns a validated pipeline.Definition into an immutable
//     Graph of nodes (leaf, sequential, parallel).
//   - NewRunContext captures the per-run state: resolved variables,
//     trigger metadata, and the append-only artifact and annotation
//     lists shared across parallel stages.
//   - Executor.Execute walks the graph once and returns a Report.
//     Sequential nodes stop at the first Failure or Aborted child;
//     parallel nodes are fork-join with no early cancellation.
//
// Command failure is data, not control flow: the Runner never returns
// an error, it encodes timeouts and spawn failures in reserved exit
// codes. An operator abort (context cancellation) is observed at
// command boundaries only — a running command is never killed by the
// abort, and hooks, resource releases, and cleanup still run under a
// detached context.
package engine
