// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Gantry packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. Executor
// concurrency tests lean on these to observe fork-join behavior
// without sleeping.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// run IDs, artifact names, or resource IDs.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no Gantry-internal dependencies.
package testutil
