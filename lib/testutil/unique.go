// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for run IDs, artifact names, or
// resource IDs that must be distinguishable in a shared store.
//
//	runID := testutil.UniqueID("run")        // "run-1", "run-2", ...
//	name := testutil.UniqueID("report")      // "report-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
