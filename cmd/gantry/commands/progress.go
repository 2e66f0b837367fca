// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gantry-build/gantry/lib/engine"
)

// progressPrinter streams stage lifecycle events as human-readable
// lines. Parallel stages finish concurrently, so writes are
// serialized under a mutex to keep lines whole.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) StageStarted(path string, kind engine.NodeKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if kind == engine.KindLeaf {
		fmt.Fprintf(p.out, "[gantry] %s: starting\n", path)
		return
	}
	fmt.Fprintf(p.out, "[gantry] %s: starting (%s)\n", path, kind)
}

func (p *progressPrinter) StageFinished(path string, outcome engine.Outcome, duration time.Duration, detail string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if detail != "" {
		fmt.Fprintf(p.out, "[gantry] %s: %s (%s): %s\n", path, outcome, formatDuration(duration), detail)
		return
	}
	fmt.Fprintf(p.out, "[gantry] %s: %s (%s)\n", path, outcome, formatDuration(duration))
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.1fs", duration.Seconds())
}
