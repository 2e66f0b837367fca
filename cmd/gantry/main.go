// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gantry-build/gantry/cmd/gantry/commands"
	"github.com/gantry-build/gantry/lib/process"
)

func main() {
	if err := run(); err != nil {
		// Commands that already reported their result (like run, whose
		// outcome is in the report) return an ExitError with the
		// desired code. Don't print a redundant "error:" line for
		// those.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	// SIGINT and SIGTERM cancel the context rather than kill the
	// process: an executing pipeline finishes its in-flight command,
	// skips the rest, and still runs hooks and resource releases. A
	// second signal kills the process the hard way.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return commands.Root().Execute(ctx, os.Args[1:])
}
