// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Gantry is the CLI for the Gantry pipeline execution engine. It
// provides subcommands for executing pipeline files (run), checking
// them without execution (validate, graph), reading the local
// artifact store (artifact), and sealing pipeline secrets (secret).
package main
