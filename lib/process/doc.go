// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Gantry
// binaries. These functions centralize the one legitimate raw I/O
// pattern that exists before the structured logger: fatal error
// reporting to stderr when the logger may not be initialized yet.
//
// All other raw output in Gantry belongs to the CLI layer, which owns
// stdout and renders command results deliberately.
package process
