// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command tree framework for the gantry
// binary: nested command dispatch, tag-driven flag binding, help
// output, typo suggestions, and shared output helpers.
//
// Commands declare their flags through a params struct with `flag`,
// `desc`, and `default` tags, bound to a pflag.FlagSet by reflection.
// Embedding [JSONOutput] in a params struct adds the --json flag and
// the EmitJSON helper for machine-readable output.
package cli
