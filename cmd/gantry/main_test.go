// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"strings"
	"testing"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/cmd/gantry/commands"
)

// TestCommandTreeShape walks the full production command tree and
// validates the structural invariants help output and dispatch rely
// on: every command is named, every leaf has a Run function, every
// non-root command has a Summary for its parent's command listing,
// and sibling names are unique.
func TestCommandTreeShape(t *testing.T) {
	root := commands.Root()
	walkCommands(root, nil, func(command *cli.Command, path []string) {
		name := strings.Join(path, " ")
		if command.Name == "" {
			t.Errorf("%s: command with empty name", name)
		}
		if command != root && command.Summary == "" {
			t.Errorf("%s: command missing Summary", name)
		}
		if len(command.Subcommands) == 0 && command.Run == nil {
			t.Errorf("%s: leaf command missing Run", name)
		}

		seen := make(map[string]bool)
		for _, sub := range command.Subcommands {
			if seen[sub.Name] {
				t.Errorf("%s: duplicate subcommand %q", name, sub.Name)
			}
			seen[sub.Name] = true
		}
	})
}

// TestCommandTreeUsageMentionsBinary checks that every Usage string
// starts with the binary name, so help output composes correctly.
func TestCommandTreeUsageMentionsBinary(t *testing.T) {
	root := commands.Root()
	walkCommands(root, nil, func(command *cli.Command, path []string) {
		if command.Usage == "" {
			return
		}
		if !strings.HasPrefix(command.Usage, "gantry") {
			t.Errorf("%s: Usage %q does not start with %q", strings.Join(path, " "), command.Usage, "gantry")
		}
	})
}

// walkCommands recursively visits every command in the tree,
// calling visit for each node with the accumulated command path.
func walkCommands(command *cli.Command, path []string, visit func(*cli.Command, []string)) {
	current := make([]string, len(path)+1)
	copy(current, path)
	current[len(path)] = command.Name
	visit(command, current)
	for _, sub := range command.Subcommands {
		walkCommands(sub, current, visit)
	}
}
