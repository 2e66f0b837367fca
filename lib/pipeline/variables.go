// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Built-in variable names injected from the trigger and the run.
// Gates and commands may reference these without declaring them.
const (
	BuiltinBranch      = "GANTRY_BRANCH"
	BuiltinBuildNumber = "GANTRY_BUILD_NUMBER"
	BuiltinRevision    = "GANTRY_REVISION"
	BuiltinRunID       = "GANTRY_RUN_ID"
)

// BuiltinNames lists every built-in variable name. Definition
// validation accepts gate references to these alongside declared
// variables and secrets.
func BuiltinNames() []string {
	return []string{BuiltinBranch, BuiltinBuildNumber, BuiltinRevision, BuiltinRunID}
}

// Trigger is the event that started a run: a webhook or poll result
// carrying the branch, a monotonic build number, and the source
// revision. The engine copies it into the run context and exposes it
// to pipelines through the built-in variables.
type Trigger struct {
	// Branch is the branch name the run is for (e.g., "main").
	Branch string `json:"branch"`

	// BuildNumber is the CI build counter for this branch or job.
	BuildNumber string `json:"build_number,omitempty"`

	// Revision is the source revision (commit hash) being built.
	Revision string `json:"revision,omitempty"`
}

// Builtins returns the built-in variable map for a trigger and run id.
// Empty trigger fields still produce entries so gates referencing a
// built-in never hit a missing-key evaluation error.
func Builtins(trigger Trigger, runID string) map[string]string {
	return map[string]string{
		BuiltinBranch:      trigger.Branch,
		BuiltinBuildNumber: trigger.BuildNumber,
		BuiltinRevision:    trigger.Revision,
		BuiltinRunID:       runID,
	}
}

// variablePattern matches ${NAME} references in strings. Only the
// braced form is recognized — bare $NAME is left for shell
// interpretation. Variable names must start with a letter or
// underscore and contain only letters, digits, and underscores.
var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveVariables merges variable sources in resolution order (lowest
// to highest priority):
//
//  1. Declared defaults from the definition
//  2. Built-in values derived from the trigger and run id
//  3. Operator overrides (--var NAME=VALUE)
//
// Returns the merged variable map. Returns an error naming every
// required variable (per its declaration) that has no value from any
// source, and every override that does not name a declared variable —
// a misspelled --var should fail loudly, not silently do nothing.
func ResolveVariables(declarations map[string]Variable, builtins map[string]string, overrides map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(declarations)+len(builtins)+len(overrides))

	// Declared defaults (lowest priority).
	for name, declaration := range declarations {
		if declaration.Default != "" {
			resolved[name] = declaration.Default
		}
	}

	// Trigger-derived built-ins.
	for name, value := range builtins {
		resolved[name] = value
	}

	// Operator overrides (highest priority). Overrides must name a
	// declared variable or a built-in.
	var unknown []string
	for name, value := range overrides {
		_, declared := declarations[name]
		_, builtin := builtins[name]
		if !declared && !builtin {
			unknown = append(unknown, name)
			continue
		}
		resolved[name] = value
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("override of undeclared pipeline variables: %s", strings.Join(unknown, ", "))
	}

	// Check that all required variables have a value.
	var missing []string
	for name, declaration := range declarations {
		if declaration.Required {
			if _, exists := resolved[name]; !exists {
				missing = append(missing, name)
			}
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required pipeline variables not set: %s", strings.Join(missing, ", "))
	}

	return resolved, nil
}

// Expand replaces ${NAME} references in input with values from the
// variables map. Only the ${NAME} form is recognized (braces
// required); bare $NAME is left for shell interpretation.
//
// Returns an error listing all referenced variables that have no value
// in the map. This makes definitions fail fast on unresolvable
// references rather than producing broken commands.
func Expand(input string, variables map[string]string) (string, error) {
	var unresolved []string

	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract the variable name from ${NAME}.
		name := match[2 : len(match)-1]
		if value, exists := variables[name]; exists {
			return value
		}
		unresolved = append(unresolved, name)
		return match
	})

	if len(unresolved) > 0 {
		return "", fmt.Errorf("unresolved pipeline variables: %s", strings.Join(unresolved, ", "))
	}

	return result, nil
}

// ExpandCommand returns a copy of command with all string fields
// expanded using Expand. Command-level Env values are expanded first
// (against run variables only), then merged into the variable map for
// expanding the other fields. A run string can therefore reference its
// own env overlay with ${NAME}, and those values will already have
// their own ${REFERENCES} resolved.
//
// The original command and variables map are not modified.
func ExpandCommand(command Command, variables map[string]string) (Command, error) {
	// First pass: expand env overlay values against run variables
	// only (no cross-referencing between overlay entries).
	var expandedEnv map[string]string
	if len(command.Env) > 0 {
		expandedEnv = make(map[string]string, len(command.Env))
		for name, value := range command.Env {
			expandedValue, err := Expand(value, variables)
			if err != nil {
				return Command{}, fmt.Errorf("env[%s]: %w", name, err)
			}
			expandedEnv[name] = expandedValue
		}
	}

	// Merged map: run variables as base, expanded overlay on top.
	merged := make(map[string]string, len(variables)+len(expandedEnv))
	for name, value := range variables {
		merged[name] = value
	}
	for name, value := range expandedEnv {
		merged[name] = value
	}

	var err error

	if command.Run, err = Expand(command.Run, merged); err != nil {
		return Command{}, fmt.Errorf("run: %w", err)
	}
	if command.Check, err = Expand(command.Check, merged); err != nil {
		return Command{}, fmt.Errorf("check: %w", err)
	}
	if command.WorkingDir, err = Expand(command.WorkingDir, merged); err != nil {
		return Command{}, fmt.Errorf("working_dir: %w", err)
	}

	if len(command.Argv) > 0 {
		expanded := make([]string, len(command.Argv))
		for i, argument := range command.Argv {
			if expanded[i], err = Expand(argument, merged); err != nil {
				return Command{}, fmt.Errorf("argv[%d]: %w", i, err)
			}
		}
		command.Argv = expanded
	}

	command.Env = expandedEnv
	return command, nil
}
