// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// namePattern restricts variable and secret names to environment
// variable shape.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate checks a Definition for structural issues. Returns a list
// of human-readable issue descriptions; an empty list means the
// definition is valid. All checks run before any execution — a
// definition that passes Validate compiles into a graph without
// further structural errors.
//
// Structural checks include:
//   - At least one stage is required
//   - Stage names are non-empty, contain no "/", and are unique among
//     their siblings
//   - Each stage sets exactly one of run, stages, parallel
//   - Each command sets exactly one of run, argv
//   - Timeout and grace_period values parse via time.ParseDuration
//   - Gates are well-formed and reference only declared variables,
//     secrets, or built-in trigger keys
//   - Variable and secret names are env-shaped and do not collide
//   - Secret values are base64
//   - Resource ids are unique across the definition, kinds are known,
//     and every resource has a release command
//   - Artifacts appear only on leaf stages with run-unique names
func Validate(definition *Definition) []string {
	var issues []string

	if len(definition.Stages) == 0 {
		issues = append(issues, "pipeline has no stages (at least one stage is required)")
	}

	declared := make(map[string]bool)
	for _, name := range BuiltinNames() {
		declared[name] = true
	}

	for name := range definition.Variables {
		if !namePattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf("variables[%s]: name must match %s", name, namePattern))
			continue
		}
		declared[name] = true
	}

	for name, ciphertext := range definition.Secrets {
		if !namePattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf("secrets[%s]: name must match %s", name, namePattern))
			continue
		}
		if _, alreadyVariable := definition.Variables[name]; alreadyVariable {
			issues = append(issues, fmt.Sprintf("secrets[%s]: name collides with a declared variable", name))
		}
		if ciphertext == "" {
			issues = append(issues, fmt.Sprintf("secrets[%s]: value is empty", name))
		} else if _, err := base64.StdEncoding.DecodeString(ciphertext); err != nil {
			issues = append(issues, fmt.Sprintf("secrets[%s]: value is not base64: %v", name, err))
		}
		declared[name] = true
	}

	state := &validationState{
		declared:      declared,
		resourceIDs:   make(map[string]string),
		artifactNames: make(map[string]string),
	}
	issues = append(issues, validateStages("stages", definition.Stages, state)...)

	if definition.Hooks != nil {
		issues = append(issues, validateCommands("hooks.success", definition.Hooks.Success)...)
		issues = append(issues, validateCommands("hooks.unstable", definition.Hooks.Unstable)...)
		issues = append(issues, validateCommands("hooks.failure", definition.Hooks.Failure)...)
		issues = append(issues, validateCommands("hooks.aborted", definition.Hooks.Aborted)...)
		issues = append(issues, validateCommands("hooks.always", definition.Hooks.Always)...)
		issues = append(issues, validateCommands("hooks.cleanup", definition.Hooks.Cleanup)...)
	}

	return issues
}

// validationState carries the cross-stage uniqueness sets through the
// recursive walk. The string values record the declaring stage for
// duplicate messages.
type validationState struct {
	declared      map[string]bool
	resourceIDs   map[string]string
	artifactNames map[string]string
}

// validateStages checks one sibling set and recurses into children.
func validateStages(prefix string, stages []Stage, state *validationState) []string {
	var issues []string

	siblingNames := make(map[string]bool, len(stages))
	for index, stage := range stages {
		stagePrefix := fmt.Sprintf("%s[%d]", prefix, index)

		switch {
		case stage.Name == "":
			issues = append(issues, fmt.Sprintf("%s: name is required", stagePrefix))
		case strings.Contains(stage.Name, "/"):
			issues = append(issues, fmt.Sprintf("%s: name %q must not contain '/'", stagePrefix, stage.Name))
		default:
			stagePrefix = fmt.Sprintf("%s[%d] %q", prefix, index, stage.Name)
			if siblingNames[stage.Name] {
				issues = append(issues, fmt.Sprintf("%s: duplicate name among siblings", stagePrefix))
			}
			siblingNames[stage.Name] = true
		}

		issues = append(issues, validateStage(stagePrefix, &stage, state)...)
	}

	return issues
}

// validateStage checks a single stage and recurses into its children.
func validateStage(prefix string, stage *Stage, state *validationState) []string {
	var issues []string

	hasRun := len(stage.Run) > 0
	hasStages := len(stage.Stages) > 0
	hasParallel := len(stage.Parallel) > 0

	kinds := 0
	for _, present := range []bool{hasRun, hasStages, hasParallel} {
		if present {
			kinds++
		}
	}
	if kinds != 1 {
		issues = append(issues, fmt.Sprintf("%s: must set exactly one of run, stages, parallel", prefix))
	}

	if stage.Gate != nil {
		if err := stage.Gate.Validate(); err != nil {
			issues = append(issues, fmt.Sprintf("%s: gate: %v", prefix, err))
		} else {
			for _, name := range stage.Gate.References() {
				if !state.declared[name] {
					issues = append(issues, fmt.Sprintf("%s: gate references undeclared variable %q", prefix, name))
				}
			}
		}
	}

	issues = append(issues, validateCommands(prefix+".run", stage.Run)...)

	if stage.Hooks != nil {
		issues = append(issues, validateCommands(prefix+".hooks.success", stage.Hooks.Success)...)
		issues = append(issues, validateCommands(prefix+".hooks.unstable", stage.Hooks.Unstable)...)
		issues = append(issues, validateCommands(prefix+".hooks.failure", stage.Hooks.Failure)...)
		issues = append(issues, validateCommands(prefix+".hooks.aborted", stage.Hooks.Aborted)...)
		issues = append(issues, validateCommands(prefix+".hooks.skipped", stage.Hooks.Skipped)...)
		issues = append(issues, validateCommands(prefix+".hooks.always", stage.Hooks.Always)...)
	}

	for index, resource := range stage.Resources {
		resourcePrefix := fmt.Sprintf("%s.resources[%d]", prefix, index)
		if resource.ID == "" {
			issues = append(issues, fmt.Sprintf("%s: id is required", resourcePrefix))
		} else {
			if previous, exists := state.resourceIDs[resource.ID]; exists {
				issues = append(issues, fmt.Sprintf("%s: id %q already declared by %s", resourcePrefix, resource.ID, previous))
			}
			state.resourceIDs[resource.ID] = prefix
		}
		switch resource.Kind {
		case ResourceContainer, ResourceDirectory, ResourceProcess:
		case "":
			issues = append(issues, fmt.Sprintf("%s: kind is required", resourcePrefix))
		default:
			issues = append(issues, fmt.Sprintf("%s: unknown kind %q (want container, directory, or process)", resourcePrefix, resource.Kind))
		}
		if resource.Release == nil {
			issues = append(issues, fmt.Sprintf("%s: release is required", resourcePrefix))
		} else {
			issues = append(issues, validateCommand(resourcePrefix+".release", *resource.Release)...)
		}
	}

	if len(stage.Artifacts) > 0 && !hasRun {
		issues = append(issues, fmt.Sprintf("%s: artifacts are only valid on leaf stages", prefix))
	}
	for index, artifact := range stage.Artifacts {
		artifactPrefix := fmt.Sprintf("%s.artifacts[%d]", prefix, index)
		if artifact.Name == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", artifactPrefix))
		} else {
			if previous, exists := state.artifactNames[artifact.Name]; exists {
				issues = append(issues, fmt.Sprintf("%s: name %q already declared by %s", artifactPrefix, artifact.Name, previous))
			}
			state.artifactNames[artifact.Name] = prefix
		}
		if artifact.Path == "" {
			issues = append(issues, fmt.Sprintf("%s: path is required", artifactPrefix))
		}
	}

	if hasStages {
		issues = append(issues, validateStages(prefix+".stages", stage.Stages, state)...)
	}
	if hasParallel {
		issues = append(issues, validateStages(prefix+".parallel", stage.Parallel, state)...)
	}

	return issues
}

// validateCommands checks every command in a list.
func validateCommands(prefix string, commands []Command) []string {
	var issues []string
	for index, command := range commands {
		issues = append(issues, validateCommand(fmt.Sprintf("%s[%d]", prefix, index), command)...)
	}
	return issues
}

// validateCommand checks a single command entry.
func validateCommand(prefix string, command Command) []string {
	var issues []string

	hasRun := command.Run != ""
	hasArgv := len(command.Argv) > 0

	switch {
	case hasRun && hasArgv:
		issues = append(issues, fmt.Sprintf("%s: run and argv are mutually exclusive (set exactly one)", prefix))
	case !hasRun && !hasArgv:
		issues = append(issues, fmt.Sprintf("%s: must set either run or argv", prefix))
	}

	if hasArgv && command.Argv[0] == "" {
		issues = append(issues, fmt.Sprintf("%s: argv[0] must not be empty", prefix))
	}

	for name := range command.Env {
		if !namePattern.MatchString(name) {
			issues = append(issues, fmt.Sprintf("%s: env name %q must match %s", prefix, name, namePattern))
		}
	}

	if command.Timeout != "" {
		if _, err := time.ParseDuration(command.Timeout); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid timeout %q: %v", prefix, command.Timeout, err))
		}
	}
	if command.GracePeriod != "" {
		if _, err := time.ParseDuration(command.GracePeriod); err != nil {
			issues = append(issues, fmt.Sprintf("%s: invalid grace_period %q: %v", prefix, command.GracePeriod, err))
		}
	}

	return issues
}
