// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline provides parsing, validation, gate evaluation, and
// variable expansion for Gantry pipeline definitions. A definition
// describes a build/test/deploy workflow as an ordered tree of stages
// with gates, hooks, managed resources, and artifact captures; the
// engine in lib/engine compiles and executes it.
//
// Definitions are authored on disk as JSONC files (JSON extended with
// comments and trailing commas).
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Definition
//  2. Validate: structural checks (exactly one of run/stages/parallel,
//     sibling-unique names, gate references, etc.)
//  3. ResolveVariables: merge defaults + trigger built-ins + operator
//     overrides → variable map
//  4. ExpandCommand: substitute ${NAME} references in each command
//     before execution
package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Definition. Parse does not validate —
// call Validate on the result before compiling it.
func Parse(data []byte) (*Definition, error) {
	stripped := jsonc.ToJSON(data)

	var definition Definition
	if err := json.Unmarshal(stripped, &definition); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	return &definition, nil
}

// ReadFile reads a JSONC pipeline file from disk and parses it into a
// Definition. Returns a descriptive error if the file cannot be read
// or the JSON is malformed.
func ReadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return definition, nil
}

// NameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and the file extension. For example,
// "deploy/pipelines/service-build.jsonc" returns "service-build".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}
