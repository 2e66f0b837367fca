// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/pipeline"
)

// validateCommand returns the "validate" subcommand for checking
// pipeline files without executing them.
func validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Validate a pipeline JSONC file",
		Description: `Validate a pipeline definition file. Checks that the JSONC is
well-formed and that the definition is executable: stage names are
unique among siblings, each leaf has exactly one of run or argv per
command, resource identifiers and artifact names are globally
unique, artifacts appear only on leaf stages, durations parse, and
gates reference only declared variables, secrets, or trigger
built-ins.

This is a purely local check: no commands run, no resources are
created.

Pipeline files use JSONC: JSON extended with // line comments,
/* block comments */, and trailing commas. Comments are stripped
before validation.`,
		Usage: "gantry validate <file>",
		Examples: []cli.Example{
			{
				Description: "Validate a pipeline definition",
				Command:     "gantry validate ci.pipeline.jsonc",
			},
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: gantry validate <file>")
			}

			path := args[0]
			definition, err := pipeline.ReadFile(path)
			if err != nil {
				return err
			}

			issues := pipeline.Validate(definition)
			if len(issues) > 0 {
				for _, issue := range issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
				return fmt.Errorf("%s: %d validation issue(s) found", path, len(issues))
			}

			fmt.Fprintf(os.Stdout, "%s: valid\n", path)
			return nil
		},
	}
}
