// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete Gantry CLI command tree. The
// gantry binary's main function is a thin shell around [Root]: signal
// wiring and exit-code mapping live there, everything else lives
// here.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/config"
	"github.com/gantry-build/gantry/lib/version"
)

// Root builds and returns the complete Gantry CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "gantry",
		Description: `Gantry: a pipeline execution engine.

Run declarative build pipelines from JSONC files: nested sequential
and parallel stages, gated execution, ephemeral resources with
guaranteed teardown, and content-addressed artifact capture.`,
		Subcommands: []*cli.Command{
			runCommand(),
			validateCommand(),
			graphCommand(),
			artifactCommand(),
			secretCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, args []string, _ *slog.Logger) error {
					fmt.Printf("gantry %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Check a pipeline file without running it",
				Command:     "gantry validate ci.pipeline.jsonc",
			},
			{
				Description: "Run a pipeline for a release branch",
				Command:     "gantry run ci.pipeline.jsonc --branch release/2.4 --build-number 118",
			},
			{
				Description: "Show the compiled stage tree",
				Command:     "gantry graph ci.pipeline.jsonc",
			},
			{
				Description: "List the artifacts captured by a run",
				Command:     "gantry artifact list --run run-20260823-143052-a1b2c3d4",
			},
			{
				Description: "Seal a secret for use in pipeline files",
				Command:     "gantry secret encrypt --recipient age1... deploy-token.txt",
			},
		},
	}
}

// loadConfig resolves the engine configuration for a command: the
// explicit --config path when given, otherwise the GANTRY_CONFIG
// environment variable or built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
