// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/artifact"
	"github.com/gantry-build/gantry/lib/engine"
	"github.com/gantry-build/gantry/lib/pipeline"
	"github.com/gantry-build/gantry/lib/sealed"
	"github.com/gantry-build/gantry/lib/secret"
)

// runParams holds the parameters for the run command.
type runParams struct {
	cli.JSONOutput
	Branch      string   `flag:"branch"       desc:"branch name exposed as GANTRY_BRANCH and used by gates" default:"main"`
	BuildNumber string   `flag:"build-number" desc:"build number exposed as GANTRY_BUILD_NUMBER"`
	Revision    string   `flag:"revision"     desc:"revision identifier exposed as GANTRY_REVISION"`
	Var         []string `flag:"var"          desc:"key=value variable override (repeatable)"`
	Identity    string   `flag:"identity"     desc:"path to the age private key for decrypting pipeline secrets"`
	RunLog      string   `flag:"run-log"      desc:"write the JSONL run log to this path instead of the runs directory"`
	Config      string   `flag:"config"       desc:"path to the engine configuration file"`
}

// runCommand returns the "run" subcommand: compile a pipeline file
// and execute it to completion.
func runCommand() *cli.Command {
	var params runParams

	return &cli.Command{
		Name:    "run",
		Summary: "Execute a pipeline",
		Description: `Parse, validate, and execute a pipeline file. Stages run in
declaration order, parallel groups fan out, gates are evaluated
against the trigger and resolved variables, and declared resources
are released when their stage finishes.

The process exit code reflects the run outcome: 0 for success, 1 for
failure, 2 for unstable, 130 for an aborted run. Sending SIGINT or
SIGTERM aborts the run: the in-flight command finishes, nothing new
starts, and all hooks and resource releases still execute.

With --json, the full run report is written to stdout and progress
output is suppressed.`,
		Usage: "gantry run [flags] <pipeline-file>",
		Examples: []cli.Example{
			{
				Description: "Run a pipeline with trigger metadata from CI",
				Command:     "gantry run ci.pipeline.jsonc --branch main --build-number 118 --revision 3f9ae01",
			},
			{
				Description: "Override a declared variable for one run",
				Command:     "gantry run ci.pipeline.jsonc --var DEPLOY_ENV=staging",
			},
			{
				Description: "Capture the machine-readable report",
				Command:     "gantry run ci.pipeline.jsonc --json > report.json",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: gantry run [flags] <pipeline-file>")
			}
			path := args[0]

			cfg, err := loadConfig(params.Config)
			if err != nil {
				return err
			}

			definition, err := pipeline.ReadFile(path)
			if err != nil {
				return err
			}
			name := pipeline.NameFromPath(path)

			graph, err := engine.Compile(name, definition)
			if err != nil {
				return err
			}

			overrides, err := parseVariableOverrides(params.Var)
			if err != nil {
				return err
			}

			runID := engine.NewRunID(time.Now())
			trigger := pipeline.Trigger{
				Branch:      params.Branch,
				BuildNumber: params.BuildNumber,
				Revision:    params.Revision,
			}
			env, err := pipeline.ResolveVariables(definition.Variables, pipeline.Builtins(trigger, runID), overrides)
			if err != nil {
				return err
			}

			identityPath := params.Identity
			if identityPath == "" {
				identityPath = cfg.Secrets.IdentityPath
			}
			if err := decryptSecrets(definition, identityPath, env); err != nil {
				return err
			}

			if err := cfg.EnsurePaths(); err != nil {
				return err
			}

			logger := cli.NewLogger(cfg.LogLevel()).With("run_id", runID)

			compression, err := artifact.ParseCompressionTag(cfg.Artifacts.Compression)
			if err != nil {
				return fmt.Errorf("artifacts.compression: %w", err)
			}
			sink, err := artifact.OpenSink(artifact.SinkConfig{
				Root:        cfg.ArtifactsDirectory(),
				IndexPath:   cfg.ArtifactIndexPath(),
				Compression: compression,
				Logger:      logger,
			})
			if err != nil {
				return err
			}
			defer sink.Close()

			logPath := params.RunLog
			if logPath == "" {
				logPath = filepath.Join(cfg.RunsDirectory(), runID+".jsonl")
			}
			runLog, err := engine.NewRunLog(logPath, logger)
			if err != nil {
				return err
			}
			defer runLog.Close()

			var events engine.EventSink
			if !params.OutputJSON {
				events = newProgressPrinter(os.Stdout)
				fmt.Printf("[gantry] %s: starting run %s (%d stages)\n", name, runID, graph.StageCount)
			}

			executor := engine.NewExecutor(engine.ExecutorConfig{
				Runner:             &engine.ExecRunner{Shell: cfg.Runner.Shell, Echo: !params.OutputJSON},
				Artifacts:          sink,
				RunLog:             runLog,
				Events:             events,
				Logger:             logger,
				DefaultTimeout:     cfg.Timeout(),
				DefaultGracePeriod: cfg.GracePeriod(),
			})

			run := engine.NewRunContext(runID, trigger, env)
			report := executor.Execute(ctx, graph, run)

			if done, err := params.EmitJSON(report); done {
				if err != nil {
					return err
				}
			} else {
				printRunSummary(report)
			}
			return exitForOutcome(report.Outcome)
		},
	}
}

// parseVariableOverrides converts repeated --var key=value flags into
// an override map for variable resolution.
func parseVariableOverrides(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		if key == "" {
			return nil, fmt.Errorf("invalid --var %q: empty key", pair)
		}
		overrides[key] = value
	}
	return overrides, nil
}

// decryptSecrets opens the age identity and decrypts every declared
// secret into env. A pipeline with secrets but no configured identity
// is an error: silently running without the secrets would fail deep
// inside some stage instead.
func decryptSecrets(definition *pipeline.Definition, identityPath string, env map[string]string) error {
	if len(definition.Secrets) == 0 {
		return nil
	}
	if identityPath == "" {
		return fmt.Errorf("pipeline declares %d secret(s) but no identity is configured: pass --identity or set secrets.identity_path", len(definition.Secrets))
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return fmt.Errorf("reading identity: %w", err)
	}
	defer identity.Close()

	for _, name := range slices.Sorted(maps.Keys(definition.Secrets)) {
		plaintext, err := sealed.Decrypt(definition.Secrets[name], identity)
		if err != nil {
			return fmt.Errorf("decrypting secret %q: %w", name, err)
		}
		env[name] = plaintext.String()
		plaintext.Close()
	}
	return nil
}

// printRunSummary writes the human-readable closing lines after a
// run: final outcome, any annotations, and the captured artifacts.
func printRunSummary(report *engine.Report) {
	fmt.Printf("[gantry] %s: %s (%s)\n", report.Pipeline, report.Outcome, formatDuration(time.Duration(report.DurationMS)*time.Millisecond))
	if len(report.Annotations) > 0 {
		fmt.Printf("[gantry] annotations:\n")
		for _, annotation := range report.Annotations {
			fmt.Printf("  - %s: %s\n", annotation.Stage, annotation.Message)
		}
	}
	if len(report.Artifacts) > 0 {
		fmt.Printf("[gantry] artifacts:\n")
		for _, record := range report.Artifacts {
			fmt.Printf("  - %s %s %s (stage %s)\n", record.Name, record.Ref, formatSize(record.Size), record.Stage)
		}
	}
}

// exitForOutcome maps a final run outcome to the process exit code
// contract: success exits 0, unstable 2, aborted 130, and any
// failure 1.
func exitForOutcome(outcome engine.Outcome) error {
	switch outcome {
	case engine.Success:
		return nil
	case engine.Unstable:
		return &cli.ExitError{Code: 2}
	case engine.Aborted:
		return &cli.ExitError{Code: 130}
	default:
		return &cli.ExitError{Code: 1}
	}
}
