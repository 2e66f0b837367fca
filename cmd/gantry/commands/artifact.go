// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/artifact"
)

// artifactCommand returns the top-level "artifact" command with all
// subcommands.
func artifactCommand() *cli.Command {
	return &cli.Command{
		Name:    "artifact",
		Summary: "Inspect captured run artifacts",
		Description: `Read the local artifact store. Artifacts are captured by
"gantry run" from declared stage outputs, stored content-addressed
under BLAKE3 hashes, and indexed per run.

All subcommands are read-only: nothing here writes to the store.`,
		Subcommands: []*cli.Command{
			artifactListCommand(),
			artifactShowCommand(),
			artifactInspectCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "List runs that captured artifacts",
				Command:     "gantry artifact list",
			},
			{
				Description: "List one run's artifacts",
				Command:     "gantry artifact list --run run-20260823-143052-a1b2c3d4",
			},
			{
				Description: "Print an artifact's content",
				Command:     "gantry artifact show --run run-20260823-143052-a1b2c3d4 coverage",
			},
			{
				Description: "Inspect a stored blob by ref",
				Command:     "gantry artifact inspect art-a3f9b2c1e7d4",
			},
		},
	}
}

// openSink opens the configured artifact store for the read-only
// subcommands.
func openSink(configPath string, logger *slog.Logger) (*artifact.Sink, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	compression, err := artifact.ParseCompressionTag(cfg.Artifacts.Compression)
	if err != nil {
		return nil, fmt.Errorf("artifacts.compression: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return artifact.OpenSink(artifact.SinkConfig{
		Root:        cfg.ArtifactsDirectory(),
		IndexPath:   cfg.ArtifactIndexPath(),
		Compression: compression,
		Logger:      logger,
	})
}

// commandLogger returns a logger for artifact subcommands. The cli
// framework passes nil in tests; fall back to a discard logger so
// the sink always has somewhere to write.
func commandLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.DiscardHandler)
}

type artifactListParams struct {
	cli.JSONOutput
	Run    string `flag:"run"    desc:"list the artifacts of this run ID"`
	Config string `flag:"config" desc:"path to the engine configuration file"`
}

func artifactListCommand() *cli.Command {
	var params artifactListParams

	return &cli.Command{
		Name:    "list",
		Summary: "List runs or one run's artifacts",
		Usage:   "gantry artifact list [flags]",
		Description: `Without --run, list every run that captured artifacts, newest
first, with artifact counts and total sizes. With --run, list that
run's artifacts: name, ref, size, and the stage that captured each.`,
		Examples: []cli.Example{
			{
				Description: "Summarize all runs",
				Command:     "gantry artifact list",
			},
			{
				Description: "List one run's artifacts as JSON",
				Command:     "gantry artifact list --run run-20260823-143052-a1b2c3d4 --json",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			sink, err := openSink(params.Config, commandLogger(logger))
			if err != nil {
				return err
			}
			defer sink.Close()

			if params.Run == "" {
				return listRuns(ctx, sink, &params)
			}
			return listRunArtifacts(ctx, sink, &params)
		},
	}
}

func listRuns(ctx context.Context, sink *artifact.Sink, params *artifactListParams) error {
	runs, err := sink.Runs(ctx)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(runs); done {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("No artifacts stored.")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "RUN\tARTIFACTS\tTOTAL SIZE\n")
	for _, run := range runs {
		fmt.Fprintf(writer, "%s\t%d\t%s\n", run.RunID, run.Count, formatSize(run.TotalSize))
	}
	return writer.Flush()
}

func listRunArtifacts(ctx context.Context, sink *artifact.Sink, params *artifactListParams) error {
	entries, err := sink.List(ctx, params.Run)
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(entries); done {
		return err
	}

	if len(entries) == 0 {
		fmt.Printf("No artifacts for run %s.\n", params.Run)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "NAME\tREF\tSIZE\tSTAGE\tCREATED\n")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
			entry.Name,
			entry.Ref,
			formatSize(entry.Size),
			entry.NodePath,
			entry.CreatedAt.Format("2006-01-02 15:04:05 UTC"),
		)
	}
	return writer.Flush()
}

type artifactShowParams struct {
	Run    string `flag:"run"      desc:"run ID the artifact belongs to"`
	Output string `flag:"output,o" desc:"write content to this file instead of stdout"`
	Config string `flag:"config"   desc:"path to the engine configuration file"`
}

func artifactShowCommand() *cli.Command {
	var params artifactShowParams

	return &cli.Command{
		Name:    "show",
		Summary: "Print an artifact's content",
		Usage:   "gantry artifact show --run <run-id> <name> [flags]",
		Description: `Fetch one artifact by run ID and name, verify its hash, and write
the decompressed content to stdout (or to a file with --output).`,
		Examples: []cli.Example{
			{
				Description: "Print a coverage report",
				Command:     "gantry artifact show --run run-20260823-143052-a1b2c3d4 coverage",
			},
			{
				Description: "Save a built image archive",
				Command:     "gantry artifact show --run run-20260823-143052-a1b2c3d4 image -o app.tar",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: gantry artifact show --run <run-id> <name>")
			}
			if params.Run == "" {
				return fmt.Errorf("--run is required")
			}

			sink, err := openSink(params.Config, commandLogger(logger))
			if err != nil {
				return err
			}
			defer sink.Close()

			_, content, err := sink.Open(ctx, params.Run, args[0])
			if err != nil {
				return err
			}

			if params.Output != "" {
				return os.WriteFile(params.Output, content, 0o644)
			}
			_, err = os.Stdout.Write(content)
			return err
		},
	}
}

type artifactInspectParams struct {
	cli.JSONOutput
	Config string `flag:"config" desc:"path to the engine configuration file"`
}

// inspectResult is the JSON output for artifact inspect.
type inspectResult struct {
	Ref         string `json:"ref"`
	Hash        string `json:"hash"`
	RunID       string `json:"run_id"`
	Name        string `json:"name"`
	Stage       string `json:"stage"`
	Size        int64  `json:"size"`
	StoredSize  int64  `json:"stored_size"`
	Compression string `json:"compression"`
	StoredAt    string `json:"stored_at"`
}

func artifactInspectCommand() *cli.Command {
	var params artifactInspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a stored blob's metadata",
		Usage:   "gantry artifact inspect <ref> [flags]",
		Description: `Decode the metadata header of a stored blob without reading its
content: origin run and stage, sizes before and after compression,
codec, and storage time. The ref is the art-<hex> reference printed
by "gantry run" and "gantry artifact list".`,
		Examples: []cli.Example{
			{
				Description: "Inspect a blob",
				Command:     "gantry artifact inspect art-a3f9b2c1e7d4",
			},
		},
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: gantry artifact inspect <ref>")
			}

			sink, err := openSink(params.Config, commandLogger(logger))
			if err != nil {
				return err
			}
			defer sink.Close()

			info, err := sink.Inspect(args[0])
			if err != nil {
				return err
			}

			result := inspectResult{
				Ref:         info.Ref,
				Hash:        artifact.FormatHash(info.Hash),
				RunID:       info.RunID,
				Name:        info.Name,
				Stage:       info.NodePath,
				Size:        info.Size,
				StoredSize:  info.StoredSize,
				Compression: info.Compression.String(),
				StoredAt:    info.StoredAt.Format(time.RFC3339),
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "Ref:\t%s\n", result.Ref)
			fmt.Fprintf(writer, "Hash:\t%s\n", result.Hash)
			fmt.Fprintf(writer, "Run:\t%s\n", result.RunID)
			fmt.Fprintf(writer, "Name:\t%s\n", result.Name)
			fmt.Fprintf(writer, "Stage:\t%s\n", result.Stage)
			fmt.Fprintf(writer, "Size:\t%s (%d bytes)\n", formatSize(result.Size), result.Size)
			fmt.Fprintf(writer, "Stored Size:\t%s (%d bytes)\n", formatSize(result.StoredSize), result.StoredSize)
			fmt.Fprintf(writer, "Compression:\t%s\n", result.Compression)
			fmt.Fprintf(writer, "Stored:\t%s\n", info.StoredAt.Format("2006-01-02 15:04:05 UTC"))
			return writer.Flush()
		},
	}
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
