// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gantry-build/gantry/cmd/gantry/cli"
	"github.com/gantry-build/gantry/lib/engine"
	"github.com/gantry-build/gantry/lib/pipeline"
)

// graphParams holds the parameters for the graph command.
type graphParams struct {
	cli.JSONOutput
}

// graphNode is the JSON shape of one compiled stage in graph output.
type graphNode struct {
	Name      string      `json:"name"`
	Path      string      `json:"path"`
	Kind      string      `json:"kind"`
	Gate      string      `json:"gate,omitempty"`
	Commands  int         `json:"commands,omitempty"`
	Resources []string    `json:"resources,omitempty"`
	Artifacts []string    `json:"artifacts,omitempty"`
	Children  []graphNode `json:"children,omitempty"`
}

// graphResult is the JSON output for the graph command.
type graphResult struct {
	Pipeline    string      `json:"pipeline"`
	Description string      `json:"description,omitempty"`
	StageCount  int         `json:"stage_count"`
	Stages      []graphNode `json:"stages"`
}

// graphCommand returns the "graph" subcommand: compile a pipeline
// file and print its stage tree without executing anything.
func graphCommand() *cli.Command {
	var params graphParams

	return &cli.Command{
		Name:    "graph",
		Summary: "Print the compiled stage tree of a pipeline",
		Description: `Compile a pipeline file and print the resulting stage tree: nesting,
scheduling kind, gates, resources, and artifacts. Compilation runs
the same validation as "gantry validate", so a pipeline that prints
here will also load for "gantry run".

Sequential scheduling is the default and is not annotated; parallel
groups are marked. Gates print in their compact form, e.g.
'branch in [main, release] AND PUSH_IMAGE=1'.`,
		Usage: "gantry graph [flags] <pipeline-file>",
		Examples: []cli.Example{
			{
				Description: "Inspect the stage tree",
				Command:     "gantry graph ci.pipeline.jsonc",
			},
			{
				Description: "Feed the structure to another tool",
				Command:     "gantry graph ci.pipeline.jsonc --json | jq '.stages[].name'",
			},
		},
		Params: func() any { return &params },
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: gantry graph [flags] <pipeline-file>")
			}

			path := args[0]
			definition, err := pipeline.ReadFile(path)
			if err != nil {
				return err
			}

			graph, err := engine.Compile(pipeline.NameFromPath(path), definition)
			if err != nil {
				return err
			}

			result := graphResult{
				Pipeline:    graph.Name,
				Description: graph.Description,
				StageCount:  graph.StageCount,
			}
			for _, child := range graph.Root.Children {
				result.Stages = append(result.Stages, buildGraphNode(child))
			}

			if done, err := params.EmitJSON(result); done {
				return err
			}

			fmt.Printf("%s: %d stage(s)\n", graph.Name, graph.StageCount)
			if graph.Description != "" {
				fmt.Printf("%s\n", graph.Description)
			}
			fmt.Println()
			for _, child := range graph.Root.Children {
				printGraphNode(child, 0)
			}
			return nil
		},
	}
}

// buildGraphNode converts a compiled node into its JSON shape,
// recursively.
func buildGraphNode(node *engine.Node) graphNode {
	built := graphNode{
		Name:     node.Name,
		Path:     node.Path,
		Kind:     node.Kind.String(),
		Gate:     node.Gate.String(),
		Commands: len(node.Body),
	}
	for _, resource := range node.Resources {
		built.Resources = append(built.Resources, resource.ID)
	}
	for _, artifact := range node.Artifacts {
		built.Artifacts = append(built.Artifacts, artifact.Name)
	}
	for _, child := range node.Children {
		built.Children = append(built.Children, buildGraphNode(child))
	}
	return built
}

// printGraphNode writes one stage line, indented by depth, then
// recurses into children.
func printGraphNode(node *engine.Node, depth int) {
	line := strings.Repeat("  ", depth) + node.Name
	if node.Kind == engine.KindParallel {
		line += " (parallel)"
	}
	if gate := node.Gate.String(); gate != "" {
		line += "  [if " + gate + "]"
	}
	if len(node.Resources) > 0 {
		ids := make([]string, len(node.Resources))
		for i, resource := range node.Resources {
			ids[i] = resource.ID
		}
		line += "  [resources: " + strings.Join(ids, ", ") + "]"
	}
	if len(node.Artifacts) > 0 {
		names := make([]string, len(node.Artifacts))
		for i, artifact := range node.Artifacts {
			names[i] = artifact.Name
		}
		line += "  [artifacts: " + strings.Join(names, ", ") + "]"
	}
	fmt.Println(line)
	for _, child := range node.Children {
		printGraphNode(child, depth+1)
	}
}
