// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"

	"github.com/gantry-build/gantry/lib/pipeline"
)

// NodeKind says how a node's work is scheduled.
type NodeKind int

const (
	// KindLeaf nodes have a command body and no children.
	KindLeaf NodeKind = iota

	// KindSequential nodes run children in declared order, stopping
	// at the first Failure or Aborted child.
	KindSequential

	// KindParallel nodes run all children concurrently and join
	// before finishing; no child is cancelled because a sibling
	// failed.
	KindParallel
)

func (k NodeKind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindSequential:
		return "sequential"
	case KindParallel:
		return "parallel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Node is one stage in the compiled graph. Nodes are immutable for
// the run's duration; only the run context and the report mutate
// during execution.
type Node struct {
	// Name is the stage name from the definition.
	Name string

	// Path is the slash-joined path from the top level to this
	// node, e.g. "verify/integration". Unique within the graph.
	Path string

	// Kind determines how Body or Children are scheduled.
	Kind NodeKind

	// Gate is the execution predicate; nil means always run.
	Gate *pipeline.Gate

	// Body is the leaf command sequence. Empty unless Kind is
	// KindLeaf.
	Body []pipeline.Command

	// Children are the sub-stages, in declared order. Empty for
	// leaves.
	Children []*Node

	// Hooks are the stage's outcome-scoped post-actions.
	Hooks *pipeline.StageHooks

	// Resources are the ephemeral resources the stage declares.
	Resources []pipeline.Resource

	// Artifacts are the files captured after the leaf body succeeds.
	Artifacts []pipeline.Artifact
}

// Graph is the compiled, validated form of a pipeline definition. It
// is built once before execution and never modified afterwards; the
// executor only reads it.
//
// The root node is synthetic: an unnamed sequential node over the
// definition's top-level stages, with no gate, hooks, or resources
// of its own.
type Graph struct {
	// Name identifies the pipeline, usually derived from its file
	// name.
	Name string

	// Description is the definition's human-readable summary.
	Description string

	// Root is the synthetic sequential node over the top-level
	// stages.
	Root *Node

	// Hooks are the run-level post-actions.
	Hooks *pipeline.GraphHooks

	// StageCount is the number of declared stages (the synthetic
	// root excluded).
	StageCount int
}

// Compile validates a definition and builds its immutable stage
// graph. All construction-time invariants are enforced here, before
// any execution: sibling name uniqueness, exactly one body form per
// stage, and gates referencing only declared variables, secrets, or
// trigger built-ins.
//
// The graph borrows the definition's command and resource slices;
// neither the definition nor the graph may be modified after Compile
// returns.
func Compile(name string, definition *pipeline.Definition) (*Graph, error) {
	issues := pipeline.Validate(definition)
	if len(issues) > 0 {
		return nil, fmt.Errorf("pipeline %q has validation errors:\n  %s", name, strings.Join(issues, "\n  "))
	}

	graph := &Graph{
		Name:        name,
		Description: definition.Description,
		Hooks:       definition.Hooks,
	}
	graph.Root = &Node{
		Kind:     KindSequential,
		Children: graph.buildChildren("", definition.Stages),
	}
	return graph, nil
}

func (g *Graph) buildChildren(prefix string, stages []pipeline.Stage) []*Node {
	children := make([]*Node, len(stages))
	for i := range stages {
		children[i] = g.buildNode(prefix, &stages[i])
	}
	return children
}

func (g *Graph) buildNode(prefix string, stage *pipeline.Stage) *Node {
	path := stage.Name
	if prefix != "" {
		path = prefix + "/" + stage.Name
	}
	node := &Node{
		Name:      stage.Name,
		Path:      path,
		Gate:      stage.Gate,
		Hooks:     stage.Hooks,
		Resources: stage.Resources,
		Artifacts: stage.Artifacts,
	}
	switch {
	case len(stage.Run) > 0:
		node.Kind = KindLeaf
		node.Body = stage.Run
	case len(stage.Stages) > 0:
		node.Kind = KindSequential
		node.Children = g.buildChildren(path, stage.Stages)
	case len(stage.Parallel) > 0:
		node.Kind = KindParallel
		node.Children = g.buildChildren(path, stage.Parallel)
	}
	g.StageCount++
	return node
}

// Walk calls fn for every declared stage in depth-first declaration
// order. The synthetic root is not visited.
func (g *Graph) Walk(fn func(*Node)) {
	for _, child := range g.Root.Children {
		walkNode(child, fn)
	}
}

func walkNode(node *Node, fn func(*Node)) {
	fn(node)
	for _, child := range node.Children {
		walkNode(child, fn)
	}
}
