// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Gate is a predicate over the run context controlling whether a stage
// executes. All keys present on a gate must be satisfied (AND):
//
//	{"branch": "main"}                          — branch equality
//	{"branch": {"$in": ["main", "release"]}}    — branch membership
//	{"env": {"PUSH_IMAGE": "1"}}                — variable equality
//	{"any": [{"branch": "main"}, {...}]}        — OR of sub-gates
//	{"all": [...]}, {"not": {...}}              — AND, negation
//
// Gates are pure: evaluation reads only the branch and the resolved
// environment, performs no side effects, and always yields the same
// answer for the same context. Comparison values are literal — no
// ${NAME} substitution.
//
// Env keys must name a declared variable, a declared secret, or a
// built-in trigger key; Definition validation rejects anything else
// before execution.
type Gate struct {
	// Branch matches the run's branch name.
	Branch *MatchValue `json:"branch,omitempty"`

	// Env maps variable names to matchers over their resolved values.
	Env map[string]MatchValue `json:"env,omitempty"`

	// All is satisfied when every sub-gate is satisfied.
	All []Gate `json:"all,omitempty"`

	// Any is satisfied when at least one sub-gate is satisfied.
	Any []Gate `json:"any,omitempty"`

	// Not inverts a sub-gate.
	Not *Gate `json:"not,omitempty"`
}

// Evaluate checks the gate against the run's branch and resolved
// environment. Returns an error when a referenced env key has no value
// in the context — the engine treats that as false and logs a warning
// rather than failing the run.
//
// A nil gate is always true.
func (g *Gate) Evaluate(branch string, env map[string]string) (bool, error) {
	if g == nil {
		return true, nil
	}

	if g.Branch != nil {
		if !g.Branch.Evaluate(branch) {
			return false, nil
		}
	}

	// Sorted key order keeps evaluation (including which missing key
	// an error names) deterministic for a fixed context.
	names := make([]string, 0, len(g.Env))
	for name := range g.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value, exists := env[name]
		if !exists {
			return false, fmt.Errorf("gate references %q, which has no value in this run", name)
		}
		if !g.Env[name].Evaluate(value) {
			return false, nil
		}
	}

	for i := range g.All {
		ok, err := g.All[i].Evaluate(branch, env)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	if len(g.Any) > 0 {
		var firstErr error
		matched := false
		for i := range g.Any {
			ok, err := g.Any[i].Evaluate(branch, env)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			if firstErr != nil {
				return false, firstErr
			}
			return false, nil
		}
	}

	if g.Not != nil {
		ok, err := g.Not.Evaluate(branch, env)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}

	return true, nil
}

// References returns the sorted set of env keys this gate reads,
// including keys referenced by nested sub-gates. Used at construction
// time to verify every reference names a declared variable, secret, or
// built-in.
func (g *Gate) References() []string {
	seen := make(map[string]bool)
	g.collectReferences(seen)

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *Gate) collectReferences(seen map[string]bool) {
	if g == nil {
		return
	}
	for name := range g.Env {
		seen[name] = true
	}
	for i := range g.All {
		g.All[i].collectReferences(seen)
	}
	for i := range g.Any {
		g.Any[i].collectReferences(seen)
	}
	g.Not.collectReferences(seen)
}

// Validate checks the gate's structure: at least one key set, valid
// matchers, non-empty all/any lists, and the same recursively for
// sub-gates. Reference checking against declared names happens in
// Definition validation, which knows the declared set.
func (g *Gate) Validate() error {
	if g == nil {
		return nil
	}

	if g.Branch == nil && len(g.Env) == 0 && len(g.All) == 0 && len(g.Any) == 0 && g.Not == nil {
		return errors.New("gate must set at least one of branch, env, all, any, not")
	}

	if g.Branch != nil {
		if err := g.Branch.Validate(); err != nil {
			return fmt.Errorf("branch: %w", err)
		}
	}
	for name, matcher := range g.Env {
		if name == "" {
			return errors.New("env: variable name must not be empty")
		}
		if err := matcher.Validate(); err != nil {
			return fmt.Errorf("env[%s]: %w", name, err)
		}
	}
	for i := range g.All {
		if err := g.All[i].Validate(); err != nil {
			return fmt.Errorf("all[%d]: %w", i, err)
		}
	}
	for i := range g.Any {
		if err := g.Any[i].Validate(); err != nil {
			return fmt.Errorf("any[%d]: %w", i, err)
		}
	}
	if g.Not != nil {
		if err := g.Not.Validate(); err != nil {
			return fmt.Errorf("not: %w", err)
		}
	}

	return nil
}

// String returns a compact human-readable form of the gate for
// "gantry graph" output, e.g.
// "branch in [main, release] AND PUSH_IMAGE=1".
func (g *Gate) String() string {
	if g == nil {
		return ""
	}

	var parts []string

	if g.Branch != nil {
		parts = append(parts, clause("branch", *g.Branch))
	}

	names := make([]string, 0, len(g.Env))
	for name := range g.Env {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, clause(name, g.Env[name]))
	}

	for i := range g.All {
		parts = append(parts, "("+g.All[i].String()+")")
	}

	if len(g.Any) > 0 {
		sub := make([]string, len(g.Any))
		for i := range g.Any {
			sub[i] = g.Any[i].String()
		}
		parts = append(parts, "("+strings.Join(sub, " OR ")+")")
	}

	if g.Not != nil {
		parts = append(parts, "NOT ("+g.Not.String()+")")
	}

	return strings.Join(parts, " AND ")
}

// clause formats "subject=value" for simple equality and
// "subject in [a, b]" for everything else.
func clause(subject string, m MatchValue) string {
	if len(m.criteria) == 1 && m.criteria[0].op == "eq" {
		return subject + "=" + m.criteria[0].value
	}
	return subject + " " + m.StringValue()
}
