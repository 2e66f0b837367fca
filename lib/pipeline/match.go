// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// matchCriterion is a single operator within a MatchValue.
type matchCriterion struct {
	op     string   // "eq" or "in"
	value  string   // for "eq"
	values []string // for "in"
}

// MatchValue holds one or more criteria for a single gate field. Gate
// values are always strings (branch names, environment variable
// values), so the operator set is equality and set membership. When
// multiple criteria are present, all must be satisfied (AND).
//
// JSON forms:
//
//	"main"                        — shorthand for {"$eq": "main"}
//	{"$eq": "main"}               — equality
//	{"$in": ["main", "release"]}  — set membership
//
// Construct in Go via Eq and In. The zero MatchValue is invalid;
// Validate rejects it.
type MatchValue struct {
	criteria []matchCriterion
}

// Eq returns a MatchValue for exact string equality.
func Eq(value string) MatchValue {
	return MatchValue{criteria: []matchCriterion{{op: "eq", value: value}}}
}

// In returns a MatchValue for set membership.
func In(values ...string) MatchValue {
	set := make([]string, len(values))
	copy(set, values)
	return MatchValue{criteria: []matchCriterion{{op: "in", values: set}}}
}

// UnmarshalJSON decodes a MatchValue. Accepts a bare string (shorthand
// for {"$eq": value}) or an object with $-prefixed operator keys. Null
// and non-string forms are rejected — gate values are concrete strings.
func (m *MatchValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid match value: %w", err)
	}

	switch v := raw.(type) {
	case string:
		m.criteria = []matchCriterion{{op: "eq", value: v}}

	case map[string]any:
		if len(v) == 0 {
			return errors.New("match value object must have at least one $-operator key")
		}
		m.criteria = make([]matchCriterion, 0, len(v))
		for key, val := range v {
			if !strings.HasPrefix(key, "$") {
				return fmt.Errorf("match value object keys must start with $, got %q", key)
			}
			criterion, err := parseCriterion(key[1:], val)
			if err != nil {
				return err
			}
			m.criteria = append(m.criteria, criterion)
		}

	case nil:
		return errors.New("match value must not be null")

	default:
		return fmt.Errorf("match value must be a string or $-operator object, got %T", raw)
	}

	return nil
}

// parseCriterion validates and converts one JSON operator-value pair.
func parseCriterion(op string, value any) (matchCriterion, error) {
	switch op {
	case "eq":
		s, ok := value.(string)
		if !ok {
			return matchCriterion{}, fmt.Errorf("$eq value must be a string, got %T", value)
		}
		return matchCriterion{op: "eq", value: s}, nil

	case "in":
		arr, ok := value.([]any)
		if !ok {
			return matchCriterion{}, fmt.Errorf("$in value must be an array, got %T", value)
		}
		if len(arr) == 0 {
			return matchCriterion{}, errors.New("$in value array must not be empty")
		}
		values := make([]string, len(arr))
		for i, element := range arr {
			s, ok := element.(string)
			if !ok {
				return matchCriterion{}, fmt.Errorf("$in element %d must be a string, got %T", i, element)
			}
			values[i] = s
		}
		return matchCriterion{op: "in", values: values}, nil

	default:
		return matchCriterion{}, fmt.Errorf("unknown operator $%s", op)
	}
}

// MarshalJSON encodes a MatchValue. A single eq criterion marshals as
// a bare string; everything else marshals as a $-operator object.
func (m MatchValue) MarshalJSON() ([]byte, error) {
	if len(m.criteria) == 0 {
		return nil, errors.New("cannot marshal empty MatchValue")
	}
	if len(m.criteria) == 1 && m.criteria[0].op == "eq" {
		return json.Marshal(m.criteria[0].value)
	}
	obj := make(map[string]any, len(m.criteria))
	for _, c := range m.criteria {
		switch c.op {
		case "eq":
			obj["$eq"] = c.value
		case "in":
			obj["$in"] = c.values
		}
	}
	return json.Marshal(obj)
}

// Validate checks that the MatchValue has at least one criterion and
// no duplicate operators. JSON-decoded values are already validated
// during unmarshal; call this on values constructed in Go code.
func (m MatchValue) Validate() error {
	if len(m.criteria) == 0 {
		return errors.New("match value must have at least one criterion")
	}

	seen := make(map[string]bool, len(m.criteria))
	for _, c := range m.criteria {
		switch c.op {
		case "eq":
		case "in":
			if len(c.values) == 0 {
				return errors.New("$in: value array must not be empty")
			}
		default:
			return fmt.Errorf("unknown operator %q", c.op)
		}
		if seen[c.op] {
			return fmt.Errorf("duplicate operator $%s", c.op)
		}
		seen[c.op] = true
	}
	return nil
}

// Evaluate reports whether actual satisfies all criteria. Evaluation
// is pure: the same inputs always produce the same answer.
func (m MatchValue) Evaluate(actual string) bool {
	if len(m.criteria) == 0 {
		return false
	}
	for _, c := range m.criteria {
		switch c.op {
		case "eq":
			if actual != c.value {
				return false
			}
		case "in":
			found := false
			for _, candidate := range c.values {
				if actual == candidate {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// StringValue returns a human-readable representation for "gantry
// graph" output: "main" for simple equality, "in [main, release]" for
// membership, criteria joined with " AND " when multiple.
func (m MatchValue) StringValue() string {
	if len(m.criteria) == 0 {
		return ""
	}
	parts := make([]string, len(m.criteria))
	for i, c := range m.criteria {
		switch c.op {
		case "eq":
			parts[i] = c.value
		case "in":
			parts[i] = "in [" + strings.Join(c.values, ", ") + "]"
		default:
			parts[i] = fmt.Sprintf("(%s)", c.op)
		}
	}
	return strings.Join(parts, " AND ")
}
