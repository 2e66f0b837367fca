// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMatchValueUnmarshal(t *testing.T) {
	t.Parallel()

	t.Run("bare string is eq shorthand", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`"main"`), &m); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !m.Evaluate("main") {
			t.Error("should match main")
		}
		if m.Evaluate("develop") {
			t.Error("should not match develop")
		}
	})

	t.Run("eq operator", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{"$eq": "main"}`), &m); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !m.Evaluate("main") {
			t.Error("should match main")
		}
	})

	t.Run("in operator", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{"$in": ["main", "release"]}`), &m); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if !m.Evaluate("main") || !m.Evaluate("release") {
			t.Error("should match both set members")
		}
		if m.Evaluate("develop") {
			t.Error("should not match develop")
		}
	})

	t.Run("rejects unknown operator", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{"$regex": "ma.*"}`), &m); err == nil {
			t.Fatal("expected error for unknown operator")
		}
	})

	t.Run("rejects empty in array", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{"$in": []}`), &m); err == nil {
			t.Fatal("expected error for empty $in array")
		}
	})

	t.Run("rejects non-string eq", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{"$eq": 1}`), &m); err == nil {
			t.Fatal("expected error for numeric $eq")
		}
	})

	t.Run("rejects null", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`null`), &m); err == nil {
			t.Fatal("expected error for null")
		}
	})

	t.Run("rejects empty object", func(t *testing.T) {
		t.Parallel()

		var m MatchValue
		if err := json.Unmarshal([]byte(`{}`), &m); err == nil {
			t.Fatal("expected error for empty object")
		}
	})
}

func TestMatchValueMarshal(t *testing.T) {
	t.Parallel()

	t.Run("eq marshals as bare string", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(Eq("main"))
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(data) != `"main"` {
			t.Errorf("Marshal = %s, want %q", data, `"main"`)
		}
	})

	t.Run("in marshals as operator object", func(t *testing.T) {
		t.Parallel()

		data, err := json.Marshal(In("main", "release"))
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if string(data) != `{"$in":["main","release"]}` {
			t.Errorf("Marshal = %s", data)
		}
	})

	t.Run("zero value fails", func(t *testing.T) {
		t.Parallel()

		if _, err := json.Marshal(MatchValue{}); err == nil {
			t.Fatal("expected error marshaling zero MatchValue")
		}
	})
}

func TestMatchValueValidate(t *testing.T) {
	t.Parallel()

	if err := Eq("main").Validate(); err != nil {
		t.Errorf("Eq should validate: %v", err)
	}
	if err := In("a", "b").Validate(); err != nil {
		t.Errorf("In should validate: %v", err)
	}
	if err := (MatchValue{}).Validate(); err == nil {
		t.Error("zero MatchValue should not validate")
	}
	if err := In().Validate(); err == nil {
		t.Error("empty In should not validate")
	}
}

func TestGateEvaluate(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"PUSH_IMAGE":    "1",
		"GANTRY_BRANCH": "main",
	}

	t.Run("nil gate is always true", func(t *testing.T) {
		t.Parallel()

		var gate *Gate
		ok, err := gate.Evaluate("main", env)
		if err != nil || !ok {
			t.Errorf("nil gate = (%v, %v), want (true, nil)", ok, err)
		}
	})

	t.Run("branch equality", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		gate := &Gate{Branch: &branchMain}

		ok, err := gate.Evaluate("main", env)
		if err != nil || !ok {
			t.Errorf("main = (%v, %v), want (true, nil)", ok, err)
		}
		ok, err = gate.Evaluate("develop", env)
		if err != nil || ok {
			t.Errorf("develop = (%v, %v), want (false, nil)", ok, err)
		}
	})

	t.Run("branch membership", func(t *testing.T) {
		t.Parallel()

		branches := In("main", "release")
		gate := &Gate{Branch: &branches}

		if ok, _ := gate.Evaluate("release", env); !ok {
			t.Error("release should pass")
		}
		if ok, _ := gate.Evaluate("feature/x", env); ok {
			t.Error("feature/x should not pass")
		}
	})

	t.Run("env equality", func(t *testing.T) {
		t.Parallel()

		gate := &Gate{Env: map[string]MatchValue{"PUSH_IMAGE": Eq("1")}}

		if ok, _ := gate.Evaluate("main", env); !ok {
			t.Error("PUSH_IMAGE=1 should pass")
		}
		if ok, _ := gate.Evaluate("main", map[string]string{"PUSH_IMAGE": "0"}); ok {
			t.Error("PUSH_IMAGE=0 should not pass")
		}
	})

	t.Run("keys AND together", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		gate := &Gate{
			Branch: &branchMain,
			Env:    map[string]MatchValue{"PUSH_IMAGE": Eq("1")},
		}

		if ok, _ := gate.Evaluate("main", env); !ok {
			t.Error("both satisfied should pass")
		}
		if ok, _ := gate.Evaluate("develop", env); ok {
			t.Error("wrong branch should not pass")
		}
		if ok, _ := gate.Evaluate("main", map[string]string{"PUSH_IMAGE": "0"}); ok {
			t.Error("wrong env should not pass")
		}
	})

	t.Run("missing env key is an evaluation error", func(t *testing.T) {
		t.Parallel()

		gate := &Gate{Env: map[string]MatchValue{"ABSENT": Eq("x")}}

		ok, err := gate.Evaluate("main", env)
		if err == nil {
			t.Fatal("expected evaluation error for missing key")
		}
		if ok {
			t.Error("errored gate must evaluate false")
		}
		if !strings.Contains(err.Error(), "ABSENT") {
			t.Errorf("error should name the missing key: %v", err)
		}
	})

	t.Run("all", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		gate := &Gate{All: []Gate{
			{Branch: &branchMain},
			{Env: map[string]MatchValue{"PUSH_IMAGE": Eq("1")}},
		}}

		if ok, _ := gate.Evaluate("main", env); !ok {
			t.Error("all satisfied should pass")
		}
		if ok, _ := gate.Evaluate("develop", env); ok {
			t.Error("one false sub-gate should fail all")
		}
	})

	t.Run("any", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		branchRelease := Eq("release")
		gate := &Gate{Any: []Gate{
			{Branch: &branchMain},
			{Branch: &branchRelease},
		}}

		if ok, _ := gate.Evaluate("release", env); !ok {
			t.Error("second alternative should pass")
		}
		if ok, _ := gate.Evaluate("develop", env); ok {
			t.Error("no alternative should fail")
		}
	})

	t.Run("any ignores errored alternatives when one matches", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		gate := &Gate{Any: []Gate{
			{Env: map[string]MatchValue{"ABSENT": Eq("x")}},
			{Branch: &branchMain},
		}}

		ok, err := gate.Evaluate("main", env)
		if err != nil || !ok {
			t.Errorf("any with matching alternative = (%v, %v), want (true, nil)", ok, err)
		}

		// With no matching alternative, the error surfaces.
		ok, err = gate.Evaluate("develop", env)
		if err == nil {
			t.Fatal("expected error when nothing matched and one alternative errored")
		}
		if ok {
			t.Error("errored any must evaluate false")
		}
	})

	t.Run("not", func(t *testing.T) {
		t.Parallel()

		branchMain := Eq("main")
		gate := &Gate{Not: &Gate{Branch: &branchMain}}

		if ok, _ := gate.Evaluate("develop", env); !ok {
			t.Error("not main should pass for develop")
		}
		if ok, _ := gate.Evaluate("main", env); ok {
			t.Error("not main should fail for main")
		}
	})

	t.Run("deterministic for fixed context", func(t *testing.T) {
		t.Parallel()

		branches := In("main", "release")
		gate := &Gate{
			Branch: &branches,
			Env:    map[string]MatchValue{"PUSH_IMAGE": Eq("1"), "GANTRY_BRANCH": Eq("main")},
		}

		first, firstErr := gate.Evaluate("main", env)
		for range 50 {
			again, againErr := gate.Evaluate("main", env)
			if again != first || (againErr == nil) != (firstErr == nil) {
				t.Fatal("re-evaluating the same gate on the same context changed the answer")
			}
		}
	})
}

func TestGateReferences(t *testing.T) {
	t.Parallel()

	branchMain := Eq("main")
	gate := &Gate{
		Branch: &branchMain,
		Env:    map[string]MatchValue{"B_VAR": Eq("1")},
		All: []Gate{
			{Env: map[string]MatchValue{"A_VAR": Eq("x")}},
		},
		Any: []Gate{
			{Env: map[string]MatchValue{"C_VAR": Eq("y")}},
		},
		Not: &Gate{Env: map[string]MatchValue{"A_VAR": Eq("z")}},
	}

	got := gate.References()
	want := []string{"A_VAR", "B_VAR", "C_VAR"}
	if len(got) != len(want) {
		t.Fatalf("References = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("References[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGateValidate(t *testing.T) {
	t.Parallel()

	t.Run("empty gate rejected", func(t *testing.T) {
		t.Parallel()

		if err := (&Gate{}).Validate(); err == nil {
			t.Fatal("empty gate should not validate")
		}
	})

	t.Run("nil gate is valid", func(t *testing.T) {
		t.Parallel()

		var gate *Gate
		if err := gate.Validate(); err != nil {
			t.Errorf("nil gate should validate: %v", err)
		}
	})

	t.Run("invalid nested matcher surfaces with path", func(t *testing.T) {
		t.Parallel()

		gate := &Gate{All: []Gate{{Env: map[string]MatchValue{"X": {}}}}}
		err := gate.Validate()
		if err == nil {
			t.Fatal("invalid nested matcher should not validate")
		}
		if !strings.Contains(err.Error(), "all[0]") {
			t.Errorf("error should carry the nested path: %v", err)
		}
	})

	t.Run("empty env name rejected", func(t *testing.T) {
		t.Parallel()

		gate := &Gate{Env: map[string]MatchValue{"": Eq("x")}}
		if err := gate.Validate(); err == nil {
			t.Fatal("empty env name should not validate")
		}
	})
}

func TestGateString(t *testing.T) {
	t.Parallel()

	branches := In("main", "release")
	gate := &Gate{
		Branch: &branches,
		Env:    map[string]MatchValue{"PUSH_IMAGE": Eq("1")},
	}

	got := gate.String()
	if !strings.Contains(got, "branch in [main, release]") {
		t.Errorf("String() = %q, want branch clause", got)
	}
	if !strings.Contains(got, "PUSH_IMAGE=1") {
		t.Errorf("String() = %q, want env clause", got)
	}
}
