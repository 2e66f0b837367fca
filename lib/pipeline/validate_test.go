// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"strings"
	"testing"
)

func ptr[T any](value T) *T { return &value }

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		definition     *Definition
		expectedIssues int
		wantSubstrings []string
	}{
		{
			name: "valid single run stage",
			definition: &Definition{
				Stages: []Stage{
					{Name: "hello", Run: []Command{{Run: "echo hello"}}},
				},
			},
			expectedIssues: 0,
		},
		{
			name: "valid full pipeline",
			definition: &Definition{
				Description: "build, test, deploy",
				Variables: map[string]Variable{
					"PUSH_IMAGE": {Default: "0"},
					"REGION":     {Required: true},
				},
				Secrets: map[string]string{
					"DEPLOY_TOKEN": "c2VjcmV0",
				},
				Stages: []Stage{
					{
						Name: "build",
						Run: []Command{
							{Argv: []string{"make", "build"}, Timeout: "10m"},
						},
						Resources: []Resource{
							{
								ID:      "workdir",
								Kind:    ResourceDirectory,
								Release: &Command{Argv: []string{"rm", "-rf", "/tmp/build"}},
							},
						},
						Artifacts: []Artifact{
							{Name: "binary", Path: "out/app"},
						},
					},
					{
						Name: "test",
						Parallel: []Stage{
							{Name: "unit", Run: []Command{{Run: "make test-unit"}}},
							{Name: "integration", Run: []Command{{Run: "make test-integration"}}},
						},
					},
					{
						Name: "deploy",
						Gate: &Gate{
							Branch: ptr(Eq("main")),
							Env:    map[string]MatchValue{"PUSH_IMAGE": Eq("1")},
						},
						Stages: []Stage{
							{Name: "push", Run: []Command{{Run: "make push"}}},
						},
						Hooks: &StageHooks{
							Failure: []Command{{Run: "notify failure"}},
						},
					},
				},
				Hooks: &GraphHooks{
					Always:  []Command{{Run: "report"}},
					Cleanup: []Command{{Run: "make clean"}},
				},
			},
			expectedIssues: 0,
		},
		{
			name:           "no stages",
			definition:     &Definition{},
			expectedIssues: 1,
			wantSubstrings: []string{"pipeline has no stages"},
		},
		{
			name: "stage name required",
			definition: &Definition{
				Stages: []Stage{{Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"stages[0]: name is required"},
		},
		{
			name: "stage name must not contain slash",
			definition: &Definition{
				Stages: []Stage{{Name: "build/fast", Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`must not contain '/'`},
		},
		{
			name: "duplicate sibling stage names",
			definition: &Definition{
				Stages: []Stage{
					{Name: "build", Run: []Command{{Run: "echo 1"}}},
					{Name: "build", Run: []Command{{Run: "echo 2"}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"duplicate name among siblings"},
		},
		{
			name: "same stage name allowed in different sibling sets",
			definition: &Definition{
				Stages: []Stage{
					{Name: "linux", Stages: []Stage{
						{Name: "build", Run: []Command{{Run: "make"}}},
					}},
					{Name: "darwin", Stages: []Stage{
						{Name: "build", Run: []Command{{Run: "make"}}},
					}},
				},
			},
			expectedIssues: 0,
		},
		{
			name: "stage with run and stages",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:   "both",
						Run:    []Command{{Run: "echo"}},
						Stages: []Stage{{Name: "child", Run: []Command{{Run: "echo"}}}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"must set exactly one of run, stages, parallel"},
		},
		{
			name: "stage with no body",
			definition: &Definition{
				Stages: []Stage{{Name: "empty"}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"must set exactly one of run, stages, parallel"},
		},
		{
			name: "command with run and argv",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{Run: "echo", Argv: []string{"echo"}}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"run and argv are mutually exclusive"},
		},
		{
			name: "command with neither run nor argv",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"must set either run or argv"},
		},
		{
			name: "empty argv0",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{Argv: []string{"", "arg"}}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"argv[0] must not be empty"},
		},
		{
			name: "invalid timeout",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{Run: "echo", Timeout: "ten minutes"}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`invalid timeout "ten minutes"`},
		},
		{
			name: "invalid grace period",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{Run: "echo", GracePeriod: "5"}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`invalid grace_period "5"`},
		},
		{
			name: "invalid command env name",
			definition: &Definition{
				Stages: []Stage{
					{Name: "bad", Run: []Command{{Run: "echo", Env: map[string]string{"1BAD": "x"}}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`env name "1BAD"`},
		},
		{
			name: "gate references undeclared variable",
			definition: &Definition{
				Stages: []Stage{
					{
						Name: "deploy",
						Gate: &Gate{Env: map[string]MatchValue{"UNDECLARED": Eq("1")}},
						Run:  []Command{{Run: "echo"}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`gate references undeclared variable "UNDECLARED"`},
		},
		{
			name: "gate may reference builtins and secrets",
			definition: &Definition{
				Secrets: map[string]string{"TOKEN": "c2VjcmV0"},
				Stages: []Stage{
					{
						Name: "deploy",
						Gate: &Gate{Env: map[string]MatchValue{
							"GANTRY_BRANCH": Eq("main"),
							"TOKEN":         Eq("x"),
						}},
						Run: []Command{{Run: "echo"}},
					},
				},
			},
			expectedIssues: 0,
		},
		{
			name: "structurally empty gate",
			definition: &Definition{
				Stages: []Stage{
					{Name: "deploy", Gate: &Gate{}, Run: []Command{{Run: "echo"}}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"gate: gate must set at least one of"},
		},
		{
			name: "invalid variable name",
			definition: &Definition{
				Variables: map[string]Variable{"bad-name": {Default: "x"}},
				Stages:    []Stage{{Name: "s", Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"variables[bad-name]: name must match"},
		},
		{
			name: "secret collides with variable",
			definition: &Definition{
				Variables: map[string]Variable{"TOKEN": {Default: "x"}},
				Secrets:   map[string]string{"TOKEN": "c2VjcmV0"},
				Stages:    []Stage{{Name: "s", Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"secrets[TOKEN]: name collides with a declared variable"},
		},
		{
			name: "secret value not base64",
			definition: &Definition{
				Secrets: map[string]string{"TOKEN": "not/base64!!!"},
				Stages:  []Stage{{Name: "s", Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"secrets[TOKEN]: value is not base64"},
		},
		{
			name: "secret value empty",
			definition: &Definition{
				Secrets: map[string]string{"TOKEN": ""},
				Stages:  []Stage{{Name: "s", Run: []Command{{Run: "echo"}}}},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"secrets[TOKEN]: value is empty"},
		},
		{
			name: "resource id required",
			definition: &Definition{
				Stages: []Stage{
					{
						Name: "s",
						Run:  []Command{{Run: "echo"}},
						Resources: []Resource{
							{Kind: ResourceProcess, Release: &Command{Run: "kill"}},
						},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"resources[0]: id is required"},
		},
		{
			name: "duplicate resource id across stages",
			definition: &Definition{
				Stages: []Stage{
					{
						Name: "a",
						Run:  []Command{{Run: "echo"}},
						Resources: []Resource{
							{ID: "db", Kind: ResourceContainer, Release: &Command{Run: "docker rm db"}},
						},
					},
					{
						Name: "b",
						Run:  []Command{{Run: "echo"}},
						Resources: []Resource{
							{ID: "db", Kind: ResourceContainer, Release: &Command{Run: "docker rm db"}},
						},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`id "db" already declared by`},
		},
		{
			name: "unknown resource kind",
			definition: &Definition{
				Stages: []Stage{
					{
						Name: "s",
						Run:  []Command{{Run: "echo"}},
						Resources: []Resource{
							{ID: "x", Kind: "volume", Release: &Command{Run: "echo"}},
						},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`unknown kind "volume"`},
		},
		{
			name: "resource release required",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:      "s",
						Run:       []Command{{Run: "echo"}},
						Resources: []Resource{{ID: "x", Kind: ResourceDirectory}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"resources[0]: release is required"},
		},
		{
			name: "artifacts only on leaf stages",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:      "group",
						Stages:    []Stage{{Name: "child", Run: []Command{{Run: "echo"}}}},
						Artifacts: []Artifact{{Name: "out", Path: "dist/"}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"artifacts are only valid on leaf stages"},
		},
		{
			name: "duplicate artifact name across stages",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:      "a",
						Run:       []Command{{Run: "echo"}},
						Artifacts: []Artifact{{Name: "report", Path: "a.txt"}},
					},
					{
						Name:      "b",
						Run:       []Command{{Run: "echo"}},
						Artifacts: []Artifact{{Name: "report", Path: "b.txt"}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{`name "report" already declared by`},
		},
		{
			name: "artifact path required",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:      "s",
						Run:       []Command{{Run: "echo"}},
						Artifacts: []Artifact{{Name: "report"}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"artifacts[0]: path is required"},
		},
		{
			name: "stage hook commands are validated",
			definition: &Definition{
				Stages: []Stage{
					{
						Name:  "s",
						Run:   []Command{{Run: "echo"}},
						Hooks: &StageHooks{Failure: []Command{{}}},
					},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"hooks.failure[0]: must set either run or argv"},
		},
		{
			name: "graph hook commands are validated",
			definition: &Definition{
				Stages: []Stage{{Name: "s", Run: []Command{{Run: "echo"}}}},
				Hooks: &GraphHooks{
					Always: []Command{{Run: "report", Timeout: "bogus"}},
				},
			},
			expectedIssues: 1,
			wantSubstrings: []string{"hooks.always[0]: invalid timeout"},
		},
		{
			name: "multiple issues",
			definition: &Definition{
				Stages: []Stage{
					{Run: []Command{{Run: "echo orphan"}}}, // missing name
					{Name: "empty"},                        // no run, stages, or parallel
					{Name: "bad", Run: []Command{{Run: "x", Argv: []string{"x"}}}}, // both
				},
			},
			// name is required, must set exactly one, mutually exclusive
			expectedIssues: 3,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			issues := Validate(testCase.definition)
			if len(issues) != testCase.expectedIssues {
				t.Fatalf("got %d issues, want %d:\n%s", len(issues), testCase.expectedIssues, strings.Join(issues, "\n"))
			}

			for _, substring := range testCase.wantSubstrings {
				found := false
				for _, issue := range issues {
					if strings.Contains(issue, substring) {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("expected issue containing %q, got:\n%s", substring, strings.Join(issues, "\n"))
				}
			}
		})
	}
}
