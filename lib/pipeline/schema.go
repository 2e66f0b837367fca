// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

// Definition is the root of a pipeline definition file. It describes a
// complete build/test/deploy workflow: an ordered tree of stages, the
// variables the workflow expects, encrypted secrets, and graph-level
// hooks that fire when the run reaches its terminal outcome.
//
// Definitions are authored as JSONC files (JSON extended with comments
// and trailing commas) and compiled once per run — the engine never
// re-reads the definition mid-run.
//
// Variable substitution (${NAME}) is applied to command strings,
// working directories, env overlay values, artifact paths, and
// resource release commands before execution. Gate comparison values
// are literal — no substitution.
type Definition struct {
	// Description is a human-readable summary of what this pipeline
	// does (e.g., "Build, verify, and publish the service image").
	Description string `json:"description,omitempty"`

	// Variables declares the variables this pipeline expects, with
	// optional defaults and required flags. The engine validates
	// required variables before starting execution. Actual values
	// come from defaults, the trigger, and operator overrides.
	Variables map[string]Variable `json:"variables,omitempty"`

	// Secrets maps secret names to base64-encoded age ciphertext.
	// Values are decrypted at run start with the configured identity
	// and merged into the run environment. Secret names share the
	// variable namespace: commands reference them with ${NAME} and
	// gates may test them like any declared variable.
	Secrets map[string]string `json:"secrets,omitempty"`

	// Stages is the ordered list of top-level stages. At least one
	// stage is required. Top-level stages run sequentially.
	Stages []Stage `json:"stages"`

	// Hooks are graph-level post-actions keyed by the run's terminal
	// outcome. The engine fires Always first, then the hook matching
	// the final outcome, then Cleanup unconditionally.
	Hooks *GraphHooks `json:"hooks,omitempty"`
}

// Variable declares an expected variable for a pipeline. Declarations
// double as documentation (shown by "gantry graph") and as the
// closed set of names a gate may reference.
type Variable struct {
	// Description explains what this variable is for.
	Description string `json:"description,omitempty"`

	// Default is the fallback value when the variable is not provided
	// by the trigger or an operator override.
	Default string `json:"default,omitempty"`

	// Required means the engine must fail before execution if this
	// variable has no value from any source (including Default).
	Required bool `json:"required,omitempty"`
}

// Stage is a named unit of pipeline work. Exactly one of Run, Stages,
// or Parallel must be set:
//   - Run: a leaf — an ordered list of commands executed sequentially
//   - Stages: children executed sequentially, stopping at the first
//     Failure or Aborted child
//   - Parallel: children executed concurrently with a join barrier;
//     no child is cancelled because a sibling failed
type Stage struct {
	// Name identifies this stage, used in progress output, the run
	// report, and artifact records. Required; must be unique among
	// its siblings.
	Name string `json:"name"`

	// Gate is the predicate controlling whether this stage executes.
	// When nil the stage always runs. A false gate records the stage
	// as skipped without executing its body or children.
	Gate *Gate `json:"gate,omitempty"`

	// Run is the leaf body: commands executed in order. Execution
	// stops at the first command failure that is not marked
	// allow_failure. Mutually exclusive with Stages and Parallel.
	Run []Command `json:"run,omitempty"`

	// Stages are sequential children. Mutually exclusive with Run
	// and Parallel.
	Stages []Stage `json:"stages,omitempty"`

	// Parallel are concurrent children (fork-join). Mutually
	// exclusive with Run and Stages.
	Parallel []Stage `json:"parallel,omitempty"`

	// Hooks are per-stage post-actions keyed by this stage's outcome.
	// Fired after the body or children complete, before the stage's
	// resources are released.
	Hooks *StageHooks `json:"hooks,omitempty"`

	// Resources declares the ephemeral resources this stage creates
	// (containers, directories, processes). The engine registers them
	// with the resource guard when the stage starts executing and
	// releases them after the stage's hooks run — and at the latest
	// during global teardown, regardless of how the run ends. A
	// skipped stage registers nothing.
	Resources []Resource `json:"resources,omitempty"`

	// Artifacts declares files to capture into the artifact store
	// after the stage body succeeds. Paths support ${NAME}
	// substitution. Only valid on leaf stages.
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Command is a single external command invocation. Exactly one of Run
// or Argv must be set:
//   - Run: a shell string executed via <shell> -c (multi-line
//     supported)
//   - Argv: an explicit argument vector executed directly, no shell
type Command struct {
	// Run is a shell command string. Variable substitution (${NAME})
	// is applied before execution. Mutually exclusive with Argv.
	Run string `json:"run,omitempty"`

	// Argv is an explicit argument vector: argv[0] is the program.
	// Each element gets variable substitution. Mutually exclusive
	// with Run.
	Argv []string `json:"argv,omitempty"`

	// Check is a post-command verification, executed as a shell
	// string after the command succeeds. If Check exits non-zero the
	// command is treated as failed. Catches cases where a command
	// "succeeds" without producing the expected result.
	Check string `json:"check,omitempty"`

	// WorkingDir is the working directory for the command. Empty
	// means the engine process's working directory.
	WorkingDir string `json:"working_dir,omitempty"`

	// Env sets additional environment variables for this command
	// only, merged over the run environment; command values win on
	// conflict. Values support ${NAME} substitution against the run
	// variables.
	Env map[string]string `json:"env,omitempty"`

	// AllowFailure means a non-zero exit does not fail the stage.
	// The true exit code is still recorded in the report; the stage
	// ends Unstable instead of Success when an allowed failure
	// occurred.
	AllowFailure bool `json:"allow_failure,omitempty"`

	// Timeout is the maximum duration for this command (e.g., "5m").
	// Parsed by time.ParseDuration. On expiry the engine terminates
	// the process group and records the timeout sentinel exit code.
	// Empty means the configured runner default.
	Timeout string `json:"timeout,omitempty"`

	// GracePeriod is the duration between SIGTERM and SIGKILL when
	// the timeout expires. Empty means the configured runner default.
	GracePeriod string `json:"grace_period,omitempty"`
}

// StageHooks are per-stage post-actions keyed by the stage's outcome.
// The engine fires the list matching the outcome first, then Always.
// Hook command failures never change the stage's already-finalized
// outcome; they surface as run annotations.
type StageHooks struct {
	Success  []Command `json:"success,omitempty"`
	Unstable []Command `json:"unstable,omitempty"`
	Failure  []Command `json:"failure,omitempty"`
	Aborted  []Command `json:"aborted,omitempty"`
	Skipped  []Command `json:"skipped,omitempty"`
	Always   []Command `json:"always,omitempty"`
}

// GraphHooks are run-level post-actions. After the root stage
// finishes, the engine fires Always, then the list matching the final
// outcome, then Cleanup — Cleanup runs even when earlier hooks failed.
// A run's final outcome is never Skipped, so there is no skipped key.
type GraphHooks struct {
	Success  []Command `json:"success,omitempty"`
	Unstable []Command `json:"unstable,omitempty"`
	Failure  []Command `json:"failure,omitempty"`
	Aborted  []Command `json:"aborted,omitempty"`
	Always   []Command `json:"always,omitempty"`
	Cleanup  []Command `json:"cleanup,omitempty"`
}

// Resource kinds accepted in definitions.
const (
	ResourceContainer = "container"
	ResourceDirectory = "directory"
	ResourceProcess   = "process"
)

// Resource declares an ephemeral resource a stage creates, with the
// command that releases it. Releases run in reverse registration
// order (last created, first torn down) and are idempotent at the
// guard level: a resource already released individually is skipped by
// global teardown.
type Resource struct {
	// ID identifies the resource in logs and the run report.
	// Required; must be unique within the run.
	ID string `json:"id"`

	// Kind classifies the resource: "container", "directory", or
	// "process".
	Kind string `json:"kind"`

	// Release is the command that tears the resource down. Release
	// failures are logged and never abort teardown. Required.
	Release *Command `json:"release"`
}

// Artifact declares a file to capture into the artifact store after a
// leaf stage's body succeeds.
type Artifact struct {
	// Name keys the artifact within the run. Required; unique per
	// stage.
	Name string `json:"name"`

	// Path is the file to read, relative to the engine's working
	// directory unless absolute. Supports ${NAME} substitution.
	Path string `json:"path"`
}
