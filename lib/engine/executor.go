// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gantry-build/gantry/lib/artifact"
	"github.com/gantry-build/gantry/lib/clock"
	"github.com/gantry-build/gantry/lib/pipeline"
)

// Fallback command limits, used when the config does not supply
// defaults. Individual commands override both per invocation.
const (
	defaultCommandTimeout = 30 * time.Minute
	defaultGracePeriod    = 10 * time.Second
)

// EventSink receives progress callbacks during execution, one pair
// per stage that actually starts. Callbacks arrive from multiple
// goroutines while parallel stages run; implementations must be safe
// for concurrent use.
type EventSink interface {
	StageStarted(path string, kind NodeKind)
	StageFinished(path string, outcome Outcome, duration time.Duration, detail string)
}

// ExecutorConfig holds the collaborators and defaults for an
// Executor. Only the zero value's behavior is documented per field;
// everything is optional.
type ExecutorConfig struct {
	// Runner executes external commands. Nil means a real
	// subprocess runner with default settings.
	Runner Runner

	// Guard tracks ephemeral resources. Nil means a fresh guard.
	Guard *Guard

	// Artifacts stores captured stage artifacts. Nil is allowed;
	// a stage declaring artifacts then fails with a clear error.
	Artifacts *artifact.Sink

	// RunLog receives JSONL progress entries. Nil disables the log.
	RunLog *RunLog

	// Events receives progress callbacks. Nil disables them.
	Events EventSink

	// Clock supplies time; tests inject a fake. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger receives operational messages. Nil discards them.
	Logger *slog.Logger

	// DefaultTimeout bounds commands that do not set their own
	// timeout. Zero means 30 minutes.
	DefaultTimeout time.Duration

	// DefaultGracePeriod is the SIGTERM-to-SIGKILL spacing for
	// commands that do not set their own. Zero means 10 seconds.
	DefaultGracePeriod time.Duration
}

// Executor walks a compiled graph once per run. A single Executor
// may be reused across runs; all per-run state lives in the
// RunContext and the Report.
type Executor struct {
	runner             Runner
	guard              *Guard
	artifacts          *artifact.Sink
	runLog             *RunLog
	events             EventSink
	clock              clock.Clock
	logger             *slog.Logger
	defaultTimeout     time.Duration
	defaultGracePeriod time.Duration
}

// NewExecutor builds an Executor, applying the config defaults.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &ExecRunner{}
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewGuard(logger)
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	timeout := cfg.DefaultTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	gracePeriod := cfg.DefaultGracePeriod
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	return &Executor{
		runner:             runner,
		guard:              guard,
		artifacts:          cfg.Artifacts,
		runLog:             cfg.RunLog,
		events:             cfg.Events,
		clock:              clk,
		logger:             logger,
		defaultTimeout:     timeout,
		defaultGracePeriod: gracePeriod,
	}
}

// Execute runs the graph to completion and returns the report. It
// never returns an error: command failures, timeouts, and operator
// aborts are outcomes, not errors.
//
// Cancelling ctx requests an abort. Running commands finish first;
// the abort is observed at command and stage boundaries. Hooks,
// resource releases, and cleanup always run, under a context
// detached from the abort signal.
func (e *Executor) Execute(ctx context.Context, graph *Graph, run *RunContext) *Report {
	startedAt := e.clock.Now()
	e.runLog.Start(run.RunID(), graph.Name, graph.StageCount, startedAt)
	e.logger.Info("run started",
		"run_id", run.RunID(), "pipeline", graph.Name, "stages", graph.StageCount)

	rootReport, rootOutcome := e.executeNode(ctx, graph.Root, run)

	hookCtx := context.WithoutCancel(ctx)
	if graph.Hooks != nil {
		e.runHooks(hookCtx, "hooks.always", graph.Hooks.Always, run)
		key, commands := graphHookForOutcome(graph.Hooks, rootOutcome)
		e.runHooks(hookCtx, "hooks."+key, commands, run)
		// Cleanup is unconditional: it runs for every outcome, even
		// when the hooks above just failed.
		e.runHooks(hookCtx, "hooks.cleanup", graph.Hooks.Cleanup, run)
	}

	// Global teardown: everything the stages did not release
	// individually, reverse registration order.
	e.guard.ReleaseAll(hookCtx)

	// A failed hook degrades the run to Unstable. It never rescues a
	// Failure and never worsens one.
	final := rootOutcome
	if len(run.Annotations()) > 0 {
		final = Worst(final, Unstable)
	}
	run.FinalizeOutcome(final)

	duration := e.clock.Since(startedAt)
	e.runLog.Complete(final, duration)
	e.logger.Info("run complete",
		"run_id", run.RunID(), "outcome", final.String(), "duration", duration)

	return &Report{
		RunID:       run.RunID(),
		Pipeline:    graph.Name,
		Branch:      run.Branch(),
		Outcome:     final,
		StartedAt:   startedAt.UTC().Format(time.RFC3339),
		DurationMS:  duration.Milliseconds(),
		Stages:      rootReport.Children,
		Annotations: run.Annotations(),
		Artifacts:   run.Artifacts(),
	}
}

// executeNode runs one reached node: gate, resources, body or
// children, hooks, release. Nodes that are never reached go through
// notRunReport instead.
func (e *Executor) executeNode(ctx context.Context, node *Node, run *RunContext) (*NodeReport, Outcome) {
	started := e.clock.Now()
	isRoot := node.Path == ""
	if !isRoot && e.events != nil {
		e.events.StageStarted(node.Path, node.Kind)
	}

	report := &NodeReport{Name: node.Name, Path: node.Path, Kind: node.Kind.String()}
	var outcome Outcome
	var detail string
	var handles []ResourceHandle

	aborted := ctx.Err() != nil
	gateOpen, gateDetail := true, ""
	if !aborted && node.Gate != nil {
		open, err := node.Gate.Evaluate(run.Branch(), run.Environment())
		switch {
		case err != nil:
			// A referenced value is absent at runtime despite the
			// construction-time checks (a trigger without expected
			// metadata). The gate counts as false: skip with a
			// warning, never fail the run over it.
			e.logger.Warn("gate evaluation failed, treating as false",
				"stage", node.Path, "error", err)
			gateOpen, gateDetail = false, "gate error: "+err.Error()
		case !open:
			gateOpen, gateDetail = false, "gate not satisfied: "+node.Gate.String()
		}
	}

	switch {
	case aborted:
		outcome, detail = Aborted, "aborted by operator"
		for _, child := range node.Children {
			report.Children = append(report.Children, notRunReport(child))
		}
	case !gateOpen:
		// A skipped node executes nothing and registers nothing; its
		// Skipped hooks still fire below.
		outcome, detail = Skipped, gateDetail
		for _, child := range node.Children {
			report.Children = append(report.Children, notRunReport(child))
		}
	default:
		for _, resource := range node.Resources {
			handles = append(handles, e.registerResource(node, resource, run))
		}
		switch node.Kind {
		case KindLeaf:
			outcome, detail = e.executeLeaf(ctx, node, run, report)
		case KindSequential:
			outcome, detail = e.executeSequential(ctx, node, run, report)
		case KindParallel:
			outcome, detail = e.executeParallel(ctx, node, run, report)
		}
	}

	// Hooks and releases run detached from the abort signal: an
	// aborted stage still gets its teardown. Hook failures never
	// reopen the outcome chosen above.
	hookCtx := context.WithoutCancel(ctx)
	if node.Hooks != nil {
		key, commands := stageHookForOutcome(node.Hooks, outcome)
		e.runHooks(hookCtx, node.Path+".hooks."+key, commands, run)
		e.runHooks(hookCtx, node.Path+".hooks.always", node.Hooks.Always, run)
	}
	for i := len(handles) - 1; i >= 0; i-- {
		e.guard.Release(hookCtx, handles[i])
	}

	duration := e.clock.Since(started)
	report.Status = outcome.String()
	report.DurationMS = duration.Milliseconds()
	report.Detail = detail

	if !isRoot {
		e.runLog.Stage(node.Path, outcome, duration, detail)
		if e.events != nil {
			e.events.StageFinished(node.Path, outcome, duration, detail)
		}
		e.logger.Info("stage finished",
			"stage", node.Path, "outcome", outcome.String(), "duration", duration)
	}
	return report, outcome
}

// executeLeaf runs the body commands in order, stopping at the first
// failure that is not allowed, then captures declared artifacts.
func (e *Executor) executeLeaf(ctx context.Context, node *Node, run *RunContext, report *NodeReport) (Outcome, string) {
	outcome := Success
	detail := ""
	for i, command := range node.Body {
		if ctx.Err() != nil {
			outcome = Aborted
			detail = "aborted by operator"
			break
		}
		display := commandDisplay(command)
		result, err := e.runCommand(ctx, command, run)
		if err != nil {
			// Expansion or duration-parse error: the command never
			// ran. Validation catches these before execution; fail
			// loud if a definition slipped through unvalidated.
			report.Commands = append(report.Commands, CommandReport{
				Command:  display,
				ExitCode: ExitStartFailure,
				Error:    err.Error(),
			})
			outcome = Failure
			detail = fmt.Sprintf("command %d/%d: %v", i+1, len(node.Body), err)
			break
		}
		report.Commands = append(report.Commands, commandReport(display, result, command.AllowFailure))
		if result.ExitCode != 0 {
			if command.AllowFailure {
				// The true exit code stays in the report; the stage
				// degrades to Unstable and the body continues.
				outcome = Worst(outcome, Unstable)
				continue
			}
			outcome = Failure
			detail = fmt.Sprintf("command %d/%d: %s", i+1, len(node.Body), commandFailureDetail(result))
			break
		}
	}

	if outcome == Success || outcome == Unstable {
		// Artifact capture runs detached from the abort signal so a
		// late abort cannot lose a finished stage's outputs.
		if captureDetail := e.captureArtifacts(context.WithoutCancel(ctx), node, run); captureDetail != "" {
			outcome = Failure
			detail = captureDetail
		}
	}
	return outcome, detail
}

// executeSequential runs children in declared order, stopping at the
// first child whose outcome is fatal. Unstable children do not stop
// the sequence.
func (e *Executor) executeSequential(ctx context.Context, node *Node, run *RunContext, report *NodeReport) (Outcome, string) {
	outcome := Success
	detail := ""
	for i, child := range node.Children {
		if ctx.Err() != nil {
			outcome = Worst(outcome, Aborted)
			detail = "aborted by operator"
			for _, rest := range node.Children[i:] {
				report.Children = append(report.Children, notRunReport(rest))
			}
			break
		}
		childReport, childOutcome := e.executeNode(ctx, child, run)
		report.Children = append(report.Children, childReport)
		outcome = Worst(outcome, childOutcome)
		if childOutcome.Fatal() {
			for _, rest := range node.Children[i+1:] {
				report.Children = append(report.Children, notRunReport(rest))
			}
			break
		}
	}
	return outcome, detail
}

// executeParallel launches all children concurrently and joins. No
// child is cancelled because a sibling failed: every child's own
// hooks and releases must run, and the worst outcome needs all
// results.
func (e *Executor) executeParallel(ctx context.Context, node *Node, run *RunContext, report *NodeReport) (Outcome, string) {
	reports := make([]*NodeReport, len(node.Children))
	outcomes := make([]Outcome, len(node.Children))
	var group sync.WaitGroup
	for i, child := range node.Children {
		group.Add(1)
		go func() {
			defer group.Done()
			reports[i], outcomes[i] = e.executeNode(ctx, child, run)
		}()
	}
	group.Wait()

	outcome := Success
	for _, childOutcome := range outcomes {
		outcome = Worst(outcome, childOutcome)
	}
	report.Children = reports
	return outcome, ""
}

// runCommand expands one pipeline command against the run
// environment and executes it, including its check. The returned
// error covers expansion and configuration problems only; command
// failures are encoded in the result.
func (e *Executor) runCommand(ctx context.Context, command pipeline.Command, run *RunContext) (CommandResult, error) {
	expanded, err := pipeline.ExpandCommand(command, run.Environment())
	if err != nil {
		return CommandResult{}, err
	}

	timeout := e.defaultTimeout
	if expanded.Timeout != "" {
		parsed, parseErr := time.ParseDuration(expanded.Timeout)
		if parseErr != nil {
			return CommandResult{}, fmt.Errorf("invalid timeout %q: %w", expanded.Timeout, parseErr)
		}
		timeout = parsed
	}
	gracePeriod := e.defaultGracePeriod
	if expanded.GracePeriod != "" {
		parsed, parseErr := time.ParseDuration(expanded.GracePeriod)
		if parseErr != nil {
			return CommandResult{}, fmt.Errorf("invalid grace_period %q: %w", expanded.GracePeriod, parseErr)
		}
		gracePeriod = parsed
	}

	env := commandEnv(expanded, run)
	result := e.runner.Run(ctx, CommandSpec{
		Shell:       expanded.Run,
		Argv:        expanded.Argv,
		WorkingDir:  expanded.WorkingDir,
		Env:         env,
		Timeout:     timeout,
		GracePeriod: gracePeriod,
	})
	if result.ExitCode != 0 || expanded.Check == "" {
		return result, nil
	}

	// The check is a quick verification command: same timeout
	// budget, immediate SIGKILL on expiry.
	checkResult := e.runner.Run(ctx, CommandSpec{
		Shell:      expanded.Check,
		WorkingDir: expanded.WorkingDir,
		Env:        env,
		Timeout:    timeout,
	})
	if checkResult.ExitCode == 0 {
		result.Duration += checkResult.Duration
		return result, nil
	}
	reason := checkResult.Err
	if reason == "" {
		reason = fmt.Sprintf("exit code %d", checkResult.ExitCode)
	}
	checkResult.Err = "check: " + reason
	checkResult.Duration += result.Duration
	return checkResult, nil
}

// registerResource hands one declared resource to the guard, wiring
// its release command through the runner.
func (e *Executor) registerResource(node *Node, resource pipeline.Resource, run *RunContext) ResourceHandle {
	release := *resource.Release
	return e.guard.Register(resource.ID, resource.Kind, func(ctx context.Context) error {
		result, err := e.runCommand(ctx, release, run)
		if err != nil {
			return err
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("%s", commandFailureDetail(result))
		}
		return nil
	})
}

// runHooks executes one hook list. Hook failures never escalate the
// outcome that selected them; they surface as run annotations, which
// make the run's effective outcome at least Unstable.
func (e *Executor) runHooks(ctx context.Context, label string, commands []pipeline.Command, run *RunContext) {
	for i, command := range commands {
		ref := fmt.Sprintf("%s[%d]", label, i)
		result, err := e.runCommand(ctx, command, run)
		if err != nil {
			e.recordHookFailure(run, ref, err.Error())
			continue
		}
		if result.ExitCode != 0 {
			e.recordHookFailure(run, ref, commandFailureDetail(result))
		}
	}
}

func (e *Executor) recordHookFailure(run *RunContext, stage, message string) {
	run.Annotate(stage, message)
	e.runLog.Annotation(stage, message)
	e.logger.Warn("hook failed", "hook", stage, "error", message)
}

// captureArtifacts stores the leaf's declared artifacts. A declared
// artifact that cannot be captured fails the stage: the stage
// claimed it would produce the file.
func (e *Executor) captureArtifacts(ctx context.Context, node *Node, run *RunContext) string {
	for _, declaration := range node.Artifacts {
		if err := e.captureArtifact(ctx, node, declaration, run); err != nil {
			return fmt.Sprintf("capturing artifact %q: %v", declaration.Name, err)
		}
	}
	return ""
}

func (e *Executor) captureArtifact(ctx context.Context, node *Node, declaration pipeline.Artifact, run *RunContext) error {
	if e.artifacts == nil {
		return fmt.Errorf("no artifact store configured")
	}
	path, err := pipeline.Expand(declaration.Path, run.Environment())
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	entry, err := e.artifacts.Put(ctx, artifact.Entry{
		RunID:    run.RunID(),
		Name:     declaration.Name,
		NodePath: node.Path,
	}, file)
	if err != nil {
		return err
	}

	record := ArtifactRecord{
		Name:  entry.Name,
		Ref:   entry.Ref,
		Size:  entry.Size,
		Stage: node.Path,
	}
	run.AddArtifact(record)
	e.runLog.Artifact(record.Name, record.Ref, record.Size, record.Stage)
	e.logger.Info("artifact captured",
		"name", record.Name, "ref", record.Ref, "size", record.Size, "stage", record.Stage)
	return nil
}

// commandEnv merges the run environment under the command's overlay;
// the overlay wins on collision. Overlay values were already
// expanded by ExpandCommand.
func commandEnv(command pipeline.Command, run *RunContext) map[string]string {
	env := maps.Clone(run.Environment())
	maps.Copy(env, command.Env)
	return env
}

// commandDisplay renders a command for reports and progress without
// variable expansion, so secret values never appear in output.
func commandDisplay(command pipeline.Command) string {
	if len(command.Argv) > 0 {
		return strings.Join(command.Argv, " ")
	}
	return command.Run
}

// commandFailureDetail is the human-readable reason a command's
// result is a failure.
func commandFailureDetail(result CommandResult) string {
	if result.Err != "" {
		return result.Err
	}
	return fmt.Sprintf("exit code %d", result.ExitCode)
}

// commandReport converts a runner result into its report entry.
// Failed commands carry their captured output; successful ones omit
// it.
func commandReport(display string, result CommandResult, allowFailure bool) CommandReport {
	report := CommandReport{
		Command:        display,
		ExitCode:       result.ExitCode,
		DurationMS:     result.Duration.Milliseconds(),
		TimedOut:       result.TimedOut,
		AllowedFailure: allowFailure && result.ExitCode != 0,
		Error:          result.Err,
	}
	if result.ExitCode != 0 {
		report.Stdout = trimOutput(result.Stdout)
		report.Stderr = trimOutput(result.Stderr)
	}
	return report
}

func stageHookForOutcome(hooks *pipeline.StageHooks, outcome Outcome) (string, []pipeline.Command) {
	switch outcome {
	case Success:
		return "success", hooks.Success
	case Skipped:
		return "skipped", hooks.Skipped
	case Unstable:
		return "unstable", hooks.Unstable
	case Failure:
		return "failure", hooks.Failure
	case Aborted:
		return "aborted", hooks.Aborted
	default:
		return outcome.String(), nil
	}
}

func graphHookForOutcome(hooks *pipeline.GraphHooks, outcome Outcome) (string, []pipeline.Command) {
	switch outcome {
	case Unstable:
		return "unstable", hooks.Unstable
	case Failure:
		return "failure", hooks.Failure
	case Aborted:
		return "aborted", hooks.Aborted
	default:
		// The root cannot be Skipped; anything non-fatal that is not
		// Unstable lands here.
		return "success", hooks.Success
	}
}
