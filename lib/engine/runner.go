// Copyright 2026 The Gantry Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Reserved exit codes. Real commands can also produce these values,
// but the runner only synthesizes them for the failure modes named
// here; the CommandResult flags disambiguate.
const (
	// ExitTimeout is reported when the command's timeout elapsed and
	// the runner terminated the process group. Matches the exit code
	// of timeout(1).
	ExitTimeout = 124

	// ExitStartFailure is reported when the process could not be
	// started for a reason other than the program being missing
	// (permission denied, bad working directory, context already
	// cancelled).
	ExitStartFailure = 126

	// ExitNotFound is reported when the program was not found on
	// PATH. Matches the shell convention for command-not-found.
	ExitNotFound = 127
)

// maxCapturedOutput caps the stdout and stderr captures, each. 64 KB
// holds any plausible diagnostic tail; commands producing more than
// that should write a file and declare it as an artifact.
const maxCapturedOutput = 64 * 1024

// pipeWaitDelay bounds how long the runner waits for the command's
// output pipes to close after the process itself has exited. A
// command that forks a long-lived child sharing its stdout would
// otherwise block the runner until that child exits.
const pipeWaitDelay = 5 * time.Second

// defaultShell interprets "run" shell strings when the runner is not
// configured with one.
const defaultShell = "/bin/sh"

// CommandSpec describes one external command invocation. Exactly one
// of Shell and Argv is set; the executor guarantees this for specs
// compiled from a validated pipeline.
type CommandSpec struct {
	// Shell is a shell command string, executed via the runner's
	// shell with -c. Multi-line strings are fine.
	Shell string

	// Argv is an explicit argument vector: Argv[0] is the program,
	// resolved via PATH unless it contains a path separator. No
	// shell is involved.
	Argv []string

	// WorkingDir is the working directory for the command. Empty
	// means the runner process's working directory.
	WorkingDir string

	// Env is the environment overlay, applied on top of the runner
	// process's inherited environment. Overlay wins on collision.
	Env map[string]string

	// Timeout bounds execution. When it elapses the runner
	// terminates the process group and reports ExitTimeout. Zero
	// means no timeout.
	Timeout time.Duration

	// GracePeriod is the spacing between SIGTERM and SIGKILL when
	// the timeout terminates the command. Zero means immediate
	// SIGKILL.
	GracePeriod time.Duration
}

// Display returns the command in human-readable form for progress
// output and reports.
func (s CommandSpec) Display() string {
	if len(s.Argv) > 0 {
		return strings.Join(s.Argv, " ")
	}
	return s.Shell
}

// CommandResult is the immutable outcome of one command invocation.
// All failure is encoded here; the runner never returns an error.
type CommandResult struct {
	// ExitCode is the subprocess exit status, or one of the reserved
	// sentinel codes.
	ExitCode int

	// Stdout and Stderr hold the captured output, each capped at
	// maxCapturedOutput bytes. On timeout they hold whatever the
	// command produced before termination.
	Stdout []byte
	Stderr []byte

	// StdoutTruncated and StderrTruncated report that the command
	// produced more output than the capture kept.
	StdoutTruncated bool
	StderrTruncated bool

	// Duration is wall-clock time from spawn to reaped.
	Duration time.Duration

	// TimedOut reports that the timeout, not the command itself,
	// ended execution.
	TimedOut bool

	// Err describes a spawn or wait failure in human-readable form.
	// Empty for commands that ran to an ordinary exit.
	Err string
}

// Runner executes one external command. Implementations never return
// an error: timeouts, missing programs, and spawn failures are all
// encoded in the result's exit code and flags.
//
// The context is observed only before the process starts. Once a
// command is running, cancelling the context does not kill it — an
// operator abort takes effect at command boundaries, and only the
// command's own timeout terminates it early.
type Runner interface {
	Run(ctx context.Context, spec CommandSpec) CommandResult
}

// ExecRunner runs commands as real subprocesses. The zero value is
// usable: shell commands run via /bin/sh and output is captured
// silently.
//
// Each command runs in its own process group so that termination
// signals reach the shell and everything it spawned. Without Setpgid
// only the immediate child receives the signal; its children survive
// and hold the output pipes open.
type ExecRunner struct {
	// Shell is the interpreter for CommandSpec.Shell strings,
	// invoked as <shell> -c <string>. Empty means /bin/sh.
	Shell string

	// Echo, when set, streams command output to the runner process's
	// stdout and stderr in addition to capturing it. Used by the CLI
	// for live progress; left off when stdout must stay parseable.
	Echo bool
}

// Run executes the command and blocks until it exits, its timeout
// fires, or (for a command that could not start) immediately.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) CommandResult {
	if err := ctx.Err(); err != nil {
		return CommandResult{
			ExitCode: ExitStartFailure,
			Err:      "not started: " + err.Error(),
		}
	}

	// The subprocess context carries only the timeout. It is
	// detached from the caller's context so that an operator abort
	// does not kill a command mid-flight; the executor observes the
	// abort once the command returns.
	runCtx := context.WithoutCancel(ctx)
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, spec.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if len(spec.Argv) > 0 {
		cmd = exec.CommandContext(runCtx, spec.Argv[0], spec.Argv[1:]...)
	} else {
		shell := r.Shell
		if shell == "" {
			shell = defaultShell
		}
		cmd = exec.CommandContext(runCtx, shell, "-c", spec.Shell)
	}
	cmd.Dir = spec.WorkingDir

	stdout := &capWriter{limit: maxCapturedOutput}
	stderr := &capWriter{limit: maxCapturedOutput}
	if r.Echo {
		cmd.Stdout = io.MultiWriter(stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(stderr, os.Stderr)
	} else {
		cmd.Stdout = stdout
		cmd.Stderr = stderr
	}

	// Own process group so signals reach the whole command tree
	// (negative PID targets every process in the group).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if spec.GracePeriod > 0 {
		// Graceful: SIGTERM the process group first, giving the
		// command a chance to flush and release. A background
		// goroutine escalates to SIGKILL after the grace period if
		// the group has not exited. ESRCH from an already-dead
		// group is harmless.
		gracePeriod := spec.GracePeriod
		cmd.Cancel = func() error {
			processGroup := -cmd.Process.Pid
			if err := syscall.Kill(processGroup, syscall.SIGTERM); err != nil {
				return syscall.Kill(processGroup, syscall.SIGKILL)
			}
			go func() {
				time.Sleep(gracePeriod)
				_ = syscall.Kill(processGroup, syscall.SIGKILL)
			}()
			return nil
		}
	} else {
		// Immediate: SIGKILL the entire process group.
		cmd.Cancel = func() error {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
	}

	// Bound the post-exit wait for output pipes. A child that
	// outlives the command (backgrounded, not reparented out of the
	// pipe) must not hold the pipeline hostage.
	cmd.WaitDelay = spec.GracePeriod + pipeWaitDelay

	// Overlay wins on collision: later entries in cmd.Env shadow
	// earlier ones.
	if len(spec.Env) > 0 {
		cmd.Env = os.Environ()
		for name, value := range spec.Env {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	started := time.Now()
	err := cmd.Run()
	result := CommandResult{
		Stdout:          stdout.bytes(),
		Stderr:          stderr.bytes(),
		StdoutTruncated: stdout.truncated(),
		StderrTruncated: stderr.truncated(),
		Duration:        time.Since(started),
	}

	if runCtx.Err() != nil {
		// The deadline is the only way this context ends; the
		// captures hold whatever the command managed to produce.
		result.ExitCode = ExitTimeout
		result.TimedOut = true
		result.Err = fmt.Sprintf("timeout after %s", spec.Timeout)
		return result
	}

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(err, exec.ErrWaitDelay):
		// The process exited but something held its output pipes
		// open past the wait delay. The exit status is valid; the
		// capture is merely incomplete.
		result.ExitCode = cmd.ProcessState.ExitCode()
	default:
		var exitError *exec.ExitError
		switch {
		case errors.As(err, &exitError):
			result.ExitCode = exitError.ExitCode()
		case errors.Is(err, exec.ErrNotFound):
			result.ExitCode = ExitNotFound
			result.Err = err.Error()
		default:
			result.ExitCode = ExitStartFailure
			result.Err = err.Error()
		}
	}
	return result
}

// capWriter keeps the first limit bytes written and counts the rest.
// It never returns an error: a chatty command must not fail because
// its output outgrew the capture.
type capWriter struct {
	buf   bytes.Buffer
	limit int
	total int64
}

func (w *capWriter) Write(p []byte) (int, error) {
	w.total += int64(len(p))
	if remaining := w.limit - w.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}

func (w *capWriter) bytes() []byte { return w.buf.Bytes() }

func (w *capWriter) truncated() bool { return w.total > int64(w.buf.Len()) }
