package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Result is the outcome of one command invocation
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Success reports whether the command exited zero
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes external commands. A nonzero exit is reported through
// Result.ExitCode; the error is reserved for commands that could not run.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands on the host with os/exec
type ExecRunner struct {
	// Timeout bounds each command (default: 60 seconds, 0 disables)
	Timeout time.Duration

	// Env is appended to the inherited environment
	Env []string
}

// NewExecRunner creates a new host command runner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		Timeout: 60 * time.Second,
	}
}

// WithTimeout sets the per-command timeout
func (e *ExecRunner) WithTimeout(timeout time.Duration) *ExecRunner {
	e.Timeout = timeout
	return e
}

// Run executes the command and captures its output
func (e *ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	start := time.Now()

	if name == "" {
		return Result{ExitCode: -1}, errors.New("no command specified")
	}

	execCtx := ctx
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(execCtx, name, args...)
	if len(e.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if execCtx.Err() != nil {
			result.ExitCode = -1
			return result, fmt.Errorf("%s: %w", name, execCtx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		return result, fmt.Errorf("failed to run %s: %w", name, err)
	}

	return result, nil
}

// Format renders a command line for logs and error messages
func Format(name string, args ...string) string {
	if len(args) == 0 {
		return name
	}
	return name + " " + strings.Join(args, " ")
}
