// Package extern integrates the external CLI automation tool: a generic
// subprocess runner with hard wall-clock termination, and the adapter that
// drives the tool's open/run/close session protocol.
package extern

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// TimeoutError reports a subprocess that was forcibly killed because it
// exceeded its wall-clock budget.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// ExitError reports a subprocess that exited non-zero. Detail is trimmed
// stderr, falling back to trimmed stdout, falling back to the exit code.
type ExitError struct {
	ExitCode int
	Detail   string
}

func (e *ExitError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("exit code %d", e.ExitCode)
}

// CommandOutput is the captured output of one subprocess run.
type CommandOutput struct {
	Stdout string
	Stderr string
}

// Combined returns stdout and stderr joined for marker scanning.
func (o CommandOutput) Combined() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	return o.Stdout + "\n" + o.Stderr
}

// Runner executes commands in fresh subprocesses under a hard timeout.
type Runner struct{}

// Run spawns the command and collects stdout/stderr incrementally. When the
// context deadline fires the process is killed (non-graceful) and the error
// is a *TimeoutError carrying the budget. A non-zero exit that was not a
// timeout yields a *ExitError. Output captured before failure is returned in
// both cases so callers can include excerpts in diagnostics.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (CommandOutput, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	// Run the command in its own process group so the hard kill reaches the
	// whole pipeline, not just the shell. Grandchildren holding the output
	// pipes open would otherwise stall collection past the deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return CommandOutput{}, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return CommandOutput{}, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return CommandOutput{}, fmt.Errorf("failed to start command: %w", err)
	}

	var wg sync.WaitGroup
	var stdoutBuilder, stderrBuilder strings.Builder
	var outputMu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		collectOutput(stdoutPipe, &stdoutBuilder, &outputMu)
	}()
	go func() {
		defer wg.Done()
		collectOutput(stderrPipe, &stderrBuilder, &outputMu)
	}()

	// Wait closes the pipes, so both collectors must drain first. The group
	// kill on deadline guarantees the pipes reach EOF.
	wg.Wait()
	execErr := cmd.Wait()

	outputMu.Lock()
	out := CommandOutput{
		Stdout: stdoutBuilder.String(),
		Stderr: stderrBuilder.String(),
	}
	outputMu.Unlock()

	if runCtx.Err() == context.DeadlineExceeded {
		return out, &TimeoutError{Timeout: timeout}
	}
	if execErr != nil {
		exitCode := -1
		if exitErr, ok := execErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		detail := strings.TrimSpace(out.Stderr)
		if detail == "" {
			detail = strings.TrimSpace(out.Stdout)
		}
		return out, &ExitError{ExitCode: exitCode, Detail: detail}
	}
	return out, nil
}

// collectOutput copies the pipe raw rather than line-scanning it: a scanner
// caps line length and would silently drop everything after an oversized
// line, which marker classification and error excerpts depend on.
func collectOutput(pipe io.ReadCloser, builder *strings.Builder, mu *sync.Mutex) {
	buf := make([]byte, 32*1024)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			mu.Lock()
			builder.Write(buf[:n])
			mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}
