package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const waitDelay = 5 * time.Second

// RunArgs describes one command invocation
type RunArgs struct {
	Cmd  string
	Args []string
	// Cwd is the working directory; empty inherits the current one
	Cwd string
	// Env is appended to the current environment
	Env []string
	// Output, when set, receives stdout and stderr as they are produced
	Output io.Writer
}

// RunResult is the result of running a command
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError is returned when a command exits with a nonzero status
type ExitError struct {
	Cmd      string
	ExitCode int

	stderr string
	err    *exec.ExitError
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Cmd, e.ExitCode)
	if tail := strings.TrimSpace(e.stderr); tail != "" {
		msg += ": " + Tail(tail, 200)
	}
	return msg
}

func (e *ExitError) Unwrap() error {
	return e.err
}

// Stderr returns the captured standard error of the failed command
func (e *ExitError) Stderr() string {
	return e.stderr
}

// CommandRunner executes external commands
type CommandRunner interface {
	Run(ctx context.Context, args RunArgs) (RunResult, error)
}

// NewCommandRunner creates the default CommandRunner backed by os/exec
func NewCommandRunner(logger *slog.Logger) CommandRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &commandRunner{logger: logger}
}

type commandRunner struct {
	logger *slog.Logger
}

// Run runs the command and waits for it. A nonzero exit is reported as *ExitError
// alongside a populated RunResult; failing to start the command is a plain error.
// Cancelling ctx kills the process.
func (r *commandRunner) Run(ctx context.Context, args RunArgs) (RunResult, error) {
	if args.Cmd == "" {
		return RunResult{ExitCode: -1}, errors.New("command is required")
	}

	cmd := exec.CommandContext(ctx, args.Cmd, args.Args...)
	cmd.Dir = args.Cwd
	// grandchildren may keep the output pipes open after the trainer is killed
	cmd.WaitDelay = waitDelay
	if len(args.Env) > 0 {
		cmd.Env = append(os.Environ(), args.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if args.Output != nil {
		out := &lockedWriter{w: args.Output}
		cmd.Stdout = io.MultiWriter(&stdout, out)
		cmd.Stderr = io.MultiWriter(&stderr, out)
	}

	r.logger.Debug("run exec", "cmd", args.Cmd, "args", strings.Join(args.Args, " "), "cwd", args.Cwd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RunResult{ExitCode: -1}, fmt.Errorf("start %s: %w", args.Cmd, err)
	}
	err := cmd.Wait()

	result := RunResult{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	r.logger.Debug("exec finished", "cmd", args.Cmd, "exit_code", result.ExitCode, "duration_ms", result.Duration.Milliseconds())

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return result, &ExitError{
			Cmd:      args.Cmd,
			ExitCode: result.ExitCode,
			stderr:   result.Stderr,
			err:      exitErr,
		}
	}
	if err != nil {
		return result, fmt.Errorf("wait %s: %w", args.Cmd, err)
	}
	return result, nil
}

// lockedWriter serializes writes from the stdout and stderr copy goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// Tail returns at most limit bytes from the end of s without splitting a UTF-8 sequence
func Tail(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	start := len(s) - limit
	for start < len(s) && !isRuneStart(s[start]) {
		start++
	}
	return s[start:]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
