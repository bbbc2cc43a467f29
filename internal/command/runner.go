package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrNotStarted means the tool could not be executed at all.
	ErrNotStarted = errors.New("command could not be started")
	// ErrTimeout means the tool was killed after exceeding its time limit.
	ErrTimeout = errors.New("command timed out")
)

// Command describes one blocking subprocess invocation.
type Command struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result is what a finished subprocess left behind. Output holds the combined
// stdout and stderr split into lines.
type Result struct {
	ExitCode int
	Output   []string
	Duration time.Duration
}

// Success reports a zero exit status.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Text joins the captured output.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Output, "\n")
}

// Runner executes external tools. A non-zero exit is reported through
// Result.ExitCode; an error is returned only when the tool did not run to
// completion (ErrNotStarted or ErrTimeout).
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger zerolog.Logger
}

func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.With().Str("component", "command").Logger()}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	out, err := cmd.CombinedOutput()
	res := &Result{Output: splitLines(string(out)), Duration: time.Since(start)}

	r.logger.Debug().
		Str("command", c.String()).
		Dur("duration", res.Duration).
		Err(err).
		Msg("subprocess finished")

	if ctx.Err() == context.DeadlineExceeded {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w after %s", c.Name, ErrTimeout, c.Timeout)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w: %v", c.Name, ErrNotStarted, err)
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	return lines
}
