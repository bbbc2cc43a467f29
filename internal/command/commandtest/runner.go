// Package commandtest provides a scripted command.Runner for tests.
package commandtest

import (
	"context"
	"strings"
	"sync"

	"github.com/edvin/proxyctl/internal/command"
)

// Runner records every command and answers with Handler. With no Handler
// every command succeeds with empty output.
type Runner struct {
	Handler func(cmd command.Command) (*command.Result, error)

	mu    sync.Mutex
	calls []command.Command
}

func (r *Runner) Run(_ context.Context, cmd command.Command) (*command.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, cmd)
	r.mu.Unlock()

	if r.Handler == nil {
		return &command.Result{}, nil
	}
	return r.Handler(cmd)
}

// Calls returns the recorded commands in order.
func (r *Runner) Calls() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]command.Command, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many recorded commands contain every given argument.
func (r *Runner) Count(args ...string) int {
	n := 0
	for _, c := range r.Calls() {
		if hasAll(c, args) {
			n++
		}
	}
	return n
}

func hasAll(c command.Command, args []string) bool {
	joined := " " + c.String() + " "
	for _, a := range args {
		if !strings.Contains(joined, " "+a+" ") {
			return false
		}
	}
	return true
}

// Output builds a Result with the given exit code and lines.
func Output(exit int, lines ...string) *command.Result {
	return &command.Result{ExitCode: exit, Output: lines}
}
