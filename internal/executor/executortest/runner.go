// Package executortest provides a scripted executor.Runner for tests.
package executortest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/breeze-rmm/adm/internal/executor"
)

// Call records one invocation.
type Call struct {
	Binary string
	Args   []string
	As     executor.Principal
}

// Line renders the call as "<binary base name> <args...>".
func (c Call) Line() string {
	return strings.TrimSpace(filepath.Base(c.Binary) + " " + strings.Join(c.Args, " "))
}

// Response is the scripted result of a call.
type Response struct {
	Exit   int
	Stdout string
	Stderr string
	Err    error
}

// Runner answers calls from a table keyed by the joined argument list,
// for example "print system" or "bootout gui/501/com.example.agent".
// Unknown calls get Default.
type Runner struct {
	mu        sync.Mutex
	responses map[string][]Response
	calls     []Call

	Default Response
}

// New returns an empty Runner whose default response is exit 0.
func New() *Runner {
	return &Runner{responses: make(map[string][]Response)}
}

// On queues resp for calls whose joined args equal key. When several
// responses are queued they are consumed in order; the last one repeats.
func (r *Runner) On(key string, resp Response) *Runner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key] = append(r.responses[key], resp)
	return r
}

// Run implements executor.Runner.
func (r *Runner) Run(_ context.Context, binary string, args []string, as executor.Principal) (executor.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Binary: binary, Args: append([]string(nil), args...), As: as})

	key := strings.Join(args, " ")
	resp := r.Default
	if queued := r.responses[key]; len(queued) > 0 {
		resp = queued[0]
		if len(queued) > 1 {
			r.responses[key] = queued[1:]
		}
	}
	if resp.Err != nil {
		return executor.Result{ExitCode: -1}, resp.Err
	}
	return executor.Result{ExitCode: resp.Exit, Stdout: resp.Stdout, Stderr: resp.Stderr}, nil
}

// Calls returns a copy of the recorded calls.
func (r *Runner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Lines returns the joined args of every recorded call, in order.
func (r *Runner) Lines() []string {
	calls := r.Calls()
	lines := make([]string, len(calls))
	for i, c := range calls {
		lines[i] = strings.Join(c.Args, " ")
	}
	return lines
}

// Count returns how many calls had exactly the joined args key.
func (r *Runner) Count(key string) int {
	n := 0
	for _, line := range r.Lines() {
		if line == key {
			n++
		}
	}
	return n
}
