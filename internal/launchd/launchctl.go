package launchd

import (
	"context"
	"strconv"

	"github.com/breeze-rmm/adm/internal/executor"
	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("launchd")

// DefaultBinary is the launchctl location on macOS.
const DefaultBinary = "/bin/launchctl"

// Exit codes launchctl uses for "no such process" (ESRCH) and the
// bootout/disable flavour of the same condition.
const (
	ExitNoSuchProcess   = 3
	ExitServiceNotFound = 125
)

// lenientExitCodes are accepted on top of 0 when acting on targets taken
// from a live inventory: 64 is a usage reply, 113 means the service is
// already in the requested state or was never loaded in that domain.
var lenientExitCodes = map[int]bool{64: true, 113: true}

// SignalKill is the signal number sent by Kill.
const SignalKill = 9

// Client issues launchctl subcommands through an executor.Runner.
type Client struct {
	runner  executor.Runner
	binary  string
	lenient bool
}

// NewClient returns a strict client. An empty binary selects DefaultBinary.
func NewClient(runner executor.Runner, binary string) *Client {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Client{runner: runner, binary: binary}
}

// Lenient returns a copy of c that also treats exit codes 64 and 113 as
// success.
func (c *Client) Lenient() *Client {
	cp := *c
	cp.lenient = true
	return &cp
}

// Runner exposes the underlying command runner.
func (c *Client) Runner() executor.Runner { return c.runner }

// Print returns the `launchctl print <domain>` output. Any non-zero exit is
// a KindLaunchd error.
func (c *Client) Print(ctx context.Context, d Domain) (string, error) {
	res, err := c.runner.Run(ctx, c.binary, []string{"print", d.String()}, executor.CurrentUser())
	if err != nil {
		return "", &Error{Kind: KindIO, Op: "print", Target: d.String(), Err: err}
	}
	if res.ExitCode != 0 {
		return "", &Error{Kind: KindLaunchd, Op: "print", Target: d.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res.Stdout, nil
}

// Bootout unloads t from its domain.
func (c *Client) Bootout(ctx context.Context, t Target) error {
	return c.act(ctx, "bootout", t, t.String())
}

// Disable marks t as disabled so it is not loaded on future triggers.
func (c *Client) Disable(ctx context.Context, t Target) error {
	return c.act(ctx, "disable", t, t.String())
}

// Enable clears the disabled mark of t.
func (c *Client) Enable(ctx context.Context, t Target) error {
	return c.act(ctx, "enable", t, t.String())
}

// Bootstrap loads the descriptor at path into the domain of t.
func (c *Client) Bootstrap(ctx context.Context, t Target, path string) error {
	return c.act(ctx, "bootstrap", t, t.Domain.String(), path)
}

// Kickstart starts t.
func (c *Client) Kickstart(ctx context.Context, t Target) error {
	return c.act(ctx, "kickstart", t, t.String())
}

// Kill sends signal to the running instance of t.
func (c *Client) Kill(ctx context.Context, t Target, signal int) error {
	return c.act(ctx, "kill", t, strconv.Itoa(signal), t.String())
}

func (c *Client) act(ctx context.Context, sub string, t Target, args ...string) error {
	argv := append([]string{sub}, args...)
	res, err := c.runner.Run(ctx, c.binary, argv, t.Domain.Principal())
	if err != nil {
		return &Error{Kind: KindIO, Op: sub, Target: t.String(), Err: err}
	}
	return c.classify(sub, t, res)
}

// classify maps an exit code onto the error taxonomy.
func (c *Client) classify(sub string, t Target, res executor.Result) error {
	switch {
	case res.ExitCode == 0:
		return nil
	case c.lenient && lenientExitCodes[res.ExitCode]:
		log.Debug("lenient exit accepted", "op", sub, logging.KeyTarget, t.String(), logging.KeyExitCode, res.ExitCode)
		return nil
	case res.ExitCode == ExitNoSuchProcess || res.ExitCode == ExitServiceNotFound:
		return &Error{Kind: KindServiceNotRunning, Op: sub, Target: t.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return &Error{Kind: KindLaunchd, Op: sub, Target: t.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
}
