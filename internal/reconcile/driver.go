// Package reconcile drives launchd towards the requested state: services
// are turned off (bootout then disable) or booted up (enable then
// bootstrap or kickstart), one target at a time.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/breeze-rmm/adm/internal/audit"
	"github.com/breeze-rmm/adm/internal/capture"
	"github.com/breeze-rmm/adm/internal/catalog"
	"github.com/breeze-rmm/adm/internal/discovery"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
	"github.com/breeze-rmm/adm/internal/svcquery"
	"github.com/breeze-rmm/adm/internal/waitutil"
)

var log = logging.L("reconcile")

// DefaultVerifyTimeout bounds the wait for a killed pid to exit.
const DefaultVerifyTimeout = 5 * time.Second

// Request describes one batch.
type Request struct {
	UID launchd.UID

	// UserServices are targeted in the user (or gui) domain of each uid,
	// SystemServices in the system domain. The smart variants treat both
	// as match patterns.
	UserServices   []string
	SystemServices []string

	// IncludeNonNeeded adds the built-in non-needed catalog to both lists.
	IncludeNonNeeded bool
	// IncludeSystemUIDs sweeps every local account. Plain flows replicate
	// user targets over all uids only together with IncludeNonNeeded.
	IncludeSystemUIDs bool
	// GUI targets gui/<uid> instead of user/<uid>.
	GUI bool

	// Kickstart boots up with kickstart instead of bootstrap.
	Kickstart bool

	// Verify waits for killed pids to exit after a smart turn-off.
	Verify        bool
	VerifyTimeout time.Duration
}

// Options wires a Driver.
type Options struct {
	Client    *launchd.Client
	Querier   *svcquery.Querier
	Matcher   *catalog.Matcher
	Catalog   *catalog.Catalog
	Capturer  *capture.Capturer
	Journal   *audit.Logger
	Discovery discovery.Options
}

// Driver runs turn-off and boot-up flows. Targets are processed strictly
// sequentially; concurrent launchctl calls race on service state.
type Driver struct {
	client    *launchd.Client
	lenient   *launchd.Client
	querier   *svcquery.Querier
	matcher   *catalog.Matcher
	catalog   *catalog.Catalog
	capturer  *capture.Capturer
	journal   *audit.Logger
	discovery discovery.Options

	killPID  func(ctx context.Context, pid int32) error
	pidAlive func(ctx context.Context, pid int32) (bool, error)
	waitExit func(ctx context.Context, pid int32, timeout time.Duration) error
}

// New returns a Driver. A nil Matcher selects broad matching, a nil
// Catalog the built-in one and a nil Querier one built on Client.
func New(opts Options) *Driver {
	d := &Driver{
		client:    opts.Client,
		lenient:   opts.Client.Lenient(),
		querier:   opts.Querier,
		matcher:   opts.Matcher,
		catalog:   opts.Catalog,
		capturer:  opts.Capturer,
		journal:   opts.Journal,
		discovery: opts.Discovery,
		killPID:   killProcess,
		pidAlive:  process.PidExistsWithContext,
		waitExit:  waitutil.ForExit,
	}
	if d.matcher == nil {
		d.matcher = catalog.NewMatcher(true)
	}
	if d.catalog == nil {
		d.catalog = catalog.MustBuiltin()
	}
	if d.querier == nil {
		d.querier = svcquery.New(opts.Client, opts.Discovery)
	}
	return d
}

// Patterns is the match set of a smart request.
func (d *Driver) Patterns(req Request) catalog.PatternSet {
	groups := [][]string{req.UserServices, req.SystemServices}
	if req.IncludeNonNeeded {
		groups = append(groups, d.catalog.NonNeeded)
	}
	return catalog.NewPatternSet(groups...)
}

// Targets expands a plain request into addressable targets: system
// services in the system domain, then user services in the user (or gui)
// domain of every uid. Duplicates are dropped.
func (d *Driver) Targets(ctx context.Context, req Request) ([]launchd.Target, error) {
	var nonNeeded []string
	if req.IncludeNonNeeded {
		nonNeeded = d.catalog.NonNeeded
	}
	system := catalog.NewPatternSet(req.SystemServices, nonNeeded).Items()
	user := catalog.NewPatternSet(req.UserServices, nonNeeded).Items()

	uids := []launchd.UID{req.UID}
	if req.IncludeNonNeeded && req.IncludeSystemUIDs && len(user) > 0 {
		all, err := launchd.SystemUIDs(ctx, d.client.Runner())
		if err != nil {
			return nil, fmt.Errorf("reconcile: list accounts: %w", err)
		}
		uids = mergeUIDs(uids, all)
	}

	targets := make([]launchd.Target, 0, len(system)+len(user)*len(uids))
	for _, name := range system {
		targets = append(targets, launchd.System().Target(name))
	}
	for _, uid := range uids {
		dom := userDomain(uid, req.GUI)
		for _, name := range user {
			targets = append(targets, dom.Target(name))
		}
	}
	return targets, nil
}

// TurnOff boots out then disables every target of req. A target that is
// already not running counts as a success; any other launchctl failure is
// recorded and the batch moves on.
func (d *Driver) TurnOff(ctx context.Context, req Request) (Outcome, error) {
	targets, err := d.Targets(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	return d.TurnOffTargets(ctx, targets), nil
}

// TurnOffTargets runs the turn-off flow over an explicit target list.
func (d *Driver) TurnOffTargets(ctx context.Context, targets []launchd.Target) Outcome {
	var out Outcome
	for _, t := range targets {
		if ctx.Err() != nil {
			out.fail(t.String(), ctx.Err())
			continue
		}
		d.snapshot(ctx, t, capture.Before)
		err := turnOff(ctx, d.client, t)
		d.journal.Record(audit.EventTurnOff, t.String(), err, nil)
		if err != nil {
			out.fail(t.String(), err)
			continue
		}
		d.snapshot(ctx, t, capture.After)
		out.succeed(t.String())
	}
	return out
}

// BootUp enables then bootstraps (or kickstarts) every target of req.
// Targets already showing a live pid succeed without any command; targets
// with no known descriptor are skipped with a warning.
func (d *Driver) BootUp(ctx context.Context, req Request) (Outcome, error) {
	targets, err := d.Targets(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	descs, err := discovery.Discover(d.discovery)
	if err != nil {
		return Outcome{}, err
	}
	index := discovery.Index(descs)

	live, err := d.querier.QueryLiveByDomain(ctx, req.UID)
	if err != nil {
		return Outcome{}, err
	}

	var out Outcome
	for _, t := range targets {
		if ctx.Err() != nil {
			out.fail(t.String(), ctx.Err())
			continue
		}
		if r, ok := live[t.String()]; ok && r.IsActive() {
			log.Debug("already running", logging.KeyTarget, t.String(), "pid", r.PID)
			d.journal.Record(audit.EventBootUp, t.String(), nil, map[string]any{"pid": r.PID, "alreadyRunning": true})
			out.succeed(t.String())
			continue
		}
		desc, ok := index[t.Service]
		if !ok {
			log.Warn("no descriptor found, skipping", logging.KeyTarget, t.String())
			d.journal.Skip(audit.EventBootUp, t.String(), "no descriptor")
			out.skip(t.String())
			continue
		}
		err := bootUp(ctx, d.client, t, desc.Path, req.Kickstart)
		d.journal.Record(audit.EventBootUp, t.String(), err, map[string]any{"path": desc.Path})
		if err != nil {
			out.fail(t.String(), err)
			continue
		}
		out.succeed(t.String())
	}
	return out, nil
}

// BootOut boots out the built-in boot-out catalog from the system domain
// and the user (or gui) domain of uid, without disabling anything.
func (d *Driver) BootOut(ctx context.Context, uid launchd.UID, gui bool) Outcome {
	names := catalog.NewPatternSet(d.catalog.Bootout).Items()
	var out Outcome
	for _, dom := range []launchd.Domain{launchd.System(), userDomain(uid, gui)} {
		for _, name := range names {
			t := dom.Target(name)
			err := d.client.Bootout(ctx, t)
			d.journal.Record(audit.EventBootOut, t.String(), err, nil)
			switch {
			case err == nil:
				out.succeed(t.String())
			case launchd.IsNotRunning(err):
				logging.WithTarget(log, dom.String(), t.String()).Debug("bootout: not running")
				out.succeed(t.String())
			default:
				out.fail(t.String(), err)
			}
		}
	}
	return out
}

// turnOff is the bootout, disable sequence for one target.
func turnOff(ctx context.Context, c *launchd.Client, t launchd.Target) error {
	tlog := logging.WithTarget(log, t.Domain.String(), t.String())

	if err := c.Bootout(ctx, t); err != nil {
		if !launchd.IsNotRunning(err) {
			return err
		}
		tlog.Warn("bootout: service not running", logging.KeyError, err)
	}
	if err := c.Disable(ctx, t); err != nil {
		if !launchd.IsNotRunning(err) {
			return err
		}
		tlog.Warn("disable: service not running", logging.KeyError, err)
	}
	tlog.Info("turned off")
	return nil
}

// bootUp is the enable, bootstrap (or kickstart) sequence for one target.
func bootUp(ctx context.Context, c *launchd.Client, t launchd.Target, path string, kickstart bool) error {
	tlog := logging.WithTarget(log, t.Domain.String(), t.String())

	if err := c.Enable(ctx, t); err != nil {
		if !launchd.IsNotRunning(err) {
			return err
		}
		tlog.Warn("enable: service not running", logging.KeyError, err)
	}

	var err error
	if kickstart {
		err = c.Kickstart(ctx, t)
	} else {
		err = c.Bootstrap(ctx, t, path)
	}
	if err != nil {
		return err
	}
	tlog.Info("booted up", "path", path)
	return nil
}

func (d *Driver) snapshot(ctx context.Context, t launchd.Target, phase capture.Phase) {
	if err := d.capturer.Snapshot(ctx, t, phase); err != nil {
		log.Warn("log capture failed", logging.KeyTarget, t.String(), "phase", phase.String(), logging.KeyError, err)
	}
}

func userDomain(uid launchd.UID, gui bool) launchd.Domain {
	if gui {
		return launchd.GUI(uid)
	}
	return launchd.User(uid)
}

// mergeUIDs appends the uids of extra not already in base, in ascending
// order.
func mergeUIDs(base, extra []launchd.UID) []launchd.UID {
	seen := make(map[launchd.UID]bool, len(base))
	for _, u := range base {
		seen[u] = true
	}
	rest := make([]launchd.UID, 0, len(extra))
	for _, u := range extra {
		if !seen[u] {
			seen[u] = true
			rest = append(rest, u)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(base, rest...)
}
