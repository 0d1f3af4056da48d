package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/breeze-rmm/adm/internal/audit"
	"github.com/breeze-rmm/adm/internal/capture"
	"github.com/breeze-rmm/adm/internal/catalog"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
	"github.com/breeze-rmm/adm/internal/svcquery"
)

// TurnOffSmart turns off the live services selected by the request
// patterns, accepting the lenient exit codes. Services with a live pid are
// also sent SIGKILL; with req.Verify set the driver waits for those pids to
// exit and records survivors as warnings.
func (d *Driver) TurnOffSmart(ctx context.Context, req Request) (Outcome, error) {
	records, err := d.querier.QueryLive(ctx, req.UID, req.IncludeSystemUIDs)
	if err != nil {
		return Outcome{}, err
	}
	matched := d.selectRecords(records, d.Patterns(req))

	timeout := req.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}

	var out Outcome
	for _, r := range matched {
		t := r.Target()
		if ctx.Err() != nil {
			out.fail(t.String(), ctx.Err())
			continue
		}

		d.snapshot(ctx, t, capture.Before)
		err := turnOff(ctx, d.lenient, t)
		d.journal.Record(audit.EventTurnOff, t.String(), err, map[string]any{"pid": r.PID})
		if err != nil {
			out.fail(t.String(), err)
			continue
		}
		if r.IsActive() {
			d.kill(ctx, t, r.PID)
		}
		d.snapshot(ctx, t, capture.After)
		out.succeed(t.String())

		if req.Verify && r.IsActive() {
			if err := d.waitExit(ctx, int32(r.PID), timeout); err != nil {
				log.Warn("pid survived turn-off", logging.KeyTarget, t.String(), "pid", r.PID, logging.KeyError, err)
				out.warn(t.String(), err)
			}
		}
	}
	return out, nil
}

// BootUpSmart boots up the declared or live services selected by the
// request patterns. Matches without a descriptor are skipped.
func (d *Driver) BootUpSmart(ctx context.Context, req Request) (Outcome, error) {
	entries, err := d.querier.QueryAll(ctx, req.UID)
	if err != nil {
		return Outcome{}, err
	}
	patterns := d.Patterns(req)

	var out Outcome
	for _, e := range entries {
		if !d.matcher.Matches(e.Service, patterns) {
			continue
		}
		t := e.Target()
		if ctx.Err() != nil {
			out.fail(t.String(), ctx.Err())
			continue
		}
		if e.IsActive() {
			d.journal.Record(audit.EventBootUp, t.String(), nil, map[string]any{"pid": e.PID, "alreadyRunning": true})
			out.succeed(t.String())
			continue
		}
		if e.Info == nil {
			log.Warn("path not found, skipping", logging.KeyTarget, t.String())
			d.journal.Skip(audit.EventBootUp, t.String(), "no descriptor")
			out.skip(t.String())
			continue
		}
		err := bootUp(ctx, d.lenient, t, e.Info.Path, req.Kickstart)
		d.journal.Record(audit.EventBootUp, t.String(), err, map[string]any{"path": e.Info.Path})
		if err != nil {
			out.fail(t.String(), err)
			continue
		}
		out.succeed(t.String())
	}
	return out, nil
}

func (d *Driver) selectRecords(records []svcquery.Record, patterns catalog.PatternSet) []svcquery.Record {
	var matched []svcquery.Record
	for _, r := range records {
		kind, pattern := d.matcher.Match(r.Service, patterns)
		if kind == catalog.NoMatch {
			continue
		}
		log.Debug("selected", logging.KeyTarget, r.Address(), "rule", kind.String(), "pattern", pattern)
		matched = append(matched, r)
	}
	return matched
}

// kill sends SIGKILL through launchctl and falls back to signalling the
// pid directly when launchctl refuses, or reports the service gone while
// its pid is still alive. Failures are logged only.
func (d *Driver) kill(ctx context.Context, t launchd.Target, pid int64) {
	tlog := logging.WithTarget(log, t.Domain.String(), t.String())

	err := d.lenient.Kill(ctx, t, launchd.SignalKill)
	if err == nil {
		d.journal.Record(audit.EventKill, t.String(), nil, map[string]any{"pid": pid})
		return
	}
	if launchd.IsNotRunning(err) {
		alive, aliveErr := d.pidAlive(ctx, int32(pid))
		if aliveErr != nil {
			tlog.Debug("pid liveness check failed", "pid", pid, logging.KeyError, aliveErr)
		}
		if !alive {
			d.journal.Record(audit.EventKill, t.String(), err, map[string]any{"pid": pid})
			return
		}
		tlog.Debug("service gone but pid alive, signalling pid", "pid", pid)
	} else {
		tlog.Debug("launchctl kill failed, signalling pid", "pid", pid, logging.KeyError, err)
	}
	err = d.killPID(ctx, int32(pid))
	if err != nil {
		tlog.Warn("kill failed", "pid", pid, logging.KeyError, err)
	}
	d.journal.Record(audit.EventKill, t.String(), err, map[string]any{"pid": pid, "direct": true})
}

func killProcess(ctx context.Context, pid int32) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil
		}
		return fmt.Errorf("find pid %d: %w", pid, err)
	}
	return p.KillWithContext(ctx)
}
