// Package svcquery assembles the live launchd inventory from
// `launchctl print` output and cross-references it with on-disk
// descriptors.
package svcquery

import (
	"context"
	"fmt"

	"github.com/breeze-rmm/adm/internal/discovery"
	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("svcquery")

// ServiceStatus summarizes a record for display.
type ServiceStatus string

const (
	StatusRunning  ServiceStatus = "running"
	StatusStopped  ServiceStatus = "stopped"
	StatusDisabled ServiceStatus = "disabled"
	StatusUnknown  ServiceStatus = "unknown"
)

// Record is one service observed in a domain. PID 0 means not running.
type Record struct {
	Domain   launchd.Domain
	Service  string
	PID      int64
	LastExit *int64
	Enabled  bool
}

// Target returns the addressable target of the record.
func (r Record) Target() launchd.Target { return r.Domain.Target(r.Service) }

// Address renders "<domain>/<service>".
func (r Record) Address() string { return launchd.Address(r.Domain, r.Service) }

// IsActive returns true if the service currently has a process.
func (r Record) IsActive() bool { return r.PID != 0 }

// Status classifies the record.
func (r Record) Status() ServiceStatus {
	switch {
	case r.PID != 0:
		return StatusRunning
	case !r.Enabled:
		return StatusDisabled
	default:
		return StatusStopped
	}
}

// Info is the on-disk declaration attached to a record.
type Info struct {
	Path       string
	Properties map[string]any
}

// Entry is a row of QueryAll: a live or declared service, with its
// descriptor when one was found.
type Entry struct {
	Record
	Info *Info
}

// Querier runs the print probes. It is not safe for concurrent use; probes
// run strictly one after another.
type Querier struct {
	client    *launchd.Client
	discovery discovery.Options
}

// New returns a Querier issuing print commands through client and scanning
// descriptors with opts for QueryAll.
func New(client *launchd.Client, opts discovery.Options) *Querier {
	return &Querier{client: client, discovery: opts}
}

// Domains lists the domains probed for uid: system, user/uid and gui/uid,
// plus user and gui domains of every salient local account when
// includeSystemUIDs is set.
func (q *Querier) Domains(ctx context.Context, uid launchd.UID, includeSystemUIDs bool) ([]launchd.Domain, error) {
	domains := []launchd.Domain{launchd.System(), launchd.User(uid), launchd.GUI(uid)}
	if !includeSystemUIDs {
		return domains, nil
	}

	uids, err := launchd.SalientSystemUIDs(ctx, q.client.Runner())
	if err != nil {
		return nil, fmt.Errorf("svcquery: list accounts: %w", err)
	}
	for _, u := range uids {
		if u == uid {
			continue
		}
		domains = append(domains, launchd.User(u), launchd.GUI(u))
	}
	return domains, nil
}

// QueryLive returns the services of every probed domain. A domain whose
// print fails or whose output does not parse is skipped.
func (q *Querier) QueryLive(ctx context.Context, uid launchd.UID, includeSystemUIDs bool) ([]Record, error) {
	domains, err := q.Domains(ctx, uid, includeSystemUIDs)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, d := range domains {
		recs, _, ok := q.probe(ctx, d)
		if ok {
			records = append(records, recs...)
		}
	}
	return records, nil
}

// QueryLiveByDomain returns the live records for uid keyed by address.
func (q *Querier) QueryLiveByDomain(ctx context.Context, uid launchd.UID) (map[string]Record, error) {
	records, err := q.QueryLive(ctx, uid, false)
	if err != nil {
		return nil, err
	}
	byAddr := make(map[string]Record, len(records))
	for _, r := range records {
		byAddr[r.Address()] = r
	}
	return byAddr, nil
}

// QueryAll returns the union of live services and declared services that
// are not loaded, attaching descriptor info where a descriptor declares
// the service label. Declared-only daemons are placed in system and
// declared-only agents in gui/uid.
func (q *Querier) QueryAll(ctx context.Context, uid launchd.UID) ([]Entry, error) {
	descs, err := discovery.Discover(q.discovery)
	if err != nil {
		return nil, err
	}
	index := discovery.Index(descs)

	var entries []Entry
	seen := make(map[string]bool)
	disabled := make(map[launchd.Domain]map[string]bool)

	for _, d := range []launchd.Domain{launchd.System(), launchd.User(uid), launchd.GUI(uid)} {
		recs, dis, ok := q.probe(ctx, d)
		if !ok {
			continue
		}
		disabled[d] = dis
		for _, r := range recs {
			seen[r.Address()] = true
			entries = append(entries, Entry{Record: r, Info: infoFor(index, r.Service)})
		}
	}

	for _, desc := range descs {
		d := desc.Domain(uid)
		addr := launchd.Address(d, desc.Label)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		entries = append(entries, Entry{
			Record: Record{
				Domain:  d,
				Service: desc.Label,
				Enabled: !disabled[d][desc.Label],
			},
			Info: &Info{Path: desc.Path, Properties: desc.Properties},
		})
	}
	return entries, nil
}

// probe prints one domain and parses both sections. ok is false when the
// domain was skipped.
func (q *Querier) probe(ctx context.Context, d launchd.Domain) ([]Record, map[string]bool, bool) {
	dlog := log.With(logging.KeyDomain, d.String())

	out, err := q.client.Print(ctx, d)
	if err != nil {
		dlog.Debug("domain skipped", logging.KeyError, err)
		return nil, nil, false
	}

	lines, err := launchd.Parse(out, launchd.SectionServices)
	if err != nil {
		dlog.Warn("domain skipped, unparsable services", logging.KeyError, err)
		return nil, nil, false
	}
	dis, err := launchd.DisabledSet(out)
	if err != nil {
		dlog.Warn("ignoring unparsable disabled services", logging.KeyError, err)
		dis = map[string]bool{}
	}

	records := make([]Record, 0, len(lines))
	for _, l := range lines {
		records = append(records, Record{
			Domain:   d,
			Service:  l.Service,
			PID:      l.PID,
			LastExit: l.Status,
			Enabled:  !dis[l.Service],
		})
	}
	dlog.Debug("domain probed", "services", len(records))
	return records, dis, true
}

func infoFor(index map[string]discovery.Descriptor, label string) *Info {
	desc, ok := index[label]
	if !ok {
		return nil
	}
	return &Info{Path: desc.Path, Properties: desc.Properties}
}
