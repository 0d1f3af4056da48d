// Package launchd models launchd domains and service targets, parses
// `launchctl print` output and classifies launchctl exit codes.
package launchd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/breeze-rmm/adm/internal/executor"
)

// UID is a numeric macOS user identifier.
type UID uint32

// DefaultUID is the first interactive account created on a Mac.
const DefaultUID UID = 501

func (u UID) String() string { return strconv.FormatUint(uint64(u), 10) }

// ParseUID parses a decimal uid.
func ParseUID(s string) (UID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("launchd: invalid uid %q: %w", s, err)
	}
	return UID(n), nil
}

// DomainKind enumerates the launchd addressing scopes.
type DomainKind int

const (
	DomainSystem DomainKind = iota
	DomainUser
	DomainGUI
)

// Domain is one of system, user/<uid> or gui/<uid>. The zero value is the
// system domain.
type Domain struct {
	kind DomainKind
	uid  UID
}

// System returns the system domain.
func System() Domain { return Domain{kind: DomainSystem} }

// User returns the background domain of uid.
func User(uid UID) Domain { return Domain{kind: DomainUser, uid: uid} }

// GUI returns the login-session domain of uid.
func GUI(uid UID) Domain { return Domain{kind: DomainGUI, uid: uid} }

// Kind returns the domain scope.
func (d Domain) Kind() DomainKind { return d.kind }

// UID returns the uid of a user or gui domain. ok is false for system.
func (d Domain) UID() (uid UID, ok bool) {
	if d.kind == DomainSystem {
		return 0, false
	}
	return d.uid, true
}

// String renders the canonical launchctl domain-target.
func (d Domain) String() string {
	switch d.kind {
	case DomainUser:
		return "user/" + d.uid.String()
	case DomainGUI:
		return "gui/" + d.uid.String()
	}
	return "system"
}

// Dashed renders the domain with slashes replaced by dashes, for use as a
// single path component.
func (d Domain) Dashed() string {
	return strings.ReplaceAll(d.String(), "/", "-")
}

// Principal is the identity launchctl must run as to act on this domain.
func (d Domain) Principal() executor.Principal {
	if d.kind == DomainSystem {
		return executor.Root()
	}
	return executor.AsUID(int(d.uid))
}

// Target addresses service inside d.
func (d Domain) Target(service string) Target {
	return Target{Domain: d, Service: service}
}

// ParseDomain parses "system", "user[/<uid>]" or "gui[/<uid>]". A missing
// uid selects DefaultUID.
func ParseDomain(s string) (Domain, error) {
	scope, rest, hasUID := strings.Cut(strings.TrimSpace(s), "/")
	uid := DefaultUID
	if hasUID {
		parsed, err := ParseUID(rest)
		if err != nil {
			return Domain{}, err
		}
		uid = parsed
	}

	switch scope {
	case "system":
		if hasUID {
			return Domain{}, fmt.Errorf("launchd: system domain takes no uid: %q", s)
		}
		return System(), nil
	case "user":
		return User(uid), nil
	case "gui":
		return GUI(uid), nil
	}
	return Domain{}, fmt.Errorf("launchd: unknown domain %q", s)
}

// Target is a service inside a domain, the argument shape launchctl
// accepts for per-service subcommands.
type Target struct {
	Domain  Domain
	Service string
}

// String renders "<domain>/<service>".
func (t Target) String() string {
	return Address(t.Domain, t.Service)
}

// Address renders the addressable target string for service in d.
func Address(d Domain, service string) string {
	return d.String() + "/" + service
}

// ParseTarget parses "system/<id>", "user/<uid>/<id>" or "gui/<uid>/<id>".
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if service, ok := strings.CutPrefix(s, "system/"); ok && service != "" {
		return System().Target(service), nil
	}
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[2] == "" {
		return Target{}, fmt.Errorf("launchd: invalid target %q", s)
	}
	d, err := ParseDomain(parts[0] + "/" + parts[1])
	if err != nil {
		return Target{}, err
	}
	return d.Target(parts[2]), nil
}
