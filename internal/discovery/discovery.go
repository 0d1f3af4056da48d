// Package discovery scans the launchd search roots for service descriptors
// (property-list files) and extracts their declared labels.
package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"howett.net/plist"

	"github.com/breeze-rmm/adm/internal/launchd"
	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("discovery")

// Kind distinguishes per-user agents from system-wide daemons.
type Kind string

const (
	KindAgent  Kind = "agent"
	KindDaemon Kind = "daemon"
)

// Scope names the tier a search root belongs to.
type Scope string

const (
	ScopeUser    Scope = "user"
	ScopeLibrary Scope = "library"
	ScopeSystem  Scope = "system"
)

// Root is one directory scanned for descriptors.
type Root struct {
	Dir   string
	Kind  Kind
	Scope Scope
}

// Options selects the search roots.
type Options struct {
	IncludeUser    bool
	IncludeLibrary bool
	IncludeSystem  bool

	// Home is the user home directory. Empty means os.UserHomeDir.
	Home string
	// FSRoot prefixes /Library and /System/Library. Empty means "/".
	FSRoot string
}

// Descriptor is a service declared on disk.
type Descriptor struct {
	Label      string
	Path       string
	Kind       Kind
	Scope      Scope
	Properties map[string]any
}

// Domain returns the domain the descriptor loads into: daemons into
// system, agents into the gui session of uid.
func (d Descriptor) Domain(uid launchd.UID) launchd.Domain {
	if d.Kind == KindDaemon {
		return launchd.System()
	}
	return launchd.GUI(uid)
}

// Roots lists the directories Discover scans, in scan order.
func Roots(opts Options) []Root {
	fsRoot := opts.FSRoot
	if fsRoot == "" {
		fsRoot = "/"
	}
	var roots []Root
	add := func(base string, scope Scope) {
		roots = append(roots,
			Root{Dir: filepath.Join(base, "LaunchAgents"), Kind: KindAgent, Scope: scope},
			Root{Dir: filepath.Join(base, "LaunchDaemons"), Kind: KindDaemon, Scope: scope},
		)
	}

	if opts.IncludeUser {
		home := opts.Home
		if home == "" {
			home, _ = os.UserHomeDir()
		}
		if home != "" {
			add(filepath.Join(home, "Library"), ScopeUser)
		}
	}
	if opts.IncludeLibrary {
		add(filepath.Join(fsRoot, "Library"), ScopeLibrary)
	}
	if opts.IncludeSystem {
		add(filepath.Join(fsRoot, "System", "Library"), ScopeSystem)
	}
	return roots
}

// Discover scans the selected roots. Unreadable or malformed descriptors are
// skipped with a warning; a root that does not exist is skipped silently.
// Descriptors are returned in directory listing order.
func Discover(opts Options) ([]Descriptor, error) {
	var found []Descriptor
	for _, root := range Roots(opts) {
		entries, err := os.ReadDir(root.Dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &launchd.Error{Kind: launchd.KindIO, Op: "read dir", Target: root.Dir, Err: err}
		}

		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".plist" {
				continue
			}
			path := filepath.Join(root.Dir, entry.Name())
			desc, err := ReadDescriptor(path)
			if err != nil {
				log.Warn("skipping descriptor", "path", path, logging.KeyError, err)
				continue
			}
			desc.Kind = root.Kind
			desc.Scope = root.Scope
			found = append(found, desc)
		}
	}
	return found, nil
}

// ReadDescriptor decodes a binary, XML or OpenStep property list and reads
// its Label. A dictionary without a string Label is named after the file.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}

	var props map[string]any
	if _, err := plist.Unmarshal(data, &props); err != nil {
		return Descriptor{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if props == nil {
		return Descriptor{}, fmt.Errorf("decode %s: not a dictionary", filepath.Base(path))
	}

	label, ok := props["Label"].(string)
	if !ok || strings.TrimSpace(label) == "" {
		label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Descriptor{Label: label, Path: path, Properties: props}, nil
}

// Index maps labels to descriptors. The first descriptor seen for a label
// wins, so user roots shadow /Library which shadows /System/Library.
func Index(descs []Descriptor) map[string]Descriptor {
	idx := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if _, dup := idx[d.Label]; !dup {
			idx[d.Label] = d
		}
	}
	return idx
}

// FindLabel returns every descriptor declaring label.
func FindLabel(descs []Descriptor, label string) []Descriptor {
	var out []Descriptor
	for _, d := range descs {
		if d.Label == label {
			out = append(out, d)
		}
	}
	return out
}
