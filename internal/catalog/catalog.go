// Package catalog holds the built-in service catalogs and the matcher that
// applies name patterns to live services.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var builtinYAML []byte

// Catalog is a versioned set of service name lists.
type Catalog struct {
	Version   int      `yaml:"version"`
	NonNeeded []string `yaml:"non_needed"`
	Bootout   []string `yaml:"bootout"`
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns the catalog compiled into the binary. It is decoded once.
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = Parse(builtinYAML)
	})
	return builtin, builtinErr
}

// MustBuiltin is Builtin for callers that cannot recover from a corrupt
// embedded asset.
func MustBuiltin() *Catalog {
	c, err := Builtin()
	if err != nil {
		panic(err)
	}
	return c
}

// Parse decodes a catalog document. Entries are trimmed and deduplicated
// per list; empty entries are rejected.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	var err error
	if c.NonNeeded, err = clean("non_needed", c.NonNeeded); err != nil {
		return nil, err
	}
	if c.Bootout, err = clean("bootout", c.Bootout); err != nil {
		return nil, err
	}
	return &c, nil
}

func clean(list string, names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("catalog: %s[%d] is empty", list, i)
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}

// PatternSet is an immutable, deduplicated set of literal name patterns.
type PatternSet struct {
	items []string
	set   map[string]struct{}
}

// NewPatternSet unions the given groups. Blank patterns are dropped.
func NewPatternSet(groups ...[]string) PatternSet {
	set := make(map[string]struct{})
	for _, g := range groups {
		for _, p := range g {
			if p = strings.TrimSpace(p); p != "" {
				set[p] = struct{}{}
			}
		}
	}
	items := make([]string, 0, len(set))
	for p := range set {
		items = append(items, p)
	}
	sort.Strings(items)
	return PatternSet{items: items, set: set}
}

// Len returns the number of patterns.
func (p PatternSet) Len() int { return len(p.items) }

// Contains reports whether name is one of the patterns.
func (p PatternSet) Contains(name string) bool {
	_, ok := p.set[name]
	return ok
}

// Items returns the patterns in sorted order.
func (p PatternSet) Items() []string {
	return append([]string(nil), p.items...)
}
