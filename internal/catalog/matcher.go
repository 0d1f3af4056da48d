package catalog

import (
	"strings"

	"github.com/breeze-rmm/adm/internal/logging"
)

var log = logging.L("matcher")

// MatchKind says which containment rule selected a service.
type MatchKind int

const (
	NoMatch MatchKind = iota
	MatchExact
	// MatchLiveContains: the live name contains the pattern.
	MatchLiveContains
	// MatchPatternContains: the pattern contains the live name. This is
	// broader than the service and can over-match short live names.
	MatchPatternContains
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchLiveContains:
		return "live-contains-pattern"
	case MatchPatternContains:
		return "pattern-contains-live"
	}
	return "none"
}

// Matcher decides which live services a pattern set selects. Patterns are
// literal substrings; there is no wildcard syntax.
type Matcher struct {
	broad bool
}

// NewMatcher returns a Matcher. broad enables the pattern-contains-live rule.
func NewMatcher(broad bool) *Matcher {
	return &Matcher{broad: broad}
}

// Broad reports whether the pattern-contains-live rule is enabled.
func (m *Matcher) Broad() bool { return m.broad }

// Match returns the first rule that selects live, with the pattern that
// triggered it. Rules are tried as exact, live contains pattern, then
// pattern contains live.
func (m *Matcher) Match(live string, patterns PatternSet) (MatchKind, string) {
	if live == "" {
		return NoMatch, ""
	}
	if patterns.Contains(live) {
		return MatchExact, live
	}
	for _, p := range patterns.items {
		if strings.Contains(live, p) {
			return MatchLiveContains, p
		}
	}
	if !m.broad {
		return NoMatch, ""
	}
	for _, p := range patterns.items {
		if strings.Contains(p, live) {
			log.Info("pattern is broader than service", logging.KeyService, live, "pattern", p)
			return MatchPatternContains, p
		}
	}
	return NoMatch, ""
}

// Matches reports whether any rule selects live.
func (m *Matcher) Matches(live string, patterns PatternSet) bool {
	kind, _ := m.Match(live, patterns)
	return kind != NoMatch
}

var defaultMatcher = NewMatcher(true)

// Matches applies all three containment rules.
func Matches(live string, patterns PatternSet) bool {
	return defaultMatcher.Matches(live, patterns)
}
