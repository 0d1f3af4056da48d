package launchd

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// Section names a block of `launchctl print <domain>` output.
type Section string

const (
	SectionServices Section = "services"
	SectionDisabled Section = "disabled services"
)

func (s Section) header() string { return string(s) + " = " }

var (
	// "	     123      -     com.apple.foo" or "	       0 (spawn)  com.apple.bar"
	activeLine = regexp.MustCompile(`^\s+(\d+)\s+(-?\d+|-|\(\w+\))\s+(\S+)`)

	// `	"com.apple.foo" => disabled`
	disabledLine = regexp.MustCompile(`^\s+"([^"]+)".*?\b(enabled|disabled)\b`)
)

// ParsedLine is one record of a services or disabled services block.
type ParsedLine struct {
	PID     int64
	Status  *int64 // last exit status, nil when not reported
	Service string
	Enabled bool
}

// Parse extracts the records of section from print output. A missing
// section yields no records. A line inside the section that matches
// neither grammar fails the whole call with a KindParse error.
func Parse(text string, section Section) ([]ParsedLine, error) {
	header := section.header()
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []ParsedLine
	inSection := false
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if !inSection {
			inSection = strings.HasPrefix(trimmed, header)
			continue
		}
		if trimmed == "}" {
			break
		}
		if trimmed == "" {
			continue
		}

		rec, ok := parseLine(line, section)
		if !ok {
			return nil, &Error{Kind: KindParse, Op: "parse " + string(section), Line: line}
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, &Error{Kind: KindIO, Op: "parse " + string(section), Err: err}
	}
	return records, nil
}

func parseLine(line string, section Section) (ParsedLine, bool) {
	if section == SectionDisabled {
		m := disabledLine.FindStringSubmatch(line)
		if m == nil {
			return ParsedLine{}, false
		}
		return ParsedLine{Service: m[1], Enabled: m[2] == "enabled"}, true
	}

	m := activeLine.FindStringSubmatch(line)
	if m == nil {
		return ParsedLine{}, false
	}
	pid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		pid = 0
	}
	rec := ParsedLine{PID: pid, Service: m[3], Enabled: true}
	if status, err := strconv.ParseInt(m[2], 10, 64); err == nil {
		rec.Status = &status
	}
	return rec, true
}

// DisabledSet parses the disabled services block into a lookup of services
// explicitly marked disabled.
func DisabledSet(text string) (map[string]bool, error) {
	lines, err := Parse(text, SectionDisabled)
	if err != nil {
		return nil, err
	}
	disabled := make(map[string]bool, len(lines))
	for _, l := range lines {
		if !l.Enabled {
			disabled[l.Service] = true
		}
	}
	return disabled, nil
}
