package launchd

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

const printSystemFixture = `system = {
	type = system
	handle = 0
	active count = 3
	service count = 4

	services = {
		       0      -     com.apple.calaccessd
		     412      0     com.apple.analyticsd
		     988     -9     com.apple.photoanalysisd
		       0 (spawn)    com.apple.siriknowledged
	}

	unmanaged processes = {
		com.apple.xpc.launchd.unmanaged.loginwindow.101 = {
			active count = 1
		}
	}

	disabled services = {
		"com.apple.ftpd" => disabled
		"com.apple.screensharing" => enabled
		"com.apple.mrt" => disabled
	}
}
`

func TestParseServicesSection(t *testing.T) {
	lines, err := Parse(printSystemFixture, SectionServices)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("got %d records, want 4: %+v", len(lines), lines)
	}

	want := []struct {
		pid     int64
		status  *int64
		service string
	}{
		{0, nil, "com.apple.calaccessd"},
		{412, ptr(0), "com.apple.analyticsd"},
		{988, ptr(-9), "com.apple.photoanalysisd"},
		{0, nil, "com.apple.siriknowledged"},
	}
	for i, w := range want {
		got := lines[i]
		if got.PID != w.pid || got.Service != w.service || !sameStatus(got.Status, w.status) {
			t.Errorf("record %d = {%d %v %s}, want {%d %v %s}", i, got.PID, fmtStatus(got.Status), got.Service, w.pid, fmtStatus(w.status), w.service)
		}
		if !got.Enabled {
			t.Errorf("record %d should default to enabled", i)
		}
	}
}

func TestParseSyntheticRoundTrip(t *testing.T) {
	var b strings.Builder
	b.WriteString("services = {\n")
	const n = 50
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  %d  %d  com.example.svc%d\n", 100+i, i%3, i)
	}
	b.WriteString("}\n")
	b.WriteString("  not part of the section\n")

	lines, err := Parse(b.String(), SectionServices)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(lines) != n {
		t.Fatalf("got %d records, want %d", len(lines), n)
	}
	for i, l := range lines {
		if l.PID != int64(100+i) || l.Status == nil || *l.Status != int64(i%3) || l.Service != fmt.Sprintf("com.example.svc%d", i) {
			t.Fatalf("record %d mismatch: %+v", i, l)
		}
	}
}

func TestParseDisabledSection(t *testing.T) {
	lines, err := Parse(printSystemFixture, SectionDisabled)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("got %d records, want 3", len(lines))
	}
	first := lines[0]
	if first.PID != 0 || first.Status != nil || first.Service != "com.apple.ftpd" || first.Enabled {
		t.Fatalf("unexpected first record %+v", first)
	}
	if !lines[1].Enabled {
		t.Fatal("screensharing should be enabled")
	}
}

func TestParseDisabledLineWithPadding(t *testing.T) {
	text := "disabled services = {\n  \"com.example.foo\"    disabled\n  \"com.example.bar\"    enabled\n}\n"
	lines, err := Parse(text, SectionDisabled)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if lines[0].Service != "com.example.foo" || lines[0].Enabled || lines[0].PID != 0 || lines[0].Status != nil {
		t.Fatalf("unexpected %+v", lines[0])
	}
	if !lines[1].Enabled {
		t.Fatalf("expected enabled, got %+v", lines[1])
	}
}

func TestParseMissingSectionIsEmpty(t *testing.T) {
	lines, err := Parse("gui/501 = {\n\ttype = login\n}\n", SectionServices)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no records, got %+v", lines)
	}
}

func TestParseMalformedLineIsParseError(t *testing.T) {
	text := "services = {\n\t  12  0  com.example.ok\n\tthis line is garbage\n}\n"
	_, err := Parse(text, SectionServices)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	var le *Error
	if !errors.As(err, &le) || !strings.Contains(le.Line, "garbage") {
		t.Fatalf("parse error should carry the offending line, got %v", err)
	}
}

func TestParseDisabledRejectsActiveGrammar(t *testing.T) {
	text := "disabled services = {\n\t  12  0  com.example.ok\n}\n"
	if _, err := Parse(text, SectionDisabled); KindOf(err) != KindParse {
		t.Fatalf("expected KindParse, got %v", err)
	}
}

func TestDisabledSet(t *testing.T) {
	set, err := DisabledSet(printSystemFixture)
	if err != nil {
		t.Fatalf("DisabledSet: %v", err)
	}
	if !set["com.apple.ftpd"] || !set["com.apple.mrt"] || set["com.apple.screensharing"] {
		t.Fatalf("unexpected disabled set %v", set)
	}
}

func ptr(v int64) *int64 { return &v }

func sameStatus(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func fmtStatus(s *int64) string {
	if s == nil {
		return "none"
	}
	return fmt.Sprint(*s)
}
