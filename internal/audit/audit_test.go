package audit

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/breeze-rmm/adm/internal/launchd"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "audit", "audit.jsonl"), 0, 0)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Record(EventTurnOff, "system/com.a", nil, nil)
	l.Skip(EventBootUp, "system/com.a", "no descriptor")
	l.Log(EventRunStart, nil)
	if err := l.Close(); err != nil {
		t.Fatalf("nil Close() returned error: %v", err)
	}
	if got := l.DroppedCount(); got != -1 {
		t.Fatalf("nil DroppedCount() = %d, want -1", got)
	}
}

func TestRecordResults(t *testing.T) {
	l := newTestLogger(t)
	notRunning := &launchd.Error{Kind: launchd.KindServiceNotRunning, Op: "bootout", Target: "system/com.b", ExitCode: 3}
	failed := &launchd.Error{Kind: launchd.KindLaunchd, Op: "bootout", Target: "system/com.c", ExitCode: 1}

	l.Log(EventRunStart, map[string]any{"command": "turn-off"})
	l.Record(EventTurnOff, "system/com.a", nil, map[string]any{"pid": 412})
	l.Record(EventTurnOff, "system/com.b", notRunning, nil)
	l.Record(EventTurnOff, "system/com.c", failed, nil)
	l.Skip(EventBootUp, "gui/501/com.d", "no descriptor")
	l.Close()

	entries, err := ReadEntries(l.Path())
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 5 {
		t.Fatalf("got %d entries", len(entries))
	}
	want := []string{"", ResultOK, ResultNotRunning, ResultError, ResultSkipped}
	for i, w := range want {
		if entries[i].Result != w {
			t.Errorf("entry %d result = %q, want %q", i, entries[i].Result, w)
		}
	}
	if entries[0].PrevHash != genesis {
		t.Fatalf("first prevHash = %q", entries[0].PrevHash)
	}
	if entries[3].Error == "" {
		t.Fatalf("error text missing: %+v", entries[3])
	}
	if l.DroppedCount() != 0 {
		t.Fatalf("dropped = %d", l.DroppedCount())
	}
}

func TestHashChainVerifies(t *testing.T) {
	l := newTestLogger(t)
	for i := 0; i < 5; i++ {
		l.Record(EventKill, "gui/501/com.example", nil, map[string]any{"i": i})
	}
	l.Close()

	n, err := Verify(l.Path())
	if err != nil || n != 5 {
		t.Fatalf("Verify = %d, %v", n, err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	l := newTestLogger(t)
	l.Record(EventTurnOff, "system/com.a", nil, nil)
	l.Record(EventTurnOff, "system/com.b", nil, nil)
	l.Close()

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	tampered := strings.Replace(string(data), "system/com.b", "system/com.z", 1)
	if err := os.WriteFile(l.Path(), []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(l.Path()); err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	first, err := NewLogger(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	first.Record(EventTurnOff, "system/com.a", nil, nil)
	first.Close()

	second, err := NewLogger(path, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	second.Record(EventBootUp, "system/com.a", nil, nil)
	second.Close()

	if n, err := Verify(path); err != nil || n != 2 {
		t.Fatalf("Verify after reopen = %d, %v", n, err)
	}
}

func TestRotationLinksAcrossFiles(t *testing.T) {
	l := newTestLogger(t)
	l.maxSize = 600

	for i := 0; i < 10; i++ {
		l.Record(EventTurnOff, "system/com.example.service", nil, map[string]any{"i": i})
	}
	l.Close()

	current, err := ReadEntries(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	if current[0].Event != EventLogRotated {
		t.Fatalf("first entry after rotation = %q", current[0].Event)
	}
	previous, err := ReadEntries(l.backupName(1))
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if current[0].PrevHash != previous[len(previous)-1].EntryHash {
		t.Fatal("sentinel does not link to the previous file")
	}
	if _, err := Verify(l.Path()); err != nil {
		t.Fatalf("Verify current: %v", err)
	}
}

func TestWriteAfterCloseIsDropped(t *testing.T) {
	l := newTestLogger(t)
	l.Close()
	l.Record(EventTurnOff, "system/com.a", errors.New("boom"), nil)
	if got := l.DroppedCount(); got != 1 {
		t.Fatalf("DroppedCount() = %d, want 1", got)
	}
}
