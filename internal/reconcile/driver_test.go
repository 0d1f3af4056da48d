package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/breeze-rmm/adm/internal/audit"
	"github.com/breeze-rmm/adm/internal/catalog"
	"github.com/breeze-rmm/adm/internal/discovery"
	"github.com/breeze-rmm/adm/internal/executor"
	"github.com/breeze-rmm/adm/internal/executor/executortest"
	"github.com/breeze-rmm/adm/internal/launchd"
)

const descriptorXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
</dict>
</plist>
`

var testCatalog = &catalog.Catalog{
	Version:   1,
	NonNeeded: []string{"com.apple.analyticsd", "com.apple.Siri.agent"},
	Bootout:   []string{"com.apple.analyticsd"},
}

func newDriver(runner *executortest.Runner, opts discovery.Options) *Driver {
	d := New(Options{
		Client:    launchd.NewClient(runner, ""),
		Catalog:   testCatalog,
		Discovery: opts,
	})
	d.pidAlive = func(context.Context, int32) (bool, error) { return false, nil }
	return d
}

func writeDescriptor(t *testing.T, dir, label string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, label+".plist")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(descriptorXML, label)), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTurnOffIsIdempotentForStoppedTarget(t *testing.T) {
	runner := executortest.New().
		On("bootout system/com.example.daemon", executortest.Response{Exit: launchd.ExitNoSuchProcess})
	d := newDriver(runner, discovery.Options{})
	req := Request{UID: 501, SystemServices: []string{"com.example.daemon"}}

	for i := 0; i < 2; i++ {
		out, err := d.TurnOff(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(out.Errors) != 0 || len(out.Successes) != 1 {
			t.Fatalf("run %d: outcome = %+v", i, out)
		}
	}
	if n := runner.Count("disable system/com.example.daemon"); n != 2 {
		t.Fatalf("disable ran %d times, want 2", n)
	}
}

func TestTurnOffBatchSurvivesOneFailure(t *testing.T) {
	runner := executortest.New().
		On("bootout system/com.example.b", executortest.Response{Exit: 1, Stderr: "Boot-out failed: 1: Operation not permitted"})
	d := newDriver(runner, discovery.Options{})
	req := Request{UID: 501, SystemServices: []string{"com.example.a", "com.example.b", "com.example.c", "com.example.d"}}

	out, err := d.TurnOff(context.Background(), req)
	if err != nil {
		t.Fatalf("TurnOff: %v", err)
	}
	if len(out.Errors) != 1 || len(out.Successes) != 3 {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Errors[0].Target != "system/com.example.b" {
		t.Fatalf("failed target = %s", out.Errors[0].Target)
	}
	if launchd.KindOf(out.Errors[0].Err) != launchd.KindLaunchd {
		t.Fatalf("error kind = %v", launchd.KindOf(out.Errors[0].Err))
	}
	if runner.Count("disable system/com.example.b") != 0 {
		t.Fatal("disable must not run after a failed bootout")
	}
	if runner.Count("disable system/com.example.d") != 1 {
		t.Fatal("batch should continue past the failure")
	}
}

func TestTurnOffDisableFailureRecordsError(t *testing.T) {
	runner := executortest.New().
		On("disable system/com.example.a", executortest.Response{Exit: 5})
	d := newDriver(runner, discovery.Options{})

	out, err := d.TurnOff(context.Background(), Request{UID: 501, SystemServices: []string{"com.example.a"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Errors) != 1 || len(out.Successes) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if got := out.Summary(); got != "0 succeeded, 1 failed" {
		t.Fatalf("Summary = %q", got)
	}
}

func TestTurnOffRunsEachDomainAsItsPrincipal(t *testing.T) {
	runner := executortest.New()
	d := newDriver(runner, discovery.Options{})
	req := Request{UID: 502, SystemServices: []string{"com.example.d"}, UserServices: []string{"com.example.a"}, GUI: true}

	if _, err := d.TurnOff(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	calls := runner.Calls()
	if len(calls) != 4 {
		t.Fatalf("calls = %v", runner.Lines())
	}
	if calls[0].Line() != "launchctl bootout system/com.example.d" || calls[0].As != executor.Root() {
		t.Fatalf("system call = %s as %s", calls[0].Line(), calls[0].As)
	}
	if calls[2].Line() != "launchctl bootout gui/502/com.example.a" || calls[2].As != executor.AsUID(502) {
		t.Fatalf("gui call = %s as %s", calls[2].Line(), calls[2].As)
	}
}

func TestTargetsExpansion(t *testing.T) {
	runner := executortest.New().
		On(". -list /Users UniqueID", executortest.Response{Stdout: "_spotlight 89\nalice 501\nbob 503\nnobody -2\n"})
	d := newDriver(runner, discovery.Options{})

	targets, err := d.Targets(context.Background(), Request{
		UID:               501,
		IncludeNonNeeded:  true,
		IncludeSystemUIDs: true,
	})
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	var got []string
	for _, tg := range targets {
		got = append(got, tg.String())
	}
	want := []string{
		"system/com.apple.Siri.agent",
		"system/com.apple.analyticsd",
		"user/501/com.apple.Siri.agent",
		"user/501/com.apple.analyticsd",
		"user/89/com.apple.Siri.agent",
		"user/89/com.apple.analyticsd",
		"user/503/com.apple.Siri.agent",
		"user/503/com.apple.analyticsd",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Targets =\n%v\nwant\n%v", got, want)
	}
}

func TestTargetsSkipAccountSweepWithoutCatalog(t *testing.T) {
	runner := executortest.New()
	d := newDriver(runner, discovery.Options{})

	targets, err := d.Targets(context.Background(), Request{UID: 501, UserServices: []string{"com.example.a"}, IncludeSystemUIDs: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].String() != "user/501/com.example.a" {
		t.Fatalf("Targets = %v", targets)
	}
	if len(runner.Calls()) != 0 {
		t.Fatalf("unexpected dscl call: %v", runner.Lines())
	}
}

func TestBootUpBootstrapsAndSkips(t *testing.T) {
	fsRoot := t.TempDir()
	path := writeDescriptor(t, filepath.Join(fsRoot, "Library", "LaunchDaemons"), "com.example.declared")

	runner := executortest.New().
		On("print system", executortest.Response{Stdout: "system = {\n\tservices = {\n\t\t  88  -  com.example.running\n\t}\n}\n"}).
		On("enable system/com.example.declared", executortest.Response{Exit: launchd.ExitServiceNotFound})
	d := newDriver(runner, discovery.Options{IncludeLibrary: true, FSRoot: fsRoot})

	out, err := d.BootUp(context.Background(), Request{
		UID:            501,
		SystemServices: []string{"com.example.declared", "com.example.running", "com.example.ghost"},
	})
	if err != nil {
		t.Fatalf("BootUp: %v", err)
	}
	if len(out.Errors) != 0 {
		t.Fatalf("errors = %v", out.Errors)
	}
	if len(out.Successes) != 2 || len(out.Skipped) != 1 || out.Skipped[0] != "system/com.example.ghost" {
		t.Fatalf("outcome = %+v", out)
	}
	if runner.Count("bootstrap system "+path) != 1 {
		t.Fatalf("bootstrap not issued: %v", runner.Lines())
	}
	if runner.Count("enable system/com.example.running") != 0 {
		t.Fatal("running target must not be touched")
	}
}

func TestBootUpKickstart(t *testing.T) {
	fsRoot := t.TempDir()
	writeDescriptor(t, filepath.Join(fsRoot, "Library", "LaunchAgents"), "com.example.agent")

	runner := executortest.New()
	d := newDriver(runner, discovery.Options{IncludeLibrary: true, FSRoot: fsRoot})

	out, err := d.BootUp(context.Background(), Request{UID: 501, UserServices: []string{"com.example.agent"}, GUI: true, Kickstart: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Successes) != 1 {
		t.Fatalf("outcome = %+v", out)
	}
	if runner.Count("kickstart gui/501/com.example.agent") != 1 {
		t.Fatalf("kickstart not issued: %v", runner.Lines())
	}
}

func TestBootOutUsesCatalogWithoutDisable(t *testing.T) {
	runner := executortest.New().
		On("bootout user/501/com.apple.analyticsd", executortest.Response{Exit: launchd.ExitNoSuchProcess})
	d := newDriver(runner, discovery.Options{})

	out := d.BootOut(context.Background(), 501, false)
	if len(out.Successes) != 2 || len(out.Errors) != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	for _, line := range runner.Lines() {
		if strings.HasPrefix(line, "disable") {
			t.Fatalf("boot-out must not disable: %v", runner.Lines())
		}
	}
}

func TestMergeUIDs(t *testing.T) {
	got := mergeUIDs([]launchd.UID{501}, []launchd.UID{503, 501, 89, 503})
	if len(got) != 3 || got[0] != 501 || got[1] != 89 || got[2] != 503 {
		t.Fatalf("mergeUIDs = %v", got)
	}
}

func TestTurnOffJournalsEachTarget(t *testing.T) {
	journal, err := audit.NewLogger(filepath.Join(t.TempDir(), "audit.jsonl"), 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	runner := executortest.New().
		On("bootout system/com.example.a", executortest.Response{Exit: launchd.ExitNoSuchProcess}).
		On("bootout system/com.example.b", executortest.Response{Exit: 1})
	d := New(Options{Client: launchd.NewClient(runner, ""), Catalog: testCatalog, Journal: journal})

	if _, err := d.TurnOff(context.Background(), Request{UID: 501, SystemServices: []string{"com.example.a", "com.example.b"}}); err != nil {
		t.Fatal(err)
	}
	journal.Close()

	entries, err := audit.ReadEntries(journal.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Target != "system/com.example.a" || entries[0].Result != audit.ResultOK {
		t.Fatalf("first entry = %+v", entries[0])
	}
	if entries[1].Result != audit.ResultError {
		t.Fatalf("second entry = %+v", entries[1])
	}
}
