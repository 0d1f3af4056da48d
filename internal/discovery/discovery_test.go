package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/breeze-rmm/adm/internal/launchd"
)

const xmlPlist = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>/usr/libexec/example</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`

const unlabeledPlist = `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
	<key>Program</key>
	<string>/usr/libexec/unlabeled</string>
</dict>
</plist>
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func labeled(label string) string {
	return fmt.Sprintf(xmlPlist, label)
}

func fixtureTree(t *testing.T) (fsRoot, home string) {
	t.Helper()
	fsRoot = t.TempDir()
	home = filepath.Join(fsRoot, "Users", "alice")

	writeFile(t, filepath.Join(home, "Library/LaunchAgents/com.alice.sync.plist"), labeled("com.alice.sync"))
	writeFile(t, filepath.Join(fsRoot, "Library/LaunchDaemons/a.broken.plist"), "bplist00garbage")
	writeFile(t, filepath.Join(fsRoot, "Library/LaunchDaemons/b.vendor.helper.plist"), labeled("com.vendor.helper"))
	writeFile(t, filepath.Join(fsRoot, "Library/LaunchDaemons/c.unlabeled.plist"), unlabeledPlist)
	writeFile(t, filepath.Join(fsRoot, "Library/LaunchDaemons/README.txt"), "not a descriptor")
	writeFile(t, filepath.Join(fsRoot, "System/Library/LaunchAgents/com.apple.photoanalysisd.plist"), labeled("com.apple.photoanalysisd"))
	if err := os.MkdirAll(filepath.Join(fsRoot, "Library/LaunchAgents/nested.plist"), 0o755); err != nil {
		t.Fatal(err)
	}
	return fsRoot, home
}

func TestDiscoverSkipsCorruptDescriptors(t *testing.T) {
	fsRoot, home := fixtureTree(t)

	descs, err := Discover(Options{IncludeUser: true, IncludeLibrary: true, IncludeSystem: true, Home: home, FSRoot: fsRoot})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	var labels []string
	for _, d := range descs {
		labels = append(labels, d.Label)
	}
	want := []string{"com.alice.sync", "com.vendor.helper", "c.unlabeled", "com.apple.photoanalysisd"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}

	if descs[0].Kind != KindAgent || descs[0].Scope != ScopeUser {
		t.Fatalf("unexpected kind/scope for user agent: %+v", descs[0])
	}
	if descs[1].Kind != KindDaemon || descs[1].Scope != ScopeLibrary {
		t.Fatalf("unexpected kind/scope for library daemon: %+v", descs[1])
	}
	if descs[1].Properties["RunAtLoad"] != true {
		t.Fatalf("expected decoded properties, got %v", descs[1].Properties)
	}
}

func TestDiscoverHonorsScopeToggles(t *testing.T) {
	fsRoot, home := fixtureTree(t)

	descs, err := Discover(Options{IncludeSystem: true, Home: home, FSRoot: fsRoot})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(descs) != 1 || descs[0].Label != "com.apple.photoanalysisd" {
		t.Fatalf("expected only the system agent, got %+v", descs)
	}

	descs, err = Discover(Options{Home: home, FSRoot: fsRoot})
	if err != nil || len(descs) != 0 {
		t.Fatalf("no roots selected should yield nothing, got %v, %v", descs, err)
	}
}

func TestDiscoverMissingRootsAreSkipped(t *testing.T) {
	descs, err := Discover(Options{IncludeUser: true, IncludeLibrary: true, Home: filepath.Join(t.TempDir(), "nobody"), FSRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("missing roots should not fail: %v", err)
	}
	if len(descs) != 0 {
		t.Fatalf("expected no descriptors, got %v", descs)
	}
}

func TestDescriptorDomain(t *testing.T) {
	if got := (Descriptor{Kind: KindDaemon}).Domain(501); got != launchd.System() {
		t.Fatalf("daemon domain = %v", got)
	}
	if got := (Descriptor{Kind: KindAgent}).Domain(502); got != launchd.GUI(502) {
		t.Fatalf("agent domain = %v", got)
	}
}

func TestIndexFirstWins(t *testing.T) {
	idx := Index([]Descriptor{
		{Label: "com.example.a", Path: "/Users/alice/Library/LaunchAgents/a.plist"},
		{Label: "com.example.a", Path: "/Library/LaunchAgents/a.plist"},
	})
	if idx["com.example.a"].Path != "/Users/alice/Library/LaunchAgents/a.plist" {
		t.Fatalf("unexpected index entry %+v", idx["com.example.a"])
	}
	if got := FindLabel([]Descriptor{{Label: "x"}, {Label: "y"}, {Label: "x"}}, "x"); len(got) != 2 {
		t.Fatalf("FindLabel found %d", len(got))
	}
}
