//go:build !windows

package privilege

import (
	"errors"
	"os/exec"

	"golang.org/x/sys/unix"
)

// DefaultSudoPath is where macOS ships sudo.
const DefaultSudoPath = "/usr/bin/sudo"

// ErrNoEscalation is returned when a command needs another identity and no
// usable sudo binary exists.
var ErrNoEscalation = errors.New("privilege: no escalation path available")

// IsRunningAsRoot returns true if the process runs with effective UID 0.
func IsRunningAsRoot() bool {
	return unix.Geteuid() == 0
}

// EffectiveUID returns the effective uid of the running process.
func EffectiveUID() int {
	return unix.Geteuid()
}

// SudoAvailable reports whether path points to an executable sudo binary.
// An empty path falls back to DefaultSudoPath, then to a PATH lookup.
func SudoAvailable(path string) (string, bool) {
	if path == "" {
		path = DefaultSudoPath
	}
	if unix.Access(path, unix.X_OK) == nil {
		return path, true
	}
	if found, err := exec.LookPath("sudo"); err == nil {
		return found, true
	}
	return "", false
}
