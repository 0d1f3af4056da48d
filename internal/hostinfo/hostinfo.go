// Package hostinfo describes the machine adm runs on, for the doctor
// command and for debug logging at startup.
package hostinfo

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/breeze-rmm/adm/internal/privilege"
)

// Tool is an external binary adm depends on.
type Tool struct {
	Name string
	Path string
	OK   bool
}

// Info is a point-in-time host description.
type Info struct {
	Hostname       string
	OSType         string
	OSVersion      string
	ProductVersion string
	KernelVersion  string
	Architecture   string

	EUID     int
	Root     bool
	SudoPath string
	SudoOK   bool

	Tools []Tool
}

// Tools adm shells out to, by default location.
var requiredTools = []string{"/bin/launchctl", "/usr/bin/dscl"}

// Collect gathers host details. Lookups that fail leave their fields
// empty rather than failing the whole report.
func Collect(ctx context.Context, sudoPath string) Info {
	info := Info{
		Architecture: runtime.GOARCH,
		EUID:         privilege.EffectiveUID(),
		Root:         privilege.IsRunningAsRoot(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hostInfo.Hostname
		info.OSType = normalizeOSType(hostInfo.OS)
		info.OSVersion = hostInfo.Platform + " " + hostInfo.PlatformVersion
		info.KernelVersion = hostInfo.KernelVersion
	}
	info.ProductVersion = productVersion()

	info.SudoPath, info.SudoOK = privilege.SudoAvailable(sudoPath)

	for _, path := range requiredTools {
		resolved, err := exec.LookPath(path)
		info.Tools = append(info.Tools, Tool{Name: path, Path: resolved, OK: err == nil})
	}
	return info
}

// Problems lists the conditions that keep adm from acting on every domain.
func (i Info) Problems() []string {
	var out []string
	if i.OSType != "" && i.OSType != "macos" {
		out = append(out, "not running on macOS: launchctl domains are unavailable")
	}
	if !i.Root && !i.SudoOK {
		out = append(out, "not root and sudo is unavailable: system and other-user domains cannot be changed")
	}
	for _, t := range i.Tools {
		if !t.OK {
			out = append(out, t.Name+" not found")
		}
	}
	return out
}

func normalizeOSType(os string) string {
	if os == "darwin" {
		return "macos"
	}
	return os
}
