//go:build darwin

package hostinfo

import "golang.org/x/sys/unix"

// productVersion returns the marketing version, e.g. "14.5".
func productVersion() string {
	v, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return ""
	}
	return v
}
