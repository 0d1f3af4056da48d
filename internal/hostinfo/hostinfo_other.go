//go:build !darwin

package hostinfo

import "golang.org/x/sys/unix"

// productVersion returns the kernel release outside macOS.
func productVersion() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}
