//go:build unix

package executor

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the command as the leader of a new process group
// so a timeout can take down sudo and launchctl together.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = sysProcAttr()
}

// killProcessGroup sends SIGKILL to the command's process group, falling
// back to the process itself when the group is gone.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(cmd.Process.Pid)
	if err != nil {
		return cmd.Process.Kill()
	}
	return unix.Kill(-pgid, unix.SIGKILL)
}
