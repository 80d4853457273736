//go:build unix

package invoke

import (
	"os/exec"
	"syscall"
)

// KillProcessGroup starts the command in its own process group and makes
// context cancellation kill the whole group, so wrappers such as
// "bash -lc" cannot leave a search process running after a timeout.
func KillProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
