//go:build !unix

package invoke

import "os/exec"

// KillProcessGroup is a no-op; the default cancel kills the direct child only.
func KillProcessGroup(*exec.Cmd) {}
