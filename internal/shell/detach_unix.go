//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

// detach puts the child in its own process group so signals aimed at the
// bridge do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
