//go:build !windows

package transport

import (
	"os/exec"
	"syscall"
)

// exitDetails extracts the exit code and, on a signal-terminated process,
// the signal name, from a finished exec.Cmd and the error Wait returned.
func exitDetails(cmd *exec.Cmd, _ error) (code int, signal string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return -1, ws.Signal().String()
	}
	return cmd.ProcessState.ExitCode(), ""
}
