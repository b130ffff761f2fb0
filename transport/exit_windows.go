//go:build windows

package transport

import "os/exec"

// exitDetails on Windows: there is no POSIX signal, only an exit code.
func exitDetails(cmd *exec.Cmd, _ error) (code int, signal string) {
	if cmd.ProcessState == nil {
		return -1, ""
	}
	return cmd.ProcessState.ExitCode(), ""
}
