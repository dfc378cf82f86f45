//go:build !windows

package process

import (
	"os"
	"syscall"
)

func extractExitStatus(state *os.ProcessState, waitErr error) ExitStatus {
	if state == nil {
		return ExitStatus{ExitCode: -1, Err: waitErr}
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return ExitStatus{ExitCode: state.ExitCode(), Err: waitErr}
	}
	if ws.Signaled() {
		return ExitStatus{
			ExitCode: -1,
			Signaled: true,
			Signal:   ws.Signal().String(),
			Err:      waitErr,
		}
	}
	return ExitStatus{ExitCode: ws.ExitStatus(), Err: waitErr}
}
