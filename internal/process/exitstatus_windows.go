//go:build windows

package process

import "os"

func extractExitStatus(state *os.ProcessState, waitErr error) ExitStatus {
	if state == nil {
		return ExitStatus{ExitCode: -1, Err: waitErr}
	}
	return ExitStatus{ExitCode: state.ExitCode(), Err: waitErr}
}
