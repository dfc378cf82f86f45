//go:build windows

package process

import (
	"fmt"
	"syscall"
)

var (
	kernel32            = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess     = kernel32.NewProc("OpenProcess")
	procTerminateProc   = kernel32.NewProc("TerminateProcess")
	procCloseHandle     = kernel32.NewProc("CloseHandle")
	processTerminateBit = uint32(0x0001)
)

// Windows has no SIGTERM equivalent for arbitrary processes; both terminate
// and force-kill map to TerminateProcess. The distinction still matters to
// callers: Terminate() gives the watched grace-period wait a chance to
// observe exit before ForceKill() would be invoked.
func terminateProcess(pid int) error {
	return winKill(pid)
}

func forceKillProcess(pid int) error {
	return winKill(pid)
}

func winKill(pid int) error {
	h, _, _ := procOpenProcess.Call(uintptr(processTerminateBit), 0, uintptr(pid))
	if h == 0 {
		return fmt.Errorf("process: open process %d for termination", pid)
	}
	defer func() { _, _, _ = procCloseHandle.Call(h) }()

	ok, _, err := procTerminateProc.Call(h, 1)
	if ok == 0 {
		return fmt.Errorf("process: terminate pid %d: %w", pid, err)
	}
	return nil
}
