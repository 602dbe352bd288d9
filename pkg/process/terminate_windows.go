//go:build windows

package process

import (
	"os"
	"syscall"
)

// sendTerminationSignal delivers CTRL_BREAK to the child's process group,
// the closest Windows analog of SIGTERM for console processes.
func sendTerminationSignal(proc *os.Process) error {
	kernel32, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return err
	}
	generateEvent, err := kernel32.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}
	r, _, callErr := generateEvent.Call(uintptr(syscall.CTRL_BREAK_EVENT), uintptr(proc.Pid))
	if r == 0 {
		return callErr
	}
	return nil
}

// forceKill terminates the process unconditionally.
func forceKill(proc *os.Process) error {
	return proc.Kill()
}
