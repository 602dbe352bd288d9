//go:build !windows

package process

import (
	"os"
	"syscall"
)

// sendTerminationSignal sends SIGTERM to the process group (negative PID)
// so the whole process tree is asked to stop.
func sendTerminationSignal(proc *os.Process) error {
	return syscall.Kill(-proc.Pid, syscall.SIGTERM)
}

// forceKill sends SIGKILL to the process group.
func forceKill(proc *os.Process) error {
	return syscall.Kill(-proc.Pid, syscall.SIGKILL)
}
