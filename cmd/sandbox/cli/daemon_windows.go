//go:build windows

package cli

import (
	"errors"
	"os"
	"os/exec"
)

// setSysProcAttr is a no-op on Windows; the child keeps the parent's console
// settings.
func setSysProcAttr(cmd *exec.Cmd) {}

// isProcessRunning reports whether pid names a live process. Windows has no
// signal 0, so an interrupt is sent and ErrProcessDone taken as "gone".
func isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(os.Interrupt)
	return err == nil || !errors.Is(err, os.ErrProcessDone)
}

// stopProcess kills the process; Windows has no SIGTERM.
func stopProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}
