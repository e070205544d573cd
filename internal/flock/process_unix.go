//go:build unix

package flock

import (
	"os"
	"syscall"
)

// Signal 0 performs the existence and permission checks without delivering anything.
func processIsRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
