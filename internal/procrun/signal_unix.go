// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build unix

package procrun

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the child in its own process group so tools that fork
// helpers are stopped as a whole.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

type groupSignaller struct {
	pid int
}

func newSignaller(ps *os.Process) signaller {
	return groupSignaller{pid: ps.Pid}
}

func (g groupSignaller) Terminate() error {
	return signalGroup(g.pid, unix.SIGTERM)
}

func (g groupSignaller) Kill() error {
	return signalGroup(g.pid, unix.SIGKILL)
}

func signalGroup(pid int, sig syscall.Signal) error {
	err := unix.Kill(-pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}

	return err //nolint:wrapcheck
}

// exitSignal returns the name of the signal that terminated the process.
func exitSignal(state *os.ProcessState) (string, bool) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() {
		return "", false
	}

	return unix.SignalName(ws.Signal()), true
}
