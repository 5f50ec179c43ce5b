// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build !unix

package procrun

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr {
	return nil
}

// processSignaller has no cooperative signal to send, so terminate kills.
type processSignaller struct {
	ps *os.Process
}

func newSignaller(ps *os.Process) signaller {
	return processSignaller{ps: ps}
}

func (p processSignaller) Terminate() error {
	return p.ps.Kill()
}

func (p processSignaller) Kill() error {
	return p.ps.Kill()
}

func exitSignal(_ *os.ProcessState) (string, bool) {
	return "", false
}
