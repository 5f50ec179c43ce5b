// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package procrun

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
)

// stage is the supervision stage of a running process.
type stage int

const (
	stageRunning stage = iota
	stageTerminating
	stageKilled
)

func (s stage) String() string {
	switch s {
	case stageRunning:
		return "running"
	case stageTerminating:
		return "terminating"
	case stageKilled:
		return "killed"
	}

	return "unknown"
}

// signaller delivers termination signals to a process (group).
type signaller interface {
	Terminate() error
	Kill() error
}

// supervisor moves a process through running -> terminating -> killed.
// Each step is taken at most once and never in reverse.
type supervisor struct {
	mu    sync.Mutex
	stage stage
	sig   signaller
	pid   int
}

func newSupervisor(sig signaller, pid int) *supervisor {
	return &supervisor{sig: sig, pid: pid}
}

// terminate asks the process to exit. It returns false when the process is
// already terminating or killed.
func (s *supervisor) terminate(ctx context.Context, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage != stageRunning {
		return false
	}

	s.stage = stageTerminating
	logSignalErr(ctx, s.sig.Terminate(), "terminate", reason, s.pid)

	return true
}

// kill forcefully stops the process. It returns false when it was already killed.
func (s *supervisor) kill(ctx context.Context, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stage == stageKilled {
		return false
	}

	s.stage = stageKilled
	logSignalErr(ctx, s.sig.Kill(), "kill", reason, s.pid)

	return true
}

func (s *supervisor) current() stage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stage
}

func logSignalErr(ctx context.Context, err error, action, reason string, pid int) {
	logger := ctxlog.Logger(ctx).With("pid", pid, "reason", reason)

	switch {
	case err == nil:
		logger.Info("process " + action + " sent")
	case errors.Is(err, os.ErrProcessDone):
		logger.Debug("process already done")
	default:
		logger.Error("process "+action+" error", "error", err)
	}
}
