// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package procrun

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeSignaller struct {
	calls []string
	err   error
}

func (f *fakeSignaller) Terminate() error {
	f.calls = append(f.calls, "terminate")
	return f.err
}

func (f *fakeSignaller) Kill() error {
	f.calls = append(f.calls, "kill")
	return f.err
}

func TestSupervisor_TerminateThenKill(t *testing.T) {
	ctx := context.Background()
	sig := &fakeSignaller{}
	sup := newSupervisor(sig, 42)

	assert.Equal(t, stageRunning, sup.current())
	assert.True(t, sup.terminate(ctx, "timeout"))
	assert.Equal(t, stageTerminating, sup.current())

	// A second terminate is a no-op.
	assert.False(t, sup.terminate(ctx, "stop requested"))

	assert.True(t, sup.kill(ctx, "grace elapsed"))
	assert.Equal(t, stageKilled, sup.current())

	assert.False(t, sup.kill(ctx, "force requested"))
	assert.False(t, sup.terminate(ctx, "stop requested"))

	assert.Equal(t, []string{"terminate", "kill"}, sig.calls)
}

func TestSupervisor_KillWithoutTerminate(t *testing.T) {
	sig := &fakeSignaller{err: os.ErrProcessDone}
	sup := newSupervisor(sig, 42)

	assert.True(t, sup.kill(context.Background(), "context done"))
	assert.False(t, sup.terminate(context.Background(), "timeout"))
	assert.Equal(t, []string{"kill"}, sig.calls)
}

func TestStage_String(t *testing.T) {
	assert.Equal(t, "running", stageRunning.String())
	assert.Equal(t, "terminating", stageTerminating.String())
	assert.Equal(t, "killed", stageKilled.String())
	assert.Equal(t, "unknown", stage(7).String())
}
