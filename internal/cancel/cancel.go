// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cancel provides the stop-then-force cancellation controller shared by
// a batch and the process it is running.
//
// A stop request asks the running process to terminate cooperatively. If it has
// not gone after the grace window the controller escalates to a forced stop and
// the process is killed. Requests are monotonic: a controller never returns to
// an earlier state.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// State is the cancellation state of a controller.
type State int32

const (
	// NotRequested is the initial state.
	NotRequested State = iota
	// StopRequested means a cooperative stop was requested.
	StopRequested
	// ForceRequested means running work must be killed.
	ForceRequested
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case NotRequested:
		return "not_requested"
	case StopRequested:
		return "stop_requested"
	case ForceRequested:
		return "force_requested"
	}

	return "unknown"
}

// DefaultGrace is the time between a stop request and the forced stop.
const DefaultGrace = 10 * time.Second

// afterFunc is replaced in tests.
var afterFunc = func(d time.Duration, f func()) stoppable {
	return time.AfterFunc(d, f)
}

type stoppable interface {
	Stop() bool
}

// Controller is safe for concurrent use.
type Controller struct {
	state    atomic.Int32
	grace    time.Duration
	stopping chan struct{}
	forcing  chan struct{}
	stopOnce sync.Once
	fOnce    sync.Once

	mu     sync.Mutex
	timer  stoppable
	closed bool
}

// New creates a controller that escalates a stop request to a forced stop
// after grace. A grace of zero or less forces immediately.
func New(grace time.Duration) *Controller {
	return &Controller{
		grace:    grace,
		stopping: make(chan struct{}),
		forcing:  make(chan struct{}),
	}
}

// RequestStop requests a cooperative stop and arms the escalation timer.
// It returns true only for the call that made the transition.
func (c *Controller) RequestStop() bool {
	if !c.state.CompareAndSwap(int32(NotRequested), int32(StopRequested)) {
		return false
	}

	c.stopOnce.Do(func() { close(c.stopping) })

	if c.grace <= 0 {
		c.Force()
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Force may have won the race for the lock.
	if !c.closed && c.State() == StopRequested {
		c.timer = afterFunc(c.grace, func() { c.Force() })
	}

	return true
}

// Force requests a forced stop. It implies a stop request.
// It returns true only for the call that made the transition.
func (c *Controller) Force() bool {
	for {
		cur := State(c.state.Load())
		if cur == ForceRequested {
			return false
		}

		if c.state.CompareAndSwap(int32(cur), int32(ForceRequested)) {
			break
		}
	}

	c.stopOnce.Do(func() { close(c.stopping) })
	c.fOnce.Do(func() { close(c.forcing) })

	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	return true
}

// State returns the current state without blocking.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// StopRequested reports whether a stop, forced or not, has been requested.
func (c *Controller) StopRequested() bool {
	return c.State() != NotRequested
}

// Stopping is closed when a stop is requested.
func (c *Controller) Stopping() <-chan struct{} {
	return c.stopping
}

// Forcing is closed when a forced stop is requested.
func (c *Controller) Forcing() <-chan struct{} {
	return c.forcing
}

// Grace returns the escalation window.
func (c *Controller) Grace() time.Duration {
	return c.grace
}

// Close disarms the escalation timer. The state is kept.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

type controllerKey struct{}

// WithController returns a context that carries c.
func WithController(ctx context.Context, c *Controller) context.Context {
	return context.WithValue(ctx, controllerKey{}, c)
}

// FromContext returns the controller carried by ctx, or nil.
func FromContext(ctx context.Context) *Controller {
	c, _ := ctx.Value(controllerKey{}).(*Controller)
	return c
}
