// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"slices"
	"sync"
	"time"
)

// ChannelReporter implements Reporter using a Go channel.
// Report blocks while the buffer is full so observers see every event in
// order. After Close, Report drops events.
type ChannelReporter struct {
	ch     chan Event
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

// NewChannelReporter creates a new ChannelReporter with the specified buffer size.
func NewChannelReporter(ctx context.Context, bufferSize int) *ChannelReporter {
	reporterCtx, cancel := context.WithCancel(ctx)

	return &ChannelReporter{
		ch:     make(chan Event, bufferSize),
		ctx:    reporterCtx,
		cancel: cancel,
	}
}

// Report implements Reporter.Report.
func (cr *ChannelReporter) Report(event Event) {
	cr.mu.RLock()
	defer cr.mu.RUnlock()

	if cr.closed {
		return
	}

	select {
	case cr.ch <- event:
	case <-cr.ctx.Done():
		// Reporter is closing, drop the event
	}
}

// Close implements Reporter.Close.
// It cancels the context, closes the channel and waits for listeners to
// drain the remaining buffered events.
func (cr *ChannelReporter) Close() {
	cr.once.Do(func() {
		cr.cancel()
		cr.mu.Lock()
		cr.closed = true
		close(cr.ch)
		cr.mu.Unlock()
		cr.wg.Wait()
	})
}

// Listen forwards events to the provided listener on a new goroutine until the
// reporter is closed and its buffer is drained.
func (cr *ChannelReporter) Listen(listener Listener) {
	cr.wg.Add(1)

	go func() {
		defer cr.wg.Done()

		for event := range cr.ch {
			listener.OnEvent(event)
		}
	}()
}

// Events returns a read-only channel of progress events.
// Useful when you want to handle events manually instead of using a listener.
func (cr *ChannelReporter) Events() <-chan Event {
	return cr.ch
}

// Context returns the reporter's context.
// The context is cancelled when the reporter is closed.
func (cr *ChannelReporter) Context() context.Context {
	return cr.ctx
}

// Sequencer stamps each event with the next sequence number and, when unset,
// the current time before passing it on. It serialises concurrent reporters.
type Sequencer struct {
	next Reporter
	mu   sync.Mutex
	seq  uint64
	now  func() time.Time
}

// NewSequencer wraps next. A nil next is treated as a NullReporter.
func NewSequencer(next Reporter) *Sequencer {
	if next == nil {
		next = NewNullReporter()
	}

	return &Sequencer{next: next, now: time.Now}
}

// Report implements Reporter.Report.
func (s *Sequencer) Report(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	event.Seq = s.seq

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	s.next.Report(event)
}

// Close closes the wrapped reporter.
func (s *Sequencer) Close() {
	s.next.Close()
}

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report implements Reporter.Report.
func (r *Recorder) Report(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

// Close implements Reporter.Close.
func (r *Recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

// Closed reports whether Close has been called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.closed
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.events)
}

// OfType returns the recorded events of the given types, in order.
func (r *Recorder) OfType(types ...EventType) []Event {
	var out []Event

	for _, e := range r.Events() {
		if slices.Contains(types, e.Type) {
			out = append(out, e)
		}
	}

	return out
}

// Tee sends every event to each of its reporters in order.
type Tee []Reporter

// Report implements Reporter.Report.
func (t Tee) Report(event Event) {
	for _, r := range t {
		r.Report(event)
	}
}

// Close closes every reporter.
func (t Tee) Close() {
	for _, r := range t {
		r.Close()
	}
}

type reporterKey struct{}

// WithReporter returns a context that carries r.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// FromContext returns the reporter carried by ctx, or a NullReporter.
func FromContext(ctx context.Context) Reporter {
	r, ok := ctx.Value(reporterKey{}).(Reporter)
	if !ok || r == nil {
		return NewNullReporter()
	}

	return r
}
