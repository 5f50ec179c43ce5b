// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEventType_String(t *testing.T) {
	tests := []struct {
		eventType EventType
		expected  string
	}{
		{EventProgress, "progress"},
		{EventLog, "log"},
		{EventOutput, "output"},
		{EventPhaseStarted, "phase_started"},
		{EventPhaseCompleted, "phase_completed"},
		{EventPhaseSkipped, "phase_skipped"},
		{EventPhaseFailed, "phase_failed"},
		{EventStopping, "stopping"},
		{EventForcing, "forcing"},
		{EventItemResult, "item_result"},
		{EventBatchStarted, "batch_started"},
		{EventBatchReport, "batch_report"},
		{EventType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.eventType.String())
		})
	}
}

func TestNullReporter(t *testing.T) {
	reporter := NewNullReporter()
	require.NotNil(t, reporter)

	// These should not panic
	reporter.Report(Event{Type: EventLog, Message: "test message"})
	reporter.Close()
}

func TestChannelReporter(t *testing.T) {
	defer goleak.VerifyNone(t)

	reporter := NewChannelReporter(context.Background(), 10)

	event := Event{Type: EventPhaseStarted, Item: "sub-01", Phase: "skullstrip"}
	reporter.Report(event)

	select {
	case got := <-reporter.Events():
		assert.Equal(t, event, got)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Event not received within timeout")
	}

	reporter.Close()
	assert.Error(t, reporter.Context().Err())

	// Closed reporter drops events
	reporter.Report(Event{Type: EventLog, Message: "Should be dropped"})
}

func TestChannelReporter_BlockedReportReleasedByClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	reporter := NewChannelReporter(context.Background(), 1)
	reporter.Report(Event{Type: EventLog, Message: "fills the buffer"})

	done := make(chan struct{})

	go func() {
		defer close(done)
		reporter.Report(Event{Type: EventLog, Message: "blocks"})
	}()

	time.Sleep(20 * time.Millisecond)

	select {
	case <-done:
		t.Fatal("Report returned while the buffer was full")
	default:
	}

	reporter.Close()
	<-done
}

type mockListener struct {
	mu     sync.Mutex
	events []Event
}

func (ml *mockListener) OnEvent(event Event) {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	ml.events = append(ml.events, event)
}

func TestChannelReporter_ListenDeliversEverythingInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	reporter := NewChannelReporter(context.Background(), 2)
	listener := &mockListener{}
	reporter.Listen(listener)

	seq := NewSequencer(reporter)
	for range 50 {
		seq.Report(Event{Type: EventOutput})
	}

	reporter.Close()

	require.Len(t, listener.events, 50)

	for i, e := range listener.events {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.False(t, e.Timestamp.IsZero())
	}
}

func TestSequencer_Concurrent(t *testing.T) {
	rec := NewRecorder()
	seq := NewSequencer(rec)

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				seq.Report(Event{Type: EventOutput})
			}
		}()
	}

	wg.Wait()
	seq.Close()

	events := rec.Events()
	require.Len(t, events, 800)

	for i, e := range events {
		assert.Equal(t, uint64(i+1), e.Seq)
	}

	assert.True(t, rec.Closed())
}

func TestTeeAndFuncReporter(t *testing.T) {
	a := NewRecorder()

	var got []EventType

	tee := Tee{a, FuncReporter(func(e Event) { got = append(got, e.Type) })}
	tee.Report(Event{Type: EventLog})
	tee.Report(Event{Type: EventProgress})
	tee.Close()

	assert.Len(t, a.Events(), 2)
	assert.Len(t, a.OfType(EventProgress), 1)
	assert.Equal(t, []EventType{EventLog, EventProgress}, got)
	assert.True(t, a.Closed())
}

func TestContextReporter(t *testing.T) {
	assert.IsType(t, &NullReporter{}, FromContext(context.Background()))

	rec := NewRecorder()
	ctx := WithReporter(context.Background(), rec)
	FromContext(ctx).Report(Event{Type: EventLog})

	assert.Len(t, rec.Events(), 1)
}
