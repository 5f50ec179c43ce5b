// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package progress

import (
	"time"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
)

// Event represents a real-time update from a batch.
// Events are emitted throughout the batch lifecycle to provide
// feedback for the TUI and other observers.
type Event struct {
	Seq       uint64    // Monotonic sequence number, assigned by the Sequencer.
	Type      EventType // Event type indicating what happened
	Timestamp time.Time // When the event occurred
	Item      string    // Item ID, empty for batch level events
	Phase     string    // Phase name, empty for item and batch level events
	Message   string    // Human-readable status message
	Progress  Position  // Where in the batch the event happened
	Data      EventData // Type-specific data
}

// Position locates an event in the batch. Indices are 0-based.
type Position struct {
	ItemIndex  int
	ItemCount  int
	PhaseIndex int
	PhaseCount int
	Percent    int
}

// EventType represents the type of progress event.
type EventType int

const (
	// EventProgress carries an updated overall percentage.
	EventProgress EventType = iota
	// EventLog is a free text status line, e.g. "=== PROCESSING: sub-01 ===".
	EventLog
	// EventOutput indicates a new stdout/stderr line from the running process.
	EventOutput
	// EventPhaseStarted indicates a phase is about to run.
	EventPhaseStarted
	// EventPhaseCompleted indicates a phase succeeded.
	EventPhaseCompleted
	// EventPhaseSkipped indicates a phase was skipped because its output already exists.
	EventPhaseSkipped
	// EventPhaseFailed indicates a phase failed.
	EventPhaseFailed
	// EventStopping indicates the running process has been asked to terminate.
	EventStopping
	// EventForcing indicates the running process is being killed.
	EventForcing
	// EventItemResult carries the terminal result of an item.
	EventItemResult
	// EventBatchStarted indicates the batch worker has started.
	EventBatchStarted
	// EventBatchReport carries the final report. It is always the last event of a batch.
	EventBatchReport
)

// String implements the Stringer interface for EventType.
func (et EventType) String() string {
	switch et {
	case EventProgress:
		return "progress"
	case EventLog:
		return "log"
	case EventOutput:
		return "output"
	case EventPhaseStarted:
		return "phase_started"
	case EventPhaseCompleted:
		return "phase_completed"
	case EventPhaseSkipped:
		return "phase_skipped"
	case EventPhaseFailed:
		return "phase_failed"
	case EventStopping:
		return "stopping"
	case EventForcing:
		return "forcing"
	case EventItemResult:
		return "item_result"
	case EventBatchStarted:
		return "batch_started"
	case EventBatchReport:
		return "batch_report"
	default:
		return "unknown"
	}
}

// EventData contains type-specific information for progress events.
type EventData struct {
	// For EventOutput
	OutputLine string // The actual output line
	IsStderr   bool   // True if this is stderr output

	// For EventPhaseCompleted/EventPhaseFailed
	ExitCode int                  // Process exit code
	Kind     pipeline.FailureKind // Failure classification
	Error    error                // Error if the phase failed
	Artifact string               // Produced artifact path

	// For EventItemResult
	Result *pipeline.ItemResult

	// For EventBatchReport
	Report *pipeline.Report
}

// Reporter is the interface for sending progress events.
type Reporter interface {
	// Report sends a progress event.
	Report(event Event)
	// Close signals that no more events will be sent and cleans up resources.
	Close()
}

// Listener receives progress events.
// TUI implementations and other monitoring systems implement this interface.
type Listener interface {
	// OnEvent is called when a progress event is received.
	// Implementations should handle events quickly to avoid blocking
	// the reporting goroutine.
	OnEvent(event Event)
}

// NullReporter is a no-op implementation of Reporter.
// Used when progress reporting is not needed.
type NullReporter struct{}

// Report implements Reporter.Report by doing nothing.
func (nr *NullReporter) Report(_ Event) {}

// Close implements Reporter.Close by doing nothing.
func (nr *NullReporter) Close() {}

// NewNullReporter creates a new NullReporter.
func NewNullReporter() Reporter {
	return &NullReporter{}
}

// FuncReporter adapts a function to the Reporter interface.
type FuncReporter func(Event)

// Report calls f(event).
func (f FuncReporter) Report(event Event) {
	f(event)
}

// Close does nothing.
func (f FuncReporter) Close() {}
