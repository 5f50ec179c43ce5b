// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Item is one unit of batch work, either an input file or a patient directory.
type Item struct {
	ID        string            `json:"id"`                  // Unique identifier within the batch.
	Label     string            `json:"label,omitempty"`     // Display name, defaults to ID.
	Path      string            `json:"path"`                // Source file or patient directory.
	WorkDir   string            `json:"work_dir"`            // Directory the phases read from and write to.
	Params    map[string]string `json:"params,omitempty"`    // Item specific parameters, override definition params.
	Artifacts map[string]string `json:"artifacts,omitempty"` // Files known to exist before the first phase.
}

// DisplayName returns the label of the item, falling back to its ID.
func (i Item) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}

	return i.ID
}

// Stem returns the file name of path without its NIfTI or other extension.
func Stem(path string) string {
	base := filepath.Base(path)
	for _, ext := range []string{".nii.gz", ".tar.gz"} {
		if strings.HasSuffix(base, ext) {
			return strings.TrimSuffix(base, ext)
		}
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ItemStatus is the terminal state of an item.
type ItemStatus int

const (
	// StatusPending means the item has not reached a terminal state.
	StatusPending ItemStatus = iota
	// StatusSucceeded means every phase completed.
	StatusSucceeded
	// StatusFailed means a phase failed, or the batch aborted before the item ran.
	StatusFailed
	// StatusCancelled means a stop was requested before or during the item.
	StatusCancelled
)

var itemStatusNames = map[ItemStatus]string{
	StatusPending:   "pending",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
	StatusCancelled: "cancelled",
}

// String implements fmt.Stringer.
func (s ItemStatus) String() string {
	if n, ok := itemStatusNames[s]; ok {
		return n
	}

	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (s ItemStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ItemStatus) UnmarshalText(b []byte) error {
	for k, v := range itemStatusNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}

	return fmt.Errorf("unknown item status %q", string(b))
}

// FailureKind classifies why a phase, and therefore its item, did not succeed.
type FailureKind int

const (
	// FailureNone is the zero value and means no failure.
	FailureNone FailureKind = iota
	// FailureStartFailed means the process could not be spawned or its command could not be built.
	FailureStartFailed
	// FailureCrashed means the process was terminated by a signal the runner did not send.
	FailureCrashed
	// FailureTimedOut means the process exceeded its phase timeout.
	FailureTimedOut
	// FailureWriteError means writing to the standard input of the process failed.
	FailureWriteError
	// FailureReadError means reading the output streams of the process failed.
	FailureReadError
	// FailureMissingArtifact means an expected input or output file was not found.
	FailureMissingArtifact
	// FailureUnknownError means the process exited with an unclassified non-zero code.
	FailureUnknownError
	// FailureCancelled means a stop was observed before or during the phase.
	FailureCancelled
	// FailureFatalSetup means the output root or an item workspace could not be prepared.
	FailureFatalSetup
)

var failureKindNames = map[FailureKind]string{
	FailureNone:            "none",
	FailureStartFailed:     "start_failed",
	FailureCrashed:         "crashed",
	FailureTimedOut:        "timed_out",
	FailureWriteError:      "write_error",
	FailureReadError:       "read_error",
	FailureMissingArtifact: "missing_artifact",
	FailureUnknownError:    "unknown_error",
	FailureCancelled:       "cancelled",
	FailureFatalSetup:      "fatal_setup",
}

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	if n, ok := failureKindNames[k]; ok {
		return n
	}

	return "unknown"
}

// Description returns the user facing message for the failure kind.
func (k FailureKind) Description() string {
	switch k {
	case FailureNone:
		return ""
	case FailureStartFailed:
		return "Failed to start process"
	case FailureCrashed:
		return "Process crashed"
	case FailureTimedOut:
		return "Process timed out"
	case FailureWriteError:
		return "Write error"
	case FailureReadError:
		return "Read error"
	case FailureMissingArtifact:
		return "Expected file not found"
	case FailureUnknownError:
		return "Unknown error"
	case FailureCancelled:
		return "Processing cancelled by user"
	case FailureFatalSetup:
		return "Workspace could not be prepared"
	}

	return "Unknown error"
}

// MarshalText implements encoding.TextMarshaler.
func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *FailureKind) UnmarshalText(b []byte) error {
	for key, v := range failureKindNames {
		if v == string(b) {
			*k = key
			return nil
		}
	}

	return fmt.Errorf("unknown failure kind %q", string(b))
}

// ItemResult is the terminal record of one item. It is created once, when the
// item finishes, and never changed afterwards.
type ItemResult struct {
	Item              Item              `json:"item"`
	Status            ItemStatus        `json:"status"`
	FailingPhase      string            `json:"failing_phase,omitempty"`
	FailingPhaseIndex int               `json:"failing_phase_index"` // -1 when no phase failed
	Kind              FailureKind       `json:"kind"`
	ExitCode          int               `json:"exit_code,omitempty"`
	Detail            string            `json:"detail,omitempty"`
	Artifacts         map[string]string `json:"artifacts,omitempty"`
	Started           bool              `json:"started"`
	StartedAt         time.Time         `json:"started_at,omitzero"`
	FinishedAt        time.Time         `json:"finished_at,omitzero"`
}

// Duration returns how long the item ran.
func (r ItemResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// BatchState is the state of the batch state machine.
type BatchState int

const (
	// StateIdle is a batch that has not started.
	StateIdle BatchState = iota
	// StateRunning is a batch whose worker is processing items.
	StateRunning
	// StateCompleted is a batch where every item reached a terminal state without a stop.
	StateCompleted
	// StateCancelled is a batch that was stopped by the user.
	StateCancelled
	// StateFatal is a batch that aborted because its workspace could not be prepared.
	StateFatal
)

var batchStateNames = map[BatchState]string{
	StateIdle:      "idle",
	StateRunning:   "running",
	StateCompleted: "completed",
	StateCancelled: "cancelled",
	StateFatal:     "fatal",
}

// String implements fmt.Stringer.
func (s BatchState) String() string {
	if n, ok := batchStateNames[s]; ok {
		return n
	}

	return "unknown"
}

// Terminal reports whether the batch can no longer change state.
func (s BatchState) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFatal
}

// MarshalText implements encoding.TextMarshaler.
func (s BatchState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BatchState) UnmarshalText(b []byte) error {
	for k, v := range batchStateNames {
		if v == string(b) {
			*s = k
			return nil
		}
	}

	return fmt.Errorf("unknown batch state %q", string(b))
}
