// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package batch runs a pipeline definition over an ordered list of items.
// Items and their phases run strictly one after the other on a single worker,
// so at most one external process is alive per batch.
package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matt-FFFFFF/nipipe/internal/cancel"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/phase"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/spf13/afero"
)

var (
	// ErrNoItems is returned when a batch is started without items.
	ErrNoItems = errors.New("no items to process")
	// ErrNoDefinition is returned when a batch is started without a pipeline definition.
	ErrNoDefinition = errors.New("no pipeline definition")
	// ErrAlreadyStarted is returned when an orchestrator is started a second time.
	ErrAlreadyStarted = errors.New("batch already started")
	// ErrFatalSetup is the cause recorded when the output root or an item workspace cannot be prepared.
	ErrFatalSetup = errors.New("workspace could not be prepared")
	// ErrOutputRootMissing is returned when the output root disappears during a batch.
	ErrOutputRootMissing = errors.New("output root does not exist")
)

// now is the clock used for result timestamps.
var now = time.Now

// newBatchID generates batch identifiers.
var newBatchID = uuid.NewString

// PhaseExecutor runs one phase of one item.
type PhaseExecutor interface {
	Execute(ctx context.Context, item pipeline.Item, spec *pipeline.PhaseSpec, state phase.State) phase.Result
}

var _ PhaseExecutor = (*phase.Executor)(nil)

// SetupFunc prepares the output root before the first item runs. The returned
// release func, if any, is called when the batch ends.
type SetupFunc func(ctx context.Context, fs afero.Fs, outputRoot string) (release func(), err error)

// Orchestrator drives one batch through Idle, Running and a terminal state.
// An orchestrator cannot be restarted; a new batch needs a new orchestrator.
type Orchestrator struct {
	executor   PhaseExecutor
	fs         afero.Fs
	outputRoot string
	params     map[string]string
	setup      SetupFunc
	controller *cancel.Controller
	grace      time.Duration
	owned      bool // controller was created by New

	mu    sync.Mutex
	state pipeline.BatchState
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFs sets the filesystem used for the output root and item workspaces.
func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) {
		o.fs = fs
	}
}

// WithOutputRoot sets the directory item workspaces are created under.
func WithOutputRoot(root string) Option {
	return func(o *Orchestrator) {
		o.outputRoot = root
	}
}

// WithParams sets parameters applied to every item. They override the
// definition defaults and are overridden by item parameters.
func WithParams(params map[string]string) Option {
	return func(o *Orchestrator) {
		o.params = params
	}
}

// WithSetup replaces the default output root setup.
func WithSetup(fn SetupFunc) Option {
	return func(o *Orchestrator) {
		o.setup = fn
	}
}

// WithController uses an externally owned cancellation controller.
// The caller is responsible for closing it.
func WithController(c *cancel.Controller) Option {
	return func(o *Orchestrator) {
		o.controller = c
	}
}

// WithGrace sets the grace window of the controller created by New.
// It has no effect together with WithController.
func WithGrace(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.grace = d
	}
}

// New creates an idle orchestrator that runs phases with executor.
func New(executor PhaseExecutor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		executor: executor,
		setup:    MkdirSetup,
		grace:    cancel.DefaultGrace,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}

	if o.controller == nil {
		o.controller = cancel.New(o.grace)
		o.owned = true
	}

	return o
}

// MkdirSetup creates the output root.
func MkdirSetup(_ context.Context, fs afero.Fs, outputRoot string) (func(), error) {
	if outputRoot == "" {
		return nil, nil
	}

	return nil, fs.MkdirAll(outputRoot, 0o755)
}

// State returns the current batch state.
func (o *Orchestrator) State() pipeline.BatchState {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Controller returns the cancellation controller of the batch.
func (o *Orchestrator) Controller() *cancel.Controller {
	return o.controller
}

// RequestStop asks a running batch to stop. It is a no-op unless the batch is running.
func (o *Orchestrator) RequestStop() bool {
	if o.State() != pipeline.StateRunning {
		return false
	}

	return o.controller.RequestStop()
}

// Force asks a running batch to kill its process immediately.
func (o *Orchestrator) Force() bool {
	if o.State() != pipeline.StateRunning {
		return false
	}

	return o.controller.Force()
}

// Run runs the batch on the calling goroutine and returns its report.
// The reporter is not closed.
func (o *Orchestrator) Run(ctx context.Context, items []pipeline.Item, def *pipeline.Definition, reporter progress.Reporter) (*pipeline.Report, error) {
	if err := o.begin(items, def); err != nil {
		return nil, err
	}

	return o.execute(ctx, items, def, reporter), nil
}

// Start runs the batch on a dedicated goroutine. Errors that prevent the batch
// from entering the running state are returned immediately.
func (o *Orchestrator) Start(ctx context.Context, items []pipeline.Item, def *pipeline.Definition, reporter progress.Reporter) (*Handle, error) {
	if err := o.begin(items, def); err != nil {
		return nil, err
	}

	h := &Handle{
		o:    o,
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		h.report = o.execute(ctx, items, def, reporter)
	}()

	return h, nil
}

func (o *Orchestrator) begin(items []pipeline.Item, def *pipeline.Definition) error {
	if def == nil {
		return ErrNoDefinition
	}

	if err := def.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != pipeline.StateIdle {
		return ErrAlreadyStarted
	}

	if len(items) == 0 {
		return ErrNoItems
	}

	o.state = pipeline.StateRunning

	return nil
}

func (o *Orchestrator) finish(state pipeline.BatchState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

// execute is the worker loop. It always returns a report with one result per item.
func (o *Orchestrator) execute(ctx context.Context, items []pipeline.Item, def *pipeline.Definition, reporter progress.Reporter) *pipeline.Report {
	if reporter == nil {
		reporter = progress.NewNullReporter()
	}

	seq := progress.NewSequencer(reporter)
	ctx = progress.WithReporter(ctx, seq)
	ctx = cancel.WithController(ctx, o.controller)

	if o.owned {
		defer o.controller.Close()
	}

	report := &pipeline.Report{
		BatchID:    newBatchID(),
		Pipeline:   def.Name,
		Results:    make([]*pipeline.ItemResult, 0, len(items)),
		OutputRoot: o.outputRoot,
		StartedAt:  now(),
	}

	logger := ctxlog.Logger(ctx).With("batch", report.BatchID, "pipeline", def.Name)
	ctx = ctxlog.New(ctx, logger)

	agg := progress.NewAggregator(len(items), def.Weights())

	seq.Report(progress.Event{
		Type:     progress.EventBatchStarted,
		Message:  fmt.Sprintf("Starting %s for %d items", def.Name, len(items)),
		Progress: agg.Advance(0, 0),
	})
	logger.Info("batch started", "items", len(items), "output_root", o.outputRoot)

	state := o.run(ctx, items, def, agg, report)

	report.State = state
	report.FinishedAt = now()
	report.Tally()

	// Observers of the final events see a terminal batch.
	o.finish(state)

	if state == pipeline.StateCompleted {
		pos := agg.Complete()
		seq.Report(progress.Event{
			Type:     progress.EventProgress,
			Message:  progress.ProgressLine(pos),
			Progress: pos,
		})
	}

	seq.Report(progress.Event{
		Type: progress.EventBatchReport,
		Message: fmt.Sprintf("Batch %s: %d succeeded, %d failed, %d cancelled",
			state, report.Succeeded, report.Failed, report.Cancelled),
		Data: progress.EventData{Report: report},
	})
	logger.Info("batch finished", "state", state, "summary", report.Summary())

	return report
}

func (o *Orchestrator) run(ctx context.Context, items []pipeline.Item, def *pipeline.Definition, agg *progress.Aggregator, report *pipeline.Report) pipeline.BatchState {
	reporter := progress.FromContext(ctx)

	if o.setup != nil {
		release, err := o.setup(ctx, o.fs, o.outputRoot)
		if release != nil {
			defer release()
		}

		if err != nil {
			o.abort(ctx, items, report, errors.Join(ErrFatalSetup, err))
			return pipeline.StateFatal
		}
	}

	for i, item := range items {
		if o.controller.StopRequested() || ctx.Err() != nil {
			o.cancelRemaining(ctx, items[i:], report)
			return pipeline.StateCancelled
		}

		if o.outputRoot != "" {
			if _, err := o.fs.Stat(o.outputRoot); err != nil {
				o.abort(ctx, items[i:], report, errors.Join(ErrFatalSetup, ErrOutputRootMissing, err))
				return pipeline.StateFatal
			}
		}

		if item.WorkDir == "" && o.outputRoot != "" {
			item.WorkDir = filepath.Join(o.outputRoot, item.ID)
		}

		ip := &itemPipeline{
			executor: o.executor,
			fs:       o.fs,
			def:      def,
			agg:      agg,
			index:    i,
			params:   phase.MergeParams(phase.MergeParams(def.Params, o.params), item.Params),
			root:     o.outputRoot,
		}

		res, err := ip.run(ctx, item)
		if err != nil {
			o.abort(ctx, items[i:], report, errors.Join(ErrFatalSetup, err))
			return pipeline.StateFatal
		}

		report.Results = append(report.Results, res)
		reportResult(reporter, i, res)
	}

	// Every item is terminal, a stop that came too late to affect any of them
	// does not change the outcome.
	for _, res := range report.Results {
		if res.Status == pipeline.StatusCancelled {
			return pipeline.StateCancelled
		}
	}

	return pipeline.StateCompleted
}

// cancelRemaining records items that were never started because of a stop.
func (o *Orchestrator) cancelRemaining(ctx context.Context, items []pipeline.Item, report *pipeline.Report) {
	reporter := progress.FromContext(ctx)
	ctxlog.Info(ctx, "stop requested, cancelling remaining items", "remaining", len(items))

	for _, item := range items {
		res := notStarted(item, pipeline.StatusCancelled, pipeline.FailureCancelled, pipeline.FailureCancelled.Description())
		report.Results = append(report.Results, res)
		reportResult(reporter, len(report.Results)-1, res)
	}
}

// abort records the failing item and every item after it as failed by a setup error.
func (o *Orchestrator) abort(ctx context.Context, items []pipeline.Item, report *pipeline.Report, err error) {
	reporter := progress.FromContext(ctx)
	ctxlog.Error(ctx, "batch aborted", "error", err)

	report.FatalError = err.Error()

	for _, item := range items {
		res := notStarted(item, pipeline.StatusFailed, pipeline.FailureFatalSetup, err.Error())
		report.Results = append(report.Results, res)
		reportResult(reporter, len(report.Results)-1, res)
	}
}

func notStarted(item pipeline.Item, status pipeline.ItemStatus, kind pipeline.FailureKind, detail string) *pipeline.ItemResult {
	return &pipeline.ItemResult{
		Item:              item,
		Status:            status,
		FailingPhaseIndex: -1,
		Kind:              kind,
		ExitCode:          -1,
		Detail:            detail,
	}
}

func reportResult(reporter progress.Reporter, index int, res *pipeline.ItemResult) {
	var msg string

	switch res.Status {
	case pipeline.StatusSucceeded:
		msg = fmt.Sprintf("✓ %s succeeded", res.Item.DisplayName())
	case pipeline.StatusCancelled:
		msg = fmt.Sprintf("%s cancelled", res.Item.DisplayName())
	default:
		if res.FailingPhase != "" {
			msg = fmt.Sprintf("✗ %s failed at %s: %s", res.Item.DisplayName(), res.FailingPhase, res.Detail)
		} else {
			msg = fmt.Sprintf("✗ %s failed: %s", res.Item.DisplayName(), res.Detail)
		}
	}

	reporter.Report(progress.Event{
		Type:    progress.EventItemResult,
		Item:    res.Item.ID,
		Message: msg,
		Data: progress.EventData{
			ExitCode: res.ExitCode,
			Kind:     res.Kind,
			Result:   res,
		},
		Progress: progress.Position{ItemIndex: index},
	})
}

// Handle controls a batch started with Start.
type Handle struct {
	o      *Orchestrator
	done   chan struct{}
	report *pipeline.Report
}

// RequestStop asks the batch to stop. Safe to call from any goroutine.
func (h *Handle) RequestStop() bool {
	return h.o.RequestStop()
}

// Force asks the batch to kill its running process immediately.
func (h *Handle) Force() bool {
	return h.o.Force()
}

// Controller returns the cancellation controller of the batch.
func (h *Handle) Controller() *cancel.Controller {
	return h.o.controller
}

// Done is closed when the batch reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the batch finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*pipeline.Report, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
