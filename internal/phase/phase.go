// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package phase runs one phase of a pipeline for one item: it checks the phase
// inputs, renders the command from its templates, runs it, and verifies the
// expected output exists.
package phase

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/procrun"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/spf13/afero"
)

var (
	// ErrExpectedFileNotFound is returned when an input or output artifact does not exist.
	ErrExpectedFileNotFound = errors.New("expected file not found")
	// ErrBuildCommand is returned when the command cannot be rendered from its templates.
	ErrBuildCommand = errors.New("could not build command")
)

// FsFactory creates the default filesystem used to check artifacts.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// ProcessRunner runs one external process to completion.
type ProcessRunner interface {
	Run(ctx context.Context, cmd procrun.Command) procrun.Outcome
}

var _ ProcessRunner = (*procrun.Runner)(nil)

// State is what an item pipeline knows when a phase starts.
type State struct {
	OutputRoot string
	Params     map[string]string // Effective parameters, item values override definition defaults.
	Artifacts  map[string]string // Artifacts known so far, by name.
	Position   progress.Position // Where the phase sits in the batch.
}

// Result is the outcome of a phase.
type Result struct {
	Phase    string
	Index    int
	Kind     pipeline.FailureKind
	ExitCode int
	Err      error
	Detail   string
	Artifact string // Path of the produced (or reused) output.
	Skipped  bool
	Outcome  *procrun.Outcome // nil when no process was started
}

// Succeeded reports whether the phase produced its artifact.
func (r Result) Succeeded() bool {
	return r.Kind == pipeline.FailureNone
}

// Executor runs phases.
type Executor struct {
	runner         ProcessRunner
	fs             afero.Fs
	defaultTimeout time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithFs sets the filesystem artifacts are checked on.
func WithFs(fs afero.Fs) Option {
	return func(e *Executor) {
		e.fs = fs
	}
}

// WithDefaultTimeout sets the timeout for phases that do not declare one.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

// NewExecutor creates an Executor that runs processes with runner.
func NewExecutor(runner ProcessRunner, opts ...Option) *Executor {
	e := &Executor{runner: runner}

	for _, opt := range opts {
		opt(e)
	}

	if e.fs == nil {
		e.fs = FsFactory()
	}

	return e
}

// Fs returns the filesystem of the executor.
func (e *Executor) Fs() afero.Fs {
	return e.fs
}

// Execute runs spec for item. Failures are reported in the Result, never as a panic or error return.
func (e *Executor) Execute(ctx context.Context, item pipeline.Item, spec *pipeline.PhaseSpec, state State) Result {
	logger := ctxlog.Logger(ctx).With("item", item.ID, "phase", spec.Name)
	reporter := progress.FromContext(ctx)
	index := state.Position.PhaseIndex

	res := Result{Phase: spec.Name, Index: index, ExitCode: -1}

	reporter.Report(progress.Event{
		Type:     progress.EventPhaseStarted,
		Item:     item.ID,
		Phase:    spec.Name,
		Message:  fmt.Sprintf("Phase %d/%d: %s...", index+1, state.Position.PhaseCount, spec.DisplayName()),
		Progress: state.Position,
	})

	finish := func(res Result) Result {
		e.reportFinished(reporter, item, spec, state, res)
		logger.Debug("phase finished", "kind", res.Kind, "artifact", res.Artifact, "skipped", res.Skipped)

		return res
	}

	for _, ref := range spec.ArtifactRefs() {
		if err := e.checkArtifact(ref, state.Artifacts); err != nil {
			res.Kind = pipeline.FailureMissingArtifact
			res.Err = err
			res.Detail = err.Error()

			return finish(res)
		}
	}

	scope := pipeline.Scope{
		Item:       item,
		WorkDir:    item.WorkDir,
		OutputRoot: state.OutputRoot,
		Params:     state.Params,
		Artifacts:  state.Artifacts,
		PhaseName:  spec.Name,
		PhaseIndex: index,
	}
	evalCtx := scope.EvalContext()

	pattern, err := spec.Output.Render(evalCtx)
	if err != nil {
		return finish(buildFailure(res, err))
	}

	pattern = e.absolute(item, pattern)

	if spec.SkipIfPresent {
		if match, ok := e.firstMatch(pattern); ok {
			logger.Info("output already present, skipping phase", "artifact", match)

			res.Skipped = true
			res.Artifact = match

			return finish(res)
		}
	}

	cmd, err := buildCommand(evalCtx, item, spec)
	if err != nil {
		return finish(buildFailure(res, err))
	}

	cmd.Timeout = spec.Timeout
	if cmd.Timeout == 0 {
		cmd.Timeout = e.defaultTimeout
	}

	logger.Debug("running phase", "command", cmd.Path, "args", cmd.Args)

	before := e.outputs(pattern)
	outcome := e.runner.Run(ctx, cmd)
	res.Outcome = &outcome
	res.ExitCode = outcome.ExitCode

	if !outcome.Succeeded() {
		res.Kind = outcome.Kind
		res.Err = outcome.Err
		res.Detail = outcome.Detail()

		return finish(res)
	}

	match, ok := e.freshMatch(pattern, before)
	if !ok {
		res.Kind = pipeline.FailureMissingArtifact
		res.Err = fmt.Errorf("%w: %s", ErrExpectedFileNotFound, pattern)

		if len(before) > 0 {
			res.Err = fmt.Errorf("%w: %s, %d earlier file(s) not rewritten", ErrExpectedFileNotFound, pattern, len(before))
		}

		res.Detail = res.Err.Error()

		return finish(res)
	}

	res.Artifact = match

	return finish(res)
}

func buildFailure(res Result, err error) Result {
	res.Kind = pipeline.FailureStartFailed
	res.Err = errors.Join(ErrBuildCommand, err)
	res.Detail = res.Err.Error()

	return res
}

func buildCommand(evalCtx *hcl.EvalContext, item pipeline.Item, spec *pipeline.PhaseSpec) (procrun.Command, error) {
	path, err := spec.Command.Render(evalCtx)
	if err != nil {
		return procrun.Command{}, fmt.Errorf("command: %w", err)
	}

	args := make([]string, 0, len(spec.Args))

	for i, a := range spec.Args {
		arg, err := a.Render(evalCtx)
		if err != nil {
			return procrun.Command{}, fmt.Errorf("args[%d]: %w", i, err)
		}

		args = append(args, arg)
	}

	stdin, err := spec.Stdin.Render(evalCtx)
	if err != nil {
		return procrun.Command{}, fmt.Errorf("stdin: %w", err)
	}

	return procrun.Command{
		Label: filepath.Base(path),
		Item:  item.ID,
		Phase: spec.Name,
		Path:  path,
		Args:  args,
		Dir:   item.WorkDir,
		Env:   spec.Env,
		Stdin: stdin,
	}, nil
}

func (e *Executor) checkArtifact(name string, known map[string]string) error {
	path, ok := known[name]
	if !ok || path == "" {
		return fmt.Errorf("%w: %s", ErrExpectedFileNotFound, name)
	}

	if _, err := e.fs.Stat(path); err != nil {
		return fmt.Errorf("%w: %s (%s)", ErrExpectedFileNotFound, path, name)
	}

	return nil
}

func (e *Executor) absolute(item pipeline.Item, pattern string) string {
	if filepath.IsAbs(pattern) || item.WorkDir == "" {
		return pattern
	}

	return filepath.Join(item.WorkDir, pattern)
}

func (e *Executor) firstMatch(pattern string) (string, bool) {
	matches, err := afero.Glob(e.fs, pattern)
	if err != nil || len(matches) == 0 {
		return "", false
	}

	slices.Sort(matches)

	return matches[0], true
}

// outputs returns the modification time of every file matching pattern.
func (e *Executor) outputs(pattern string) map[string]time.Time {
	matches, err := afero.Glob(e.fs, pattern)
	if err != nil {
		return nil
	}

	out := make(map[string]time.Time, len(matches))

	for _, m := range matches {
		if fi, err := e.fs.Stat(m); err == nil {
			out[m] = fi.ModTime()
		}
	}

	return out
}

// freshMatch returns the first file matching pattern that is new or modified
// compared to before. Files left by an earlier run do not count as output.
func (e *Executor) freshMatch(pattern string, before map[string]time.Time) (string, bool) {
	var fresh []string

	for path, modTime := range e.outputs(pattern) {
		if prev, seen := before[path]; !seen || !modTime.Equal(prev) {
			fresh = append(fresh, path)
		}
	}

	if len(fresh) == 0 {
		return "", false
	}

	slices.Sort(fresh)

	return fresh[0], true
}

func (e *Executor) reportFinished(reporter progress.Reporter, item pipeline.Item, spec *pipeline.PhaseSpec, state State, res Result) {
	ev := progress.Event{
		Item:     item.ID,
		Phase:    spec.Name,
		Progress: state.Position,
		Data: progress.EventData{
			ExitCode: res.ExitCode,
			Kind:     res.Kind,
			Error:    res.Err,
			Artifact: res.Artifact,
		},
	}

	switch {
	case res.Skipped:
		ev.Type = progress.EventPhaseSkipped
		ev.Message = fmt.Sprintf("%s: output already exists, skipped", spec.DisplayName())
	case res.Succeeded():
		ev.Type = progress.EventPhaseCompleted
		ev.Message = fmt.Sprintf("✓ %s completed", spec.DisplayName())
	default:
		ev.Type = progress.EventPhaseFailed
		ev.Message = fmt.Sprintf("✗ %s failed: %s", spec.DisplayName(), res.Detail)
	}

	reporter.Report(ev)
}

// MergeParams returns the definition defaults overridden by the item parameters.
func MergeParams(defaults, overrides map[string]string) map[string]string {
	out := maps.Clone(defaults)
	if out == nil {
		out = make(map[string]string, len(overrides))
	}

	maps.Copy(out, overrides)

	return out
}
