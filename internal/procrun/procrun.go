// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package procrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matt-FFFFFF/nipipe/internal/cancel"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/matt-FFFFFF/nipipe/internal/teereader"
)

const (
	// DefaultGrace is how long a timed out process has to exit after SIGTERM.
	DefaultGrace = 5 * time.Second
	// DefaultHeartbeatInterval is the interval of the "Running ..." log line.
	DefaultHeartbeatInterval = 10 * time.Second
	// DefaultDrainTimeout bounds how long output is read after the process exited.
	DefaultDrainTimeout = 2 * time.Second
)

var (
	// ErrCouldNotStartProcess is returned when the process could not be started.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrFailedToCreatePipe is returned when the operating system pipe could not be created.
	ErrFailedToCreatePipe = errors.New("failed to create pipe")
	// ErrTimeoutExceeded is returned when the process exceeds its timeout.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrCancelled is returned when a stop was requested before or while the process ran.
	ErrCancelled = errors.New("processing cancelled")
	// ErrProcessCrashed is returned when the process was terminated by a signal the runner did not send.
	ErrProcessCrashed = errors.New("process crashed")
	// ErrNonZeroExit is returned when the process exited with a non-zero code.
	ErrNonZeroExit = errors.New("process exited with non-zero code")
	// ErrFailedToReadOutput is returned when stdout or stderr could not be read.
	ErrFailedToReadOutput = errors.New("failed to read process output")
	// ErrFailedToWriteInput is returned when stdin could not be written.
	ErrFailedToWriteInput = errors.New("failed to write process input")
)

// Command is one external process invocation.
type Command struct {
	Label   string            // Display name, defaults to the base name of Path.
	Item    string            // Item ID, copied onto emitted events.
	Phase   string            // Phase name, copied onto emitted events.
	Path    string            // Executable, looked up in PATH when it has no separator.
	Args    []string          // Arguments, not including the executable name itself.
	Dir     string            // Working directory.
	Env     map[string]string // Added to the environment of the current process.
	Stdin   string            // Written to standard input when set, otherwise stdin is the null device.
	Timeout time.Duration     // Zero means no timeout.
}

func (c Command) label() string {
	if c.Label != "" {
		return c.Label
	}

	return filepath.Base(c.Path)
}

// Outcome is the single result of a Run call.
type Outcome struct {
	Kind      pipeline.FailureKind
	ExitCode  int    // -1 when the process did not exit normally.
	Signal    string // Name of the terminating signal, if any.
	Err       error
	Pid       int
	StartedAt time.Time
	Duration  time.Duration
	Tail      []string // Last output lines, stdout and stderr interleaved.
	Forced    bool     // The process was killed by a forced stop.
}

// Succeeded reports whether the process ran to a clean exit.
func (o Outcome) Succeeded() bool {
	return o.Kind == pipeline.FailureNone
}

// Detail returns a short human readable description of a failed outcome.
func (o Outcome) Detail() string {
	var msg string

	switch o.Kind {
	case pipeline.FailureNone:
		return ""
	case pipeline.FailureUnknownError:
		msg = fmt.Sprintf("Unknown error code: %d", o.ExitCode)
	case pipeline.FailureCrashed:
		msg = o.Kind.Description()
		if o.Signal != "" {
			msg += " (" + o.Signal + ")"
		}
	case pipeline.FailureStartFailed:
		msg = o.Kind.Description()
		if o.Err != nil {
			msg += ": " + o.Err.Error()
		}
	default:
		msg = o.Kind.Description()
	}

	if n := len(o.Tail); n > 0 && o.Kind != pipeline.FailureCancelled {
		msg += ": " + teereader.Truncate(o.Tail[n-1], 200)
	}

	return msg
}

// Runner runs one external process at a time to completion.
type Runner struct {
	grace        time.Duration
	heartbeat    time.Duration
	drainTimeout time.Duration
	tailLines    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithGrace sets how long a timed out process has between SIGTERM and SIGKILL.
func WithGrace(d time.Duration) Option {
	return func(r *Runner) {
		r.grace = d
	}
}

// WithHeartbeatInterval sets the interval of the progress log line.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.heartbeat = d
	}
}

// WithDrainTimeout bounds how long output is read after the process exited.
func WithDrainTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.drainTimeout = d
	}
}

// WithTailLines sets how many output lines are kept for error details.
func WithTailLines(n int) Option {
	return func(r *Runner) {
		r.tailLines = n
	}
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		grace:        DefaultGrace,
		heartbeat:    DefaultHeartbeatInterval,
		drainTimeout: DefaultDrainTimeout,
		tailLines:    teereader.DefaultTailLines,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.heartbeat <= 0 {
		r.heartbeat = DefaultHeartbeatInterval
	}

	return r
}

type waitResult struct {
	state *os.ProcessState
	err   error
}

// Run starts the command and blocks until it exits, times out or is stopped.
// Stops are read from the cancel.Controller in ctx and output lines are sent
// to the progress.Reporter in ctx. Cancelling ctx kills the process at once.
// The process is always reaped and every helper goroutine has returned when
// Run returns.
func (r *Runner) Run(ctx context.Context, cmd Command) Outcome {
	label := cmd.label()
	logger := ctxlog.Logger(ctx).
		With("runnableType", "ProcessRunner").
		With("label", label)
	reporter := progress.FromContext(ctx)
	ctl := cancel.FromContext(ctx)

	out := Outcome{ExitCode: -1}

	if (ctl != nil && ctl.StopRequested()) || ctx.Err() != nil {
		logger.Debug("stop requested before start, not spawning")

		out.Kind = pipeline.FailureCancelled
		out.Err = ErrCancelled

		return out
	}

	path, err := resolvePath(cmd.Path)
	if err != nil {
		out.Kind = pipeline.FailureStartFailed
		out.Err = errors.Join(ErrCouldNotStartProcess, err)

		return out
	}

	logger.Debug("command info", "path", path, "cwd", cmd.Dir, "args", cmd.Args)

	env := mergeEnv(os.Environ(), cmd.Env)
	for k, v := range cmd.Env {
		logger.Debug("adding environment variable", "key", k, "value", v)
	}

	rOut, wOut, err := os.Pipe()
	if err != nil {
		out.Kind = pipeline.FailureStartFailed
		out.Err = errors.Join(ErrFailedToCreatePipe, err)

		return out
	}

	rErr, wErr, err := os.Pipe()
	if err != nil {
		closeAll(rOut, wOut)

		out.Kind = pipeline.FailureStartFailed
		out.Err = errors.Join(ErrFailedToCreatePipe, err)

		return out
	}

	var stdinR, stdinW *os.File
	if cmd.Stdin != "" {
		stdinR, stdinW, err = os.Pipe()
	} else {
		stdinR, err = os.Open(os.DevNull)
	}

	if err != nil {
		closeAll(rOut, wOut, rErr, wErr)

		out.Kind = pipeline.FailureStartFailed
		out.Err = errors.Join(ErrFailedToCreatePipe, err)

		return out
	}

	logger.Debug("starting process")

	ps, err := os.StartProcess(path, slices.Concat([]string{filepath.Base(path)}, cmd.Args), &os.ProcAttr{
		Dir:   cmd.Dir,
		Env:   env,
		Files: []*os.File{stdinR, wOut, wErr},
		Sys:   sysProcAttr(),
	})

	// The child has its own copies now.
	closeAll(stdinR, wOut, wErr)

	if err != nil {
		closeAll(rOut, rErr, stdinW)

		out.Kind = pipeline.FailureStartFailed
		out.Err = errors.Join(ErrCouldNotStartProcess, err)

		return out
	}

	out.Pid = ps.Pid
	out.StartedAt = time.Now()
	logger = logger.With("pid", ps.Pid)
	logger.Info("process started")

	tee := teereader.New(r.tailLines)

	var (
		wg                          sync.WaitGroup
		stdoutErr, stderrErr, inErr error
	)

	forward := func(isStderr bool) func(string) {
		return func(line string) {
			reporter.Report(progress.Event{
				Type:    progress.EventOutput,
				Item:    cmd.Item,
				Phase:   cmd.Phase,
				Message: line,
				Data: progress.EventData{
					OutputLine: line,
					IsStderr:   isStderr,
				},
			})
		}
	}

	wg.Add(2)

	go func() {
		defer wg.Done()
		stdoutErr = consumeOutput(tee, rOut, forward(false))
	}()

	go func() {
		defer wg.Done()
		stderrErr = consumeOutput(tee, rErr, forward(true))
	}()

	if stdinW != nil {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, werr := io.WriteString(stdinW, cmd.Stdin)
			cerr := stdinW.Close()

			if werr != nil || (cerr != nil && !errors.Is(cerr, os.ErrClosed)) {
				inErr = errors.Join(werr, cerr)
			}
		}()
	}

	waitCh := make(chan waitResult, 1)

	go func() {
		state, werr := ps.Wait()
		waitCh <- waitResult{state: state, err: werr}
	}()

	sup := newSupervisor(newSignaller(ps), ps.Pid)

	var stopping, forcing <-chan struct{}
	if ctl != nil {
		stopping, forcing = ctl.Stopping(), ctl.Forcing()
	}

	var timeoutC, killC <-chan time.Time

	if cmd.Timeout > 0 {
		timeoutTimer := time.NewTimer(cmd.Timeout)
		defer timeoutTimer.Stop()

		timeoutC = timeoutTimer.C
	}

	var killTimer *time.Timer

	defer func() {
		if killTimer != nil {
			killTimer.Stop()
		}
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()

	ctxDone := ctx.Done()
	cause := pipeline.FailureNone
	setCause := func(k pipeline.FailureKind) {
		if cause == pipeline.FailureNone {
			cause = k
		}
	}

	var wr waitResult

loop:
	for {
		select {
		case wr = <-waitCh:
			break loop

		case <-timeoutC:
			timeoutC = nil

			logger.Info("process timed out, terminating", "timeout", cmd.Timeout)
			setCause(pipeline.FailureTimedOut)

			if sup.terminate(ctx, "timeout") {
				killTimer = time.NewTimer(r.grace)
				killC = killTimer.C
			}

		case <-killC:
			killC = nil

			logger.Info("process did not exit within grace period, killing", "grace", r.grace)
			sup.kill(ctx, "timeout grace elapsed")

		case <-stopping:
			stopping = nil

			setCause(pipeline.FailureCancelled)
			reporter.Report(progress.Event{
				Type:    progress.EventStopping,
				Item:    cmd.Item,
				Phase:   cmd.Phase,
				Message: fmt.Sprintf("Stopping %s...", label),
			})
			sup.terminate(ctx, "stop requested")

		case <-forcing:
			forcing, stopping = nil, nil

			setCause(pipeline.FailureCancelled)

			out.Forced = true

			reporter.Report(progress.Event{
				Type:    progress.EventForcing,
				Item:    cmd.Item,
				Phase:   cmd.Phase,
				Message: fmt.Sprintf("Forcing %s to quit...", label),
			})
			sup.kill(ctx, "force requested")

		case <-ctxDone:
			ctxDone = nil

			logger.Info("context done, killing process")
			setCause(pipeline.FailureCancelled)
			sup.kill(ctx, "context done")

		case <-ticker.C:
			elapsed := time.Since(out.StartedAt).Round(time.Second)
			logger.Info(fmt.Sprintf("Running %s: [%s]...", label, elapsed))
		}
	}

	out.Duration = time.Since(out.StartedAt)
	logger.Debug("process finished", "duration", out.Duration, "stage", sup.current())

	r.drain(ctx, &wg, rOut, rErr, stdinW)

	out.Tail = tee.Tail()

	if wr.state != nil {
		out.ExitCode = wr.state.ExitCode()
	}

	readErr := errors.Join(ignoreClosed(stdoutErr), ignoreClosed(stderrErr))

	switch {
	case cause == pipeline.FailureCancelled:
		out.Kind = pipeline.FailureCancelled
		out.Err = ErrCancelled
	case cause == pipeline.FailureTimedOut:
		out.Kind = pipeline.FailureTimedOut
		out.Err = fmt.Errorf("%w: %s", ErrTimeoutExceeded, cmd.Timeout)
	case wr.err != nil:
		out.Kind = pipeline.FailureUnknownError
		out.Err = wr.err
	default:
		out.Kind, out.Err = classifyExit(wr.state, inErr, readErr, &out)
	}

	logger.Debug("process outcome", "kind", out.Kind, "exitCode", out.ExitCode, "error", out.Err)

	return out
}

// classifyExit classifies a process that exited without the runner stopping it.
// Stream errors only count when the exit was otherwise clean.
func classifyExit(state *os.ProcessState, inErr, readErr error, out *Outcome) (pipeline.FailureKind, error) {
	if sig, ok := exitSignal(state); ok {
		out.Signal = sig
		return pipeline.FailureCrashed, fmt.Errorf("%w: %s", ErrProcessCrashed, sig)
	}

	if code := state.ExitCode(); code != 0 {
		return pipeline.FailureUnknownError, fmt.Errorf("%w: %d", ErrNonZeroExit, code)
	}

	if inErr != nil {
		return pipeline.FailureWriteError, errors.Join(ErrFailedToWriteInput, inErr)
	}

	if readErr != nil {
		return pipeline.FailureReadError, errors.Join(ErrFailedToReadOutput, readErr)
	}

	return pipeline.FailureNone, nil
}

// drain waits for the stream goroutines. If output is still open after the
// drain timeout, e.g. held by an orphaned grandchild, the read ends are closed.
func (r *Runner) drain(ctx context.Context, wg *sync.WaitGroup, files ...*os.File) {
	drained := make(chan struct{})

	go func() {
		wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(r.drainTimeout)
	defer timer.Stop()

	select {
	case <-drained:
	case <-timer.C:
		ctxlog.Warn(ctx, "process streams still open after exit, closing them")
		closeAll(files...)
		<-drained
	}

	closeAll(files...)
}

// consumeOutput reads one output stream of the process. Replaced in tests.
var consumeOutput = (*teereader.LineTee).Consume

func resolvePath(p string) (string, error) {
	if p == "" {
		return "", errors.New("empty command")
	}

	if strings.ContainsRune(p, filepath.Separator) || strings.ContainsRune(p, '/') {
		return p, nil
	}

	return exec.LookPath(p) //nolint:wrapcheck
}

// mergeEnv returns base with the entries of extra added. A key in extra
// replaces the same key in base.
func mergeEnv(base []string, extra map[string]string) []string {
	env := make([]string, 0, len(base)+len(extra))

	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := extra[k]; !ok {
			env = append(env, kv)
		}
	}

	for _, k := range slices.Sorted(maps.Keys(extra)) {
		env = append(env, k+"="+extra[k])
	}

	return env
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

func ignoreClosed(err error) error {
	if errors.Is(err, os.ErrClosed) {
		return nil
	}

	return err
}
