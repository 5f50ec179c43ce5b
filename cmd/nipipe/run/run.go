// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package run contains the command that runs a pipeline over a batch of items.
package run

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/matt-FFFFFF/nipipe/internal/batch"
	"github.com/matt-FFFFFF/nipipe/internal/cancel"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/phase"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/procrun"
	"github.com/matt-FFFFFF/nipipe/internal/progress"
	"github.com/matt-FFFFFF/nipipe/internal/report"
	"github.com/matt-FFFFFF/nipipe/internal/signalbroker"
	"github.com/matt-FFFFFF/nipipe/internal/tui"
	"github.com/matt-FFFFFF/nipipe/internal/workspace"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

const (
	pipelineFlag  = "pipeline"
	workspaceFlag = "workspace"
	manifestFlag  = "manifest"
	reprocessFlag = "reprocess"
	outputFlag    = "output"
	paramFlag     = "param"
	graceFlag     = "grace"
	timeoutFlag   = "timeout"
	tuiFlag       = "tui"
	outFlag       = "out"
	verboseFlag   = "verbose"
	artifactsFlag = "artifacts"
	filesArg      = "files"
	cliExitStr    = ""
	eventBuffer   = 256
)

// FsFactory creates the filesystem used for inputs, reports and the output root.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// RunCmd runs a pipeline over input files or the patients of a workspace.
var RunCmd = &cli.Command{
	Name:  "run",
	Usage: "Run a pipeline over a batch of input files or workspace patients",
	Description: `Run every phase of a pipeline, in order, for each item of a batch.

Items are either the input files given as arguments, the eligible patients of a
workspace (--workspace), the patients of a manifest written by 'nipipe scan --write'
(--workspace with --manifest), or the items that did not succeed in an earlier
report (--reprocess).

The pipeline is a built-in name (see 'nipipe pipelines'), a local YAML or HCL file,
or a URL using Hashicorp's go-getter syntax, see https://github.com/hashicorp/go-getter.

Ctrl-C stops the batch after the running phase. Pressing it again kills the running tool.
The exit code is 1 unless every item succeeded.`,
	Arguments: []cli.Argument{
		&cli.StringArgs{
			Name:      filesArg,
			UsageText: "[FILE ...]",
			Min:       0,
			Max:       -1,
		},
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     pipelineFlag,
			Aliases:  []string{"p"},
			Usage:    "Built-in pipeline name, definition file or go-getter URL",
			Value:    "dl-segmentation",
			Sources:  cli.EnvVars("NIPIPE_PIPELINE"),
			OnlyOnce: true,
		},
		&cli.StringFlag{
			Name:      workspaceFlag,
			Aliases:   []string{"w"},
			Usage:     "Run on the eligible patients of this workspace",
			TakesFile: true,
			OnlyOnce:  true,
		},
		&cli.StringFlag{
			Name:      manifestFlag,
			Aliases:   []string{"m"},
			Usage:     "Take the patients and their inputs from this manifest, needs --workspace",
			TakesFile: true,
			OnlyOnce:  true,
		},
		&cli.StringFlag{
			Name:      reprocessFlag,
			Usage:     "Run again the items that did not succeed in this report",
			TakesFile: true,
			OnlyOnce:  true,
		},
		&cli.StringFlag{
			Name:      outputFlag,
			Aliases:   []string{"o"},
			Usage:     "Output root, item working directories are created under it",
			TakesFile: true,
			Sources:   cli.EnvVars("NIPIPE_OUTPUT"),
			OnlyOnce:  true,
		},
		&cli.StringMapFlag{
			Name:  paramFlag,
			Usage: "Override a pipeline parameter, as name=value. Can be repeated",
		},
		&cli.DurationFlag{
			Name:     graceFlag,
			Usage:    "Time a stopping tool is given before it is killed",
			Value:    cancel.DefaultGrace,
			Sources:  cli.EnvVars("NIPIPE_GRACE"),
			OnlyOnce: true,
		},
		&cli.DurationFlag{
			Name:     timeoutFlag,
			Usage:    "Timeout of phases that do not set their own, 0 for none",
			Value:    0,
			Sources:  cli.EnvVars("NIPIPE_TIMEOUT"),
			OnlyOnce: true,
		},
		&cli.BoolFlag{
			Name:        tuiFlag,
			Aliases:     []string{"t", "interactive"},
			Usage:       "Show progress in an interactive terminal interface",
			Value:       false,
			DefaultText: "false",
			OnlyOnce:    true,
		},
		&cli.StringFlag{
			Name:      outFlag,
			Usage:     "Save the batch report as JSON to this file",
			TakesFile: true,
			OnlyOnce:  true,
		},
		&cli.BoolFlag{
			Name:        verboseFlag,
			Aliases:     []string{"v"},
			Usage:       "Print the output of the running tools",
			Value:       false,
			DefaultText: "false",
			OnlyOnce:    true,
		},
		&cli.BoolFlag{
			Name:        artifactsFlag,
			Usage:       "List the produced artifacts of succeeded items",
			Value:       false,
			DefaultText: "false",
			OnlyOnce:    true,
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)
	logger.Debug("Running run command")

	def, err := pipeline.Fetch(ctx, cmd.String(pipelineFlag))
	if err != nil {
		logger.Error("failed to load pipeline", "pipeline", cmd.String(pipelineFlag), "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	fsys := FsFactory()
	in := inputs{
		workspace: cmd.String(workspaceFlag),
		manifest:  cmd.String(manifestFlag),
		reprocess: cmd.String(reprocessFlag),
		files:     cmd.StringArgs(filesArg),
	}
	outputRoot := outputRootFor(cmd.String(outputFlag), in.workspace, def.Name)

	items, err := resolveItems(ctx, fsys, def, in, outputRoot)
	if err != nil {
		logger.Error("failed to collect items", "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	params := cmd.StringMap(paramFlag)
	warnUnknownParams(ctx, def, params)

	grace := cmd.Duration(graceFlag)
	orch := newOrchestrator(fsys, outputRoot, params, grace, cmd.Duration(timeoutFlag))

	logger.Info("starting batch", "pipeline", def.Name, "items", len(items), "output", outputRoot)

	var rep *pipeline.Report

	switch cmd.Bool(tuiFlag) {
	case true:
		rep, err = runTUI(ctx, cmd, orch, def, items)
	default:
		rep, err = runConsole(ctx, cmd, orch, def, items)
	}

	if err != nil {
		logger.Error("batch failed", "error", err)

		if rep == nil {
			return cli.Exit(cliExitStr, 1)
		}
	}

	if out := cmd.String(outFlag); out != "" {
		if err := report.Save(fsys, out, rep); err != nil {
			logger.Error("failed to save report", "file", out, "error", err)
			return cli.Exit(cliExitStr, 1)
		}

		logger.Info(fmt.Sprintf("Report written to %s", out))
	}

	opts := report.DefaultOutputOptions()
	opts.ShowArtifacts = cmd.Bool(artifactsFlag)

	if err := report.WriteText(cmd.Writer, rep, opts); err != nil {
		logger.Error("failed to write report", "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	if rep.Summary() != pipeline.SummaryAllSucceeded {
		return cli.Exit(cliExitStr, 1)
	}

	return nil
}

func newOrchestrator(fsys afero.Fs, outputRoot string, params map[string]string, grace, timeout time.Duration) *batch.Orchestrator {
	runner := procrun.New(procrun.WithGrace(grace))
	executor := phase.NewExecutor(runner,
		phase.WithFs(fsys),
		phase.WithDefaultTimeout(timeout),
	)

	return batch.New(executor,
		batch.WithFs(fsys),
		batch.WithOutputRoot(outputRoot),
		batch.WithParams(params),
		batch.WithGrace(grace),
		batch.WithSetup(workspace.PrepareOutputRoot),
	)
}

// runConsole runs the batch and prints its events as lines.
func runConsole(ctx context.Context, cmd *cli.Command, orch *batch.Orchestrator, def *pipeline.Definition, items []pipeline.Item) (*pipeline.Report, error) {
	var opts []report.ConsoleOption
	if cmd.Bool(verboseFlag) {
		opts = append(opts, report.WithProcessOutput())
	}

	reporter := progress.NewChannelReporter(ctx, eventBuffer)
	reporter.Listen(report.NewConsole(cmd.Writer, opts...))

	defer reporter.Close()

	h, err := orch.Start(ctx, items, def, reporter)
	if err != nil {
		return nil, err
	}

	stopWatching := watchSignals(ctx, h)
	defer stopWatching()

	// A stopped batch always finishes, the wait is not bounded by ctx.
	return h.Wait(context.WithoutCancel(ctx))
}

// runTUI runs the batch behind the terminal interface. Log output is held back
// until the interface has closed.
func runTUI(ctx context.Context, cmd *cli.Command, orch *batch.Orchestrator, def *pipeline.Definition, items []pipeline.Item) (*pipeline.Report, error) {
	buf := new(bytes.Buffer)
	tuiCtx := ctxlog.NewForTUI(ctx, buf)

	defer buf.WriteTo(cmd.ErrWriter) //nolint:errcheck

	stopWatching := func() {}

	runner := tui.NewRunner(tui.NewModel(def, items))

	rep, err := runner.Run(tuiCtx, func(reporter progress.Reporter) (tui.Batch, error) {
		h, err := orch.Start(tuiCtx, items, def, reporter)
		if err != nil {
			return nil, err
		}

		stopWatching = watchSignals(tuiCtx, h)

		return h, nil
	})

	stopWatching()

	return rep, err
}

// watchSignals relays termination signals to s until the returned func is called.
func watchSignals(ctx context.Context, s signalbroker.Stopper) func() {
	sigCh := signalbroker.New(ctx)
	watchCtx, cancelWatch := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		signalbroker.Watch(watchCtx, sigCh, s)
	}()

	return func() {
		cancelWatch()
		<-done
		signalbroker.Stop(sigCh)
	}
}

func warnUnknownParams(ctx context.Context, def *pipeline.Definition, params map[string]string) {
	for _, name := range slices.Sorted(maps.Keys(params)) {
		if _, ok := def.Params[name]; !ok {
			ctxlog.Warn(ctx, "parameter is not used by the pipeline", "param", name, "pipeline", def.Name)
		}
	}
}
