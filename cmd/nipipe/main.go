// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main contains the nipipe command-line interface (CLI).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/matt-FFFFFF/nipipe"
	"github.com/matt-FFFFFF/nipipe/cmd/nipipe/pipelines"
	"github.com/matt-FFFFFF/nipipe/cmd/nipipe/run"
	"github.com/matt-FFFFFF/nipipe/cmd/nipipe/scan"
	"github.com/matt-FFFFFF/nipipe/cmd/nipipe/show"
	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/urfave/cli/v3"
)

const logJSONFlag = "log-json"

// rootCmd is the root command for the CLI.
var rootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		scan.ScanCmd,
		show.ShowCmd,
		pipelines.PipelinesCmd,
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:        logJSONFlag,
			Usage:       "Write logs as JSON lines instead of coloured text",
			Value:       false,
			DefaultText: "false",
			Sources:     cli.EnvVars("NIPIPE_LOG_JSON"),
		},
	},
	Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		if cmd.Bool(logJSONFlag) {
			return ctxlog.New(ctx, ctxlog.JSONLogger), nil
		}

		return ctx, nil
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "nipipe",
	Description: `nipipe runs neuroimaging pipelines, ordered chains of external tools such as
skull stripping, registration and deep learning segmentation, over a batch of
input files or the patients of a BIDS style workspace.

Each item runs every phase in order. A failing item does not stop the batch.
The log level is set with NIPIPE_LOG_LEVEL (DEBUG, INFO, WARN, ERROR).`,
	Usage:     "nipipe run --pipeline dl-segmentation sub-01_flair.nii.gz",
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = ctxlog.New(ctx, ctxlog.DefaultLogger)

	defer cancel()

	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", nipipe.Version, nipipe.Commit)

	if err := rootCmd.Run(ctx, os.Args); err != nil { // exit codes are handled by cli
		ctxlog.Logger(ctx).Error("command execution failed", "error", err)
		os.Exit(1) //nolint:gocritic
	}

	ctxlog.Logger(ctx).Info("command completed successfully")
}
