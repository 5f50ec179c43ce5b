// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package scan contains the command that checks which patients of a workspace
// have the inputs a pipeline needs.
package scan

import (
	"context"
	"fmt"

	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/report"
	"github.com/matt-FFFFFF/nipipe/internal/workspace"
	"github.com/urfave/cli/v3"
)

const (
	workspaceArg = "workspace"
	pipelineFlag = "pipeline"
	writeFlag    = "write"
	cliExitStr   = ""
)

// ScanCmd prints the eligibility of every patient in a workspace.
var ScanCmd = &cli.Command{
	Name:  "scan",
	Usage: "Check which patients of a workspace have the inputs a pipeline needs",
	Description: `Find every sub-* patient directory of a workspace and look for the inputs
the pipeline requires. Patients in derivatives/ and pipeline/ are not scanned.

With --write the eligible patients and their inputs are written to the next
pipeline/NN_config.json manifest, which 'nipipe run --manifest' reads.`,
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      workspaceArg,
			UsageText: "WORKSPACE",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     pipelineFlag,
			Aliases:  []string{"p"},
			Usage:    "Built-in pipeline name, definition file or go-getter URL",
			Value:    "patient-pipeline",
			Sources:  cli.EnvVars("NIPIPE_PIPELINE"),
			OnlyOnce: true,
		},
		&cli.BoolFlag{
			Name:        writeFlag,
			Usage:       "Write a manifest of the eligible patients",
			Value:       false,
			DefaultText: "false",
			OnlyOnce:    true,
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)

	root := cmd.StringArg(workspaceArg)
	if root == "" {
		logger.Error("Please give the workspace directory to scan.")
		return cli.Exit(cliExitStr, 1)
	}

	def, err := pipeline.Fetch(ctx, cmd.String(pipelineFlag))
	if err != nil {
		logger.Error("failed to load pipeline", "pipeline", cmd.String(pipelineFlag), "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	if len(def.Requirements) == 0 {
		logger.Error("pipeline has no requirements to check", "pipeline", def.Name)
		return cli.Exit(cliExitStr, 1)
	}

	ws, err := workspace.Open(root)
	if err != nil {
		logger.Error("failed to open workspace", "workspace", root, "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	entries, err := ws.Scan(ctx, def.Requirements)
	if err != nil {
		logger.Error("failed to scan workspace", "workspace", ws.Root(), "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	if err := report.WriteEligibility(cmd.Writer, entries, def.Requirements); err != nil {
		logger.Error("failed to write eligibility", "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	if !cmd.Bool(writeFlag) {
		return nil
	}

	eligible := workspace.Eligible(entries)
	if len(eligible) == 0 {
		logger.Warn("no eligible patients, manifest not written", "workspace", ws.Root())
		return nil
	}

	path, err := ws.WriteManifest(ws.BuildManifest(def.Requirements, eligible))
	if err != nil {
		logger.Error("failed to write manifest", "error", err)
		return cli.Exit(cliExitStr, 1)
	}

	fmt.Fprintf(cmd.Writer, "Manifest written to %s\n", path) //nolint:errcheck

	return nil
}
