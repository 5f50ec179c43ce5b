// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package show contains the command that prints a saved batch report.
package show

import (
	"context"
	"errors"

	"github.com/matt-FFFFFF/nipipe/internal/color"
	"github.com/matt-FFFFFF/nipipe/internal/report"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
)

const (
	fileArg       = "file"
	jsonFlag      = "json"
	artifactsFlag = "artifacts"
)

var (
	// ErrNoFile is returned when no report file is given.
	ErrNoFile = errors.New("no report file given")
	// ErrWriteResults is returned when the report cannot be written.
	ErrWriteResults = errors.New("failed to write report")
)

// FsFactory creates the filesystem reports are read from.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// ShowCmd prints a report saved with 'nipipe run --out'.
var ShowCmd = &cli.Command{
	Name:        "show",
	Usage:       "Show a saved batch report",
	Description: "Show a report saved with 'nipipe run --out', as a table or as JSON.",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      fileArg,
			UsageText: "REPORT",
		},
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:        jsonFlag,
			Usage:       "Print the report as JSON",
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
	Action: func(_ context.Context, cmd *cli.Command) error {
		path := cmd.StringArg(fileArg)
		if path == "" {
			return ErrNoFile
		}

		rep, err := report.Load(FsFactory(), path)
		if err != nil {
			return err
		}

		if cmd.Bool(jsonFlag) {
			if err := report.WritePrettyJSON(cmd.Writer, rep, color.Enabled()); err != nil {
				return errors.Join(ErrWriteResults, err)
			}

			return nil
		}

		opts := report.DefaultOutputOptions()
		opts.ShowArtifacts = cmd.Bool(artifactsFlag)

		if err := report.WriteText(cmd.Writer, rep, opts); err != nil {
			return errors.Join(ErrWriteResults, err)
		}

		return nil
	},
}
