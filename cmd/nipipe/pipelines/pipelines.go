// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package pipelines contains the command that lists and prints pipeline definitions.
package pipelines

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/urfave/cli/v3"
)

const nameArg = "name"

// ErrWriteDefinition is returned when a definition cannot be written out.
var ErrWriteDefinition = errors.New("failed to write definition")

// PipelinesCmd lists the built-in pipelines, or prints one definition as YAML.
var PipelinesCmd = &cli.Command{
	Name:  "pipelines",
	Usage: "List the built-in pipelines or print a definition",
	Description: `Without an argument, list the built-in pipelines.

With a built-in name, a definition file or a go-getter URL, validate the
definition and print it as YAML. The output is a valid definition file and a
starting point for a custom pipeline.`,
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      nameArg,
			UsageText: "[NAME]",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		ref := cmd.StringArg(nameArg)
		if ref == "" {
			return writeList(cmd.Writer)
		}

		def, err := pipeline.Fetch(ctx, ref)
		if err != nil {
			return err
		}

		out, err := pipeline.EncodeYAML(def)
		if err != nil {
			return errors.Join(ErrWriteDefinition, err)
		}

		if _, err := cmd.Writer.Write(out); err != nil {
			return errors.Join(ErrWriteDefinition, err)
		}

		return nil
	},
}

func writeList(w io.Writer) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Name", "Phases", "Inputs", "Description"})

	for _, name := range pipeline.BuiltinNames() {
		def, err := pipeline.Builtin(name)
		if err != nil {
			return err
		}

		inputs := "file"
		if len(def.Requirements) > 0 {
			inputs = "workspace"
		}

		t.AppendRow(table.Row{def.Name, len(def.Phases), inputs, def.Description})
	}

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return errors.Join(ErrWriteDefinition, err)
	}

	return nil
}
