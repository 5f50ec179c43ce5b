// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/matt-FFFFFF/nipipe/internal/ctxlog"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/report"
	"github.com/matt-FFFFFF/nipipe/internal/workspace"
	"github.com/spf13/afero"
)

// defaultOutputDir is the output root, relative to the working directory, in file mode.
const defaultOutputDir = "nipipe-output"

var (
	// ErrNoInputs is returned when neither files, a workspace nor a report are given.
	ErrNoInputs = errors.New("no inputs, give input files, --workspace or --reprocess")
	// ErrConflictingInputs is returned when more than one kind of input is given.
	ErrConflictingInputs = errors.New("input files, --workspace and --reprocess cannot be combined")
	// ErrManifestNeedsWorkspace is returned when --manifest is used without --workspace.
	ErrManifestNeedsWorkspace = errors.New("--manifest needs --workspace")
	// ErrNothingToReprocess is returned when every item of a report succeeded.
	ErrNothingToReprocess = errors.New("every item of the report succeeded, nothing to reprocess")
	// ErrNoEligiblePatients is returned when no patient of a workspace has the required inputs.
	ErrNoEligiblePatients = errors.New("no eligible patients in workspace")
)

// inputs are the item sources given on the command line.
type inputs struct {
	workspace string
	manifest  string
	reprocess string
	files     []string
}

func (in inputs) count() int {
	n := 0

	for _, set := range []bool{in.workspace != "", in.reprocess != "", len(in.files) > 0} {
		if set {
			n++
		}
	}

	return n
}

// outputRootFor returns the output root: flag if set, otherwise
// <workspace>/pipeline/<pipeline> in patient mode and nipipe-output/<pipeline>
// in file mode.
func outputRootFor(flag, ws, pipelineName string) string {
	if flag != "" {
		return flag
	}

	if ws != "" {
		return filepath.Join(ws, workspace.PipelineDir, pipelineName)
	}

	return filepath.Join(defaultOutputDir, pipelineName)
}

// resolveItems turns the inputs into batch items with working directories under outputRoot.
func resolveItems(ctx context.Context, fsys afero.Fs, def *pipeline.Definition, in inputs, outputRoot string) ([]pipeline.Item, error) {
	if in.manifest != "" && in.workspace == "" {
		return nil, ErrManifestNeedsWorkspace
	}

	switch in.count() {
	case 0:
		return nil, ErrNoInputs
	case 1:
	default:
		return nil, ErrConflictingInputs
	}

	switch {
	case in.reprocess != "":
		return reprocessItems(fsys, in.reprocess, outputRoot)
	case in.workspace != "":
		return workspaceItems(ctx, fsys, def, in, outputRoot)
	}

	return workspace.FileItems(fsys, in.files, outputRoot)
}

func reprocessItems(fsys afero.Fs, path, outputRoot string) ([]pipeline.Item, error) {
	rep, err := report.Load(fsys, path)
	if err != nil {
		return nil, err
	}

	items := report.Reprocess(rep)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNothingToReprocess, path)
	}

	for i := range items {
		items[i].WorkDir = filepath.Join(outputRoot, items[i].ID)
	}

	return items, nil
}

func workspaceItems(ctx context.Context, fsys afero.Fs, def *pipeline.Definition, in inputs, outputRoot string) ([]pipeline.Item, error) {
	ws, err := workspace.OpenFs(fsys, in.workspace)
	if err != nil {
		return nil, err
	}

	if in.manifest != "" {
		m, err := ws.ReadManifest(in.manifest)
		if err != nil {
			return nil, err
		}

		return ws.ManifestItems(m, outputRoot), nil
	}

	entries, err := ws.Scan(ctx, def.Requirements)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		switch {
		case !e.Eligible:
			ctxlog.Warn(ctx, "patient skipped, inputs missing", "patient", e.Patient.ID, "missing", e.Missing)
		case e.NeedRevision():
			ctxlog.Warn(ctx, "more than one file matches, using the first", "patient", e.Patient.ID, "inputs", e.Ambiguous)
		}
	}

	items := workspace.PatientItems(entries, outputRoot)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEligiblePatients, ws.Root())
	}

	return items, nil
}
