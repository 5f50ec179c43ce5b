// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package workspace finds patients in a BIDS style workspace, checks which of
// them have the inputs a pipeline needs, and turns them into batch items.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/spf13/afero"
)

const (
	// PatientPrefix is the directory name prefix of a patient.
	PatientPrefix = "sub-"
	// DerivativesDir holds derived images and is never scanned for patients.
	DerivativesDir = "derivatives"
	// PipelineDir holds the manifests written by WriteManifest.
	PipelineDir = "pipeline"
)

var (
	// ErrNotDirectory is returned when the workspace root is not a directory.
	ErrNotDirectory = errors.New("workspace root is not a directory")
	// ErrInputNotFound is returned when an input file does not exist.
	ErrInputNotFound = errors.New("input file not found")
)

// FsFactory creates the default filesystem for a workspace.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// Patient is a patient directory in the workspace.
type Patient struct {
	ID   string // Directory name, e.g. sub-01.
	Path string // Absolute directory path.
}

// Workspace is a directory of patients.
type Workspace struct {
	fs   afero.Fs
	root string
}

// Open returns the workspace rooted at root on the default filesystem.
func Open(root string) (*Workspace, error) {
	return OpenFs(FsFactory(), root)
}

// OpenFs returns the workspace rooted at root on fsys.
func OpenFs(fsys afero.Fs, root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fi, err := fsys.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening workspace: %w", err)
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}

	return &Workspace{fs: fsys, root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Fs returns the filesystem of the workspace.
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Discover returns the patient directories under the workspace, sorted by path.
// The derivatives and pipeline directories are skipped, hidden directories are
// ignored, and patient directories are not descended into.
func (w *Workspace) Discover(ctx context.Context) ([]Patient, error) {
	var patients []Patient

	err := afero.Walk(w.fs, w.root, func(path string, info fs.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			return err
		}

		if !info.IsDir() || path == w.root {
			return nil
		}

		name := info.Name()

		switch {
		case name == DerivativesDir, name == PipelineDir, strings.HasPrefix(name, "."):
			return filepath.SkipDir
		case strings.HasPrefix(name, PatientPrefix):
			patients = append(patients, Patient{ID: name, Path: path})
			return filepath.SkipDir
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering patients in %s: %w", w.root, err)
	}

	slices.SortFunc(patients, func(a, b Patient) int {
		return strings.Compare(a.Path, b.Path)
	})

	return patients, nil
}

// PatientItems returns an item for every eligible patient. Working directories
// are created under outputRoot by the orchestrator.
func PatientItems(entries []Eligibility, outputRoot string) []pipeline.Item {
	items := make([]pipeline.Item, 0, len(entries))

	for _, e := range entries {
		if !e.Eligible {
			continue
		}

		items = append(items, pipeline.Item{
			ID:        e.Patient.ID,
			Path:      e.Patient.Path,
			WorkDir:   filepath.Join(outputRoot, e.Patient.ID),
			Artifacts: e.Found,
		})
	}

	return items
}

// FileItems returns an item per input file. The item ID is the file stem;
// repeated stems get a numeric suffix so working directories stay distinct.
func FileItems(fsys afero.Fs, paths []string, outputRoot string) ([]pipeline.Item, error) {
	items := make([]pipeline.Item, 0, len(paths))
	seen := make(map[string]int, len(paths))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}

		if fi, err := fsys.Stat(abs); err != nil || fi.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, p)
		}

		id := pipeline.Stem(abs)

		seen[id]++
		if n := seen[id]; n > 1 {
			id = fmt.Sprintf("%s-%d", id, n)
		}

		items = append(items, pipeline.Item{
			ID:        id,
			Label:     filepath.Base(abs),
			Path:      abs,
			WorkDir:   filepath.Join(outputRoot, id),
			Artifacts: map[string]string{"input": abs},
		})
	}

	return items, nil
}
