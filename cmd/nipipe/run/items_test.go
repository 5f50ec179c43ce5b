// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/matt-FFFFFF/nipipe/internal/report"
	"github.com/matt-FFFFFF/nipipe/internal/workspace"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtin(t *testing.T, name string) *pipeline.Definition {
	t.Helper()

	def, err := pipeline.Builtin(name)
	require.NoError(t, err)

	return def
}

func TestOutputRootFor(t *testing.T) {
	assert.Equal(t, "/out", outputRootFor("/out", "/ws", "seg"))
	assert.Equal(t, filepath.Join("/ws", "pipeline", "seg"), outputRootFor("", "/ws", "seg"))
	assert.Equal(t, filepath.Join("nipipe-output", "seg"), outputRootFor("", "", "seg"))
}

func TestResolveItems_Errors(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	def := builtin(t, "dl-segmentation")

	testCases := []struct {
		name    string
		in      inputs
		wantErr error
	}{
		{name: "nothing", in: inputs{}, wantErr: ErrNoInputs},
		{name: "files and workspace", in: inputs{workspace: "/ws", files: []string{"/a.nii"}}, wantErr: ErrConflictingInputs},
		{name: "workspace and report", in: inputs{workspace: "/ws", reprocess: "/r.json"}, wantErr: ErrConflictingInputs},
		{name: "manifest alone", in: inputs{manifest: "/ws/pipeline/01_config.json"}, wantErr: ErrManifestNeedsWorkspace},
		{name: "missing file", in: inputs{files: []string{"/missing.nii"}}, wantErr: workspace.ErrInputNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolveItems(ctx, fs, def, tc.in, "/out")
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestResolveItems_Files(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/sub-01_flair.nii.gz", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/data/sub-02_flair.nii.gz", nil, 0o644))

	items, err := resolveItems(context.Background(), fs, builtin(t, "dl-segmentation"),
		inputs{files: []string{"/data/sub-01_flair.nii.gz", "/data/sub-02_flair.nii.gz"}}, "/out")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sub-01_flair", items[0].ID)
	assert.Equal(t, filepath.Join("/out", "sub-02_flair"), items[1].WorkDir)
}

func TestResolveItems_Workspace(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, f := range []string{
		"/ws/sub-01/anat/sub-01_flair.nii.gz",
		"/ws/sub-01/ses-01/pet/sub-01_pet.nii.gz",
		"/ws/derivatives/skullstrips/sub-01/anat/sub-01_brain.nii.gz",
		"/ws/derivatives/manual_masks/sub-01/anat/sub-01_mask.nii.gz",
		"/ws/sub-02/anat/sub-02_flair.nii.gz",
	} {
		require.NoError(t, afero.WriteFile(fs, f, []byte("nifti"), 0o644))
	}

	ctx := context.Background()
	def := builtin(t, "patient-pipeline")

	items, err := resolveItems(ctx, fs, def, inputs{workspace: "/ws"}, "/ws/pipeline/out")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "sub-01", items[0].ID)
	assert.Equal(t, "/ws/pipeline/out/sub-01", items[0].WorkDir)

	ws, err := workspace.OpenFs(fs, "/ws")
	require.NoError(t, err)

	entries, err := ws.Scan(ctx, def.Requirements)
	require.NoError(t, err)

	path, err := ws.WriteManifest(ws.BuildManifest(def.Requirements, workspace.Eligible(entries)))
	require.NoError(t, err)

	items, err = resolveItems(ctx, fs, def, inputs{workspace: "/ws", manifest: path}, "/out")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/ws/sub-01/anat/sub-01_flair.nii.gz", items[0].Artifacts["mri"])
}

func TestResolveItems_NoEligiblePatients(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ws/sub-02/anat/sub-02_flair.nii.gz", nil, 0o644))

	_, err := resolveItems(context.Background(), fs, builtin(t, "patient-pipeline"), inputs{workspace: "/ws"}, "/out")
	require.ErrorIs(t, err, ErrNoEligiblePatients)
}

func TestResolveItems_Reprocess(t *testing.T) {
	fs := afero.NewMemMapFs()

	rep := &pipeline.Report{
		BatchID:  "b-1",
		Pipeline: "dl-segmentation",
		State:    pipeline.StateCompleted,
		Results: []*pipeline.ItemResult{
			{Item: pipeline.Item{ID: "a", Path: "/data/a.nii", WorkDir: "/old/a"}, Status: pipeline.StatusSucceeded, FailingPhaseIndex: -1},
			{Item: pipeline.Item{ID: "b", Path: "/data/b.nii", WorkDir: "/old/b"}, Status: pipeline.StatusFailed, FailingPhaseIndex: 0},
			{Item: pipeline.Item{ID: "c", Path: "/data/c.nii", WorkDir: "/old/c"}, Status: pipeline.StatusCancelled, FailingPhaseIndex: -1},
		},
	}
	rep.Tally()
	require.NoError(t, report.Save(fs, "/reports/first.json", rep))

	items, err := resolveItems(context.Background(), fs, builtin(t, "dl-segmentation"), inputs{reprocess: "/reports/first.json"}, "/new")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].ID)
	assert.Equal(t, "/data/b.nii", items[0].Path)
	assert.Equal(t, filepath.Join("/new", "b"), items[0].WorkDir)
	assert.Equal(t, "c", items[1].ID)

	rep.Results = rep.Results[:1]
	rep.Tally()
	require.NoError(t, report.Save(fs, "/reports/second.json", rep))

	_, err = resolveItems(context.Background(), fs, builtin(t, "dl-segmentation"), inputs{reprocess: "/reports/second.json"}, "/new")
	require.ErrorIs(t, err, ErrNothingToReprocess)
}
