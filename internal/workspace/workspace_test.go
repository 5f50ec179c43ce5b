// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package workspace

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFiles = []string{
	"/ws/sub-01/anat/sub-01_flair.nii.gz",
	"/ws/sub-01/ses-01/pet/sub-01_pet.nii.gz",
	"/ws/derivatives/skullstrips/sub-01/anat/sub-01_brain.nii.gz",
	"/ws/derivatives/manual_masks/sub-01/anat/sub-01_mask.nii.gz",
	"/ws/derivatives/deep_learning_seg/sub-01/anat/sub-01_seg.nii.gz",
	"/ws/sub-01/sub-nested/anat/x_flair.nii",
	"/ws/sub-02/anat/sub-02_flair.nii",
	"/ws/site-b/sub-03/anat/sub-03_flair.nii",
	"/ws/pipeline/sub-99/anat/sub-99_flair.nii",
	"/ws/.cache/sub-98/anat/sub-98_flair.nii",
}

func testWorkspace(t *testing.T) *Workspace {
	t.Helper()

	fs := afero.NewMemMapFs()
	for _, f := range testFiles {
		require.NoError(t, afero.WriteFile(fs, f, []byte("nifti"), 0o644))
	}

	stubs := gostub.Stub(&FsFactory, func() afero.Fs { return fs })
	t.Cleanup(stubs.Reset)

	ws, err := Open("/ws")
	require.NoError(t, err)

	return ws
}

func requirements(t *testing.T) []pipeline.Requirement {
	t.Helper()

	def, err := pipeline.Builtin("patient-pipeline")
	require.NoError(t, err)

	return def.Requirements
}

func TestOpen_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/file.txt", nil, 0o644))

	defer gostub.Stub(&FsFactory, func() afero.Fs { return fs }).Reset()

	_, err := Open("/missing")
	require.Error(t, err)

	_, err = Open("/file.txt")
	require.ErrorIs(t, err, ErrNotDirectory)
}

func TestOpenFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/ws/sub-01", 0o755))

	ws, err := OpenFs(fs, "/ws")
	require.NoError(t, err)
	assert.Same(t, fs, ws.Fs())
	assert.Equal(t, "/ws", ws.Root())

	_, err = OpenFs(afero.NewMemMapFs(), "/ws")
	require.Error(t, err)
}

func TestDiscover(t *testing.T) {
	ws := testWorkspace(t)

	patients, err := ws.Discover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Patient{
		{ID: "sub-03", Path: "/ws/site-b/sub-03"},
		{ID: "sub-01", Path: "/ws/sub-01"},
		{ID: "sub-02", Path: "/ws/sub-02"},
	}, patients)
}

func TestDiscover_Cancelled(t *testing.T) {
	ws := testWorkspace(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ws.Discover(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCheck(t *testing.T) {
	ws := testWorkspace(t)
	reqs := requirements(t)

	e, err := ws.Check(Patient{ID: "sub-01", Path: "/ws/sub-01"}, reqs)
	require.NoError(t, err)

	assert.True(t, e.Eligible)
	assert.Empty(t, e.Missing)
	assert.Equal(t, "/ws/sub-01/anat/sub-01_flair.nii.gz", e.Found["mri"])
	assert.Equal(t, "/ws/derivatives/skullstrips/sub-01/anat/sub-01_brain.nii.gz", e.Found["mri_str"])
	assert.Equal(t, "/ws/derivatives/manual_masks/sub-01/anat/sub-01_mask.nii.gz", e.Found["tumor_mri"])
	assert.NotContains(t, e.Found, "pet4d")

	// a mask and a deep learning segmentation both match
	assert.Equal(t, []string{"tumor_mri"}, e.Ambiguous)
	assert.True(t, e.NeedRevision())
	assert.Len(t, e.Matches["tumor_mri"], 2)

	e, err = ws.Check(Patient{ID: "sub-02", Path: "/ws/sub-02"}, reqs)
	require.NoError(t, err)

	assert.False(t, e.Eligible)
	assert.False(t, e.NeedRevision())
	assert.Equal(t, []string{"Skull strip", "PET", "Segmentation"}, e.Missing)
}

func TestScanAndItems(t *testing.T) {
	ws := testWorkspace(t)

	entries, err := ws.Scan(context.Background(), requirements(t))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	eligible := Eligible(entries)
	require.Len(t, eligible, 1)
	assert.Equal(t, "sub-01", eligible[0].Patient.ID)

	items := PatientItems(entries, "/out")
	require.Len(t, items, 1)
	assert.Equal(t, "sub-01", items[0].ID)
	assert.Equal(t, "/out/sub-01", items[0].WorkDir)
	assert.Equal(t, "/ws/sub-01/ses-01/pet/sub-01_pet.nii.gz", items[0].Artifacts["pet"])
}

func TestManifest(t *testing.T) {
	ws := testWorkspace(t)
	reqs := requirements(t)

	entries, err := ws.Scan(context.Background(), reqs)
	require.NoError(t, err)

	id, err := ws.NextManifestID()
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	m := ws.BuildManifest(reqs, Eligible(entries))

	path, err := ws.WriteManifest(m)
	require.NoError(t, err)
	assert.Equal(t, "/ws/pipeline/01_config.json", path)

	data, err := afero.ReadFile(ws.Fs(), path)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "sub-01/anat/sub-01_flair.nii.gz", raw["sub-01"]["mri"])
	assert.Equal(t, true, raw["sub-01"]["need_revision"])
	assert.Contains(t, raw["sub-01"], "pet4d")
	assert.Nil(t, raw["sub-01"]["pet4d"])
	assert.Contains(t, string(data), "\n    \"sub-01\": {")

	// gaps and foreign files do not matter, the next id follows the highest one
	require.NoError(t, afero.WriteFile(ws.Fs(), "/ws/pipeline/07_config.json", []byte("{}"), 0o644))
	require.NoError(t, afero.WriteFile(ws.Fs(), "/ws/pipeline/notes_config.json", []byte("{}"), 0o644))

	path, err = ws.WriteManifest(m)
	require.NoError(t, err)
	assert.Equal(t, "/ws/pipeline/08_config.json", path)

	read, err := ws.ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, read)

	items := ws.ManifestItems(read, "/out")
	require.Len(t, items, 1)
	assert.Equal(t, "/ws/sub-01/anat/sub-01_flair.nii.gz", items[0].Artifacts["mri"])
	assert.NotContains(t, items[0].Artifacts, "pet4d")
}

func TestReadManifest_Invalid(t *testing.T) {
	ws := testWorkspace(t)
	require.NoError(t, afero.WriteFile(ws.Fs(), "/ws/pipeline/01_config.json", []byte("not json"), 0o644))

	_, err := ws.ReadManifest("/ws/pipeline/01_config.json")
	require.ErrorIs(t, err, ErrManifest)

	_, err = ws.ReadManifest("/ws/pipeline/02_config.json")
	require.ErrorIs(t, err, ErrManifest)
}

func TestFileItems(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, f := range []string{"/a/sub-01_flair.nii.gz", "/b/sub-01_flair.nii.gz", "/a/sub-02.nii"} {
		require.NoError(t, afero.WriteFile(fs, f, nil, 0o644))
	}

	items, err := FileItems(fs, []string{"/a/sub-01_flair.nii.gz", "/b/sub-01_flair.nii.gz", "/a/sub-02.nii"}, "/out")
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "sub-01_flair", items[0].ID)
	assert.Equal(t, "sub-01_flair-2", items[1].ID)
	assert.Equal(t, "sub-02", items[2].ID)
	assert.Equal(t, filepath.Join("/out", "sub-01_flair-2"), items[1].WorkDir)
	assert.Equal(t, "sub-01_flair.nii.gz", items[0].DisplayName())
	assert.Equal(t, "/a/sub-02.nii", items[2].Artifacts["input"])

	_, err = FileItems(fs, []string{"/a/missing.nii"}, "/out")
	require.ErrorIs(t, err, ErrInputNotFound)

	_, err = FileItems(fs, []string{"/a"}, "/out")
	require.ErrorIs(t, err, ErrInputNotFound)
}

func TestExpandPattern(t *testing.T) {
	assert.Equal(t, "/ws/derivatives/skullstrips/sub-01/anat/*_brain.nii",
		ExpandPattern("{root}/derivatives/skullstrips/{patient}/anat/*_brain.nii", "/ws", "sub-01"))
}
