// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/matt-FFFFFF/nipipe/internal/color"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.SetEnabled(false)
	os.Exit(m.Run())
}

func result(id string, status pipeline.ItemStatus) *pipeline.ItemResult {
	res := &pipeline.ItemResult{
		Item:              pipeline.Item{ID: id, Path: "/data/" + id + ".nii.gz", WorkDir: "/out/" + id},
		Status:            status,
		FailingPhaseIndex: -1,
		Started:           true,
	}

	switch status {
	case pipeline.StatusFailed:
		res.FailingPhase = "coregistration"
		res.FailingPhaseIndex = 1
		res.Kind = pipeline.FailureUnknownError
		res.ExitCode = 2
		res.Detail = "Unknown error code: 2"
	case pipeline.StatusCancelled:
		res.FailingPhase = "skull_strip"
		res.FailingPhaseIndex = 0
		res.Kind = pipeline.FailureCancelled
		res.Detail = "Processing cancelled by user"
	case pipeline.StatusSucceeded:
		res.Artifacts = map[string]string{"skull_strip": "/out/" + id + "/brain.nii.gz"}
	}

	return res
}

func notStarted(res *pipeline.ItemResult) *pipeline.ItemResult {
	res.Started = false
	res.FailingPhase = ""
	res.FailingPhaseIndex = -1

	return res
}

func testReport(results ...*pipeline.ItemResult) *pipeline.Report {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	r := &pipeline.Report{
		BatchID:    "b-1",
		Pipeline:   "dl-segmentation",
		State:      pipeline.StateCompleted,
		Results:    results,
		OutputRoot: "/out",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
	}
	r.Tally()

	return r
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		report *pipeline.Report
		want   string
	}{
		{
			name:   "no items",
			report: testReport(),
			want:   "No items processed",
		},
		{
			name:   "all succeeded",
			report: testReport(result("sub-01", pipeline.StatusSucceeded), result("sub-02", pipeline.StatusSucceeded)),
			want:   "All 2 items succeeded",
		},
		{
			name:   "single item",
			report: testReport(result("sub-01", pipeline.StatusSucceeded)),
			want:   "All 1 item succeeded",
		},
		{
			name: "partial",
			report: testReport(
				result("sub-01", pipeline.StatusSucceeded),
				result("sub-02", pipeline.StatusFailed),
				result("sub-03", pipeline.StatusSucceeded),
			),
			want: "2 of 3 items succeeded, 1 failed: sub-02",
		},
		{
			name: "failed and cancelled",
			report: testReport(
				result("sub-01", pipeline.StatusFailed),
				result("sub-02", pipeline.StatusCancelled),
			),
			want: "0 of 2 items succeeded, 1 failed: sub-01, 1 cancelled",
		},
		{
			name: "all cancelled",
			report: testReport(
				result("sub-01", pipeline.StatusCancelled),
				notStarted(result("sub-02", pipeline.StatusCancelled)),
				notStarted(result("sub-03", pipeline.StatusCancelled)),
			),
			want: "All 3 items cancelled (2 not started)",
		},
		{
			name: "stopped mid batch",
			report: testReport(
				result("sub-01", pipeline.StatusSucceeded),
				result("sub-02", pipeline.StatusFailed),
				result("sub-03", pipeline.StatusCancelled),
				notStarted(result("sub-04", pipeline.StatusCancelled)),
			),
			want: "1 of 4 items succeeded, 1 failed: sub-02, 2 cancelled (1 not started)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.report))
		})
	}
}

func TestSummary_Fatal(t *testing.T) {
	r := testReport(result("sub-01", pipeline.StatusFailed))
	r.State = pipeline.StateFatal
	r.FatalError = "output root /out was removed"

	assert.Equal(t, "All 1 item failed; batch aborted: output root /out was removed", Summary(r))
}

func TestReprocess(t *testing.T) {
	r := testReport(
		result("sub-01", pipeline.StatusSucceeded),
		result("sub-02", pipeline.StatusFailed),
		result("sub-03", pipeline.StatusCancelled),
	)

	items := Reprocess(r)
	require.Len(t, items, 2)
	assert.Equal(t, "sub-02", items[0].ID)
	assert.Equal(t, "sub-03", items[1].ID)
	assert.Equal(t, "/out/sub-03", items[1].WorkDir)

	assert.Empty(t, Reprocess(testReport(result("sub-01", pipeline.StatusSucceeded))))
}

func TestWriteText(t *testing.T) {
	r := testReport(
		result("sub-01", pipeline.StatusSucceeded),
		result("sub-02", pipeline.StatusFailed),
	)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, r, &OutputOptions{ShowArtifacts: true}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Batch b-1: dl-segmentation, completed in 1m30s\n"), out)
	assert.Contains(t, out, "✓ succeeded")
	assert.Contains(t, out, "✗ failed")
	assert.Contains(t, out, "coregistration")
	assert.Contains(t, out, "unknown_error (2)")
	assert.Contains(t, out, "Unknown error code: 2")
	assert.Contains(t, out, "  ➜ skull_strip: /out/sub-01/brain.nii.gz")
	assert.True(t, strings.HasSuffix(out, "1 of 2 items succeeded, 1 failed: sub-02\n"), out)
}

func TestWriteText_TruncatesDetail(t *testing.T) {
	res := result("sub-01", pipeline.StatusFailed)
	res.Detail = strings.Repeat("x", 100)

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, testReport(res), &OutputOptions{MaxDetail: 20}))

	assert.Contains(t, buf.String(), strings.Repeat("x", 19)+"…")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 20))
}

func TestSaveAndLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	r := testReport(
		result("sub-01", pipeline.StatusSucceeded),
		result("sub-02", pipeline.StatusFailed),
	)

	require.NoError(t, Save(fs, "/out/reports/batch.json", r))

	loaded, err := Load(fs, "/out/reports/batch.json")
	require.NoError(t, err)
	assert.Equal(t, r, loaded)

	data, err := afero.ReadFile(fs, "/out/reports/batch.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "failed"`)
	assert.Contains(t, string(data), `"kind": "unknown_error"`)
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := Load(fs, "/missing.json")
	require.ErrorIs(t, err, ErrReadReport)

	require.NoError(t, afero.WriteFile(fs, "/bad.json", []byte(`{"batch_id": "x", "bogus": 1}`), 0o644))

	_, err = Load(fs, "/bad.json")
	require.ErrorIs(t, err, ErrReadReport)

	require.NoError(t, afero.WriteFile(fs, "/status.json", []byte(`{"results": [{"status": "exploded"}]}`), 0o644))

	_, err = Load(fs, "/status.json")
	require.ErrorIs(t, err, ErrReadReport)
}

func TestSave_ReadOnly(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

	err := Save(fs, "/out/batch.json", testReport())
	require.ErrorIs(t, err, ErrWriteReport)
}

func TestWritePrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePrettyJSON(&buf, testReport(result("sub-01", pipeline.StatusSucceeded)), false))

	out := buf.String()
	assert.Contains(t, out, `"batch_id": "b-1"`)
	assert.Contains(t, out, `"status": "succeeded"`)
	assert.NotContains(t, out, "\x1b[")
}
