// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"testing"

	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_getURL(t *testing.T) {
	testCases := []struct {
		name     string
		url      string
		wantErr  error
		wantName string
	}{
		{
			name:    "empty url returns error",
			url:     "",
			wantErr: ErrFetchDefinition,
		},
		{
			name:    "remote fetch fails",
			url:     "git::http://notexist//file.yaml",
			wantErr: ErrFetchDefinition,
		},
		{
			name:     "local file",
			url:      "./testdata/strip.yaml",
			wantName: "strip.yaml",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, name, err := getURL(context.Background(), tc.url)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, data)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.wantName, name)
			assert.Contains(t, string(data), "name: strip-only")
		})
	}
}

func Test_splitFileNameFromGetterURL(t *testing.T) {
	testCases := []struct {
		url      string
		wantURL  string
		wantFile string
	}{
		{
			url:      "git::https://github.com/org/repo//pipelines/seg.yaml?ref=v1",
			wantURL:  "git::https://github.com/org/repo//pipelines?ref=v1",
			wantFile: "seg.yaml",
		},
		{
			url:      "git::https://github.com/org/repo//seg.hcl",
			wantURL:  "git::https://github.com/org/repo",
			wantFile: "seg.hcl",
		},
		{
			url: "https://example.com/seg.yaml",
		},
		{
			url: "git::https://github.com/org/repo//pipelines/",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.url, func(t *testing.T) {
			gotURL, gotFile := splitFileNameFromGetterURL(tc.url)
			assert.Equal(t, tc.wantURL, gotURL)
			assert.Equal(t, tc.wantFile, gotFile)
		})
	}
}

func TestFetch(t *testing.T) {
	ctx := context.Background()

	def, err := Fetch(ctx, "dl-segmentation")
	require.NoError(t, err)
	assert.Equal(t, "dl-segmentation", def.Name)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/defs/strip.yaml", []byte(testYAML), 0o644))

	stubs := gostub.Stub(&FsFactory, func() afero.Fs { return fs })
	defer stubs.Reset()

	def, err = Fetch(ctx, "/defs/strip.yaml")
	require.NoError(t, err)
	assert.Equal(t, "strip-only", def.Name)

	_, err = Fetch(ctx, "")
	require.ErrorIs(t, err, ErrFetchDefinition)
}
