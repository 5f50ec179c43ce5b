// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-getter/v2"
	"github.com/spf13/afero"
)

// ErrFetchDefinition is returned when a definition cannot be fetched from its URL.
var ErrFetchDefinition = errors.New("failed to fetch definition")

const (
	goGetterPathSeparator = "//"
	goGetterRefSeparator  = "?"
	minimumGetterParts    = 3 // scheme, host and path
)

// Fetch returns the definition ref points to. ref is a built-in name, a local
// file, or a go-getter URL such as
// git::https://github.com/org/repo//pipelines/seg.yaml?ref=v1.
func Fetch(ctx context.Context, ref string) (*Definition, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: no pipeline given", ErrFetchDefinition)
	}

	if slices.Contains(BuiltinNames(), ref) {
		return Builtin(ref)
	}

	if ok, _ := afero.Exists(FsFactory(), ref); ok {
		return LoadFile(ref)
	}

	data, name, err := getURL(ctx, ref)
	if err != nil {
		return nil, err
	}

	return Decode(name, data)
}

// getURL downloads url with go-getter into a temporary directory and returns
// the file content and name. The temporary directory is removed afterwards.
func getURL(ctx context.Context, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", ErrFetchDefinition
	}

	tmpDir, err := os.MkdirTemp("", "nipipe-getter-*")
	if err != nil {
		return nil, "", errors.Join(ErrFetchDefinition, err)
	}

	defer os.RemoveAll(tmpDir) //nolint:errcheck

	wd, err := os.Getwd()
	if err != nil {
		return nil, "", errors.Join(ErrFetchDefinition, err)
	}

	client := getter.Client{
		DisableSymlinks: true,
	}

	req := &getter.Request{
		Src:     url,
		Dst:     filepath.Join(tmpDir, "g"),
		Pwd:     wd,
		GetMode: getter.ModeDir,
	}

	var fileName string

	// go-getter cannot fetch a single file out of a remote directory, so the
	// directory is fetched and the file read from it.
	// https://github.com/hashicorp/go-getter/issues/98
	if ok, err := getter.Detect(req, &getter.FileGetter{}); !ok || err != nil {
		if err != nil {
			return nil, "", errors.Join(ErrFetchDefinition, err)
		}

		var dirURL string

		dirURL, fileName = splitFileNameFromGetterURL(url)
		if dirURL == "" || fileName == "" {
			return nil, "", fmt.Errorf("%w: invalid URL format: %s", ErrFetchDefinition, url)
		}

		req.Src = dirURL
	}

	if fileName == "" {
		req.Src = filepath.Dir(url)
		fileName = filepath.Base(url)
	}

	res, err := client.Get(ctx, req)
	if err != nil {
		return nil, "", errors.Join(ErrFetchDefinition, err)
	}

	data, err := os.ReadFile(filepath.Join(res.Dst, fileName))
	if err != nil {
		return nil, "", errors.Join(ErrFetchDefinition, err)
	}

	return data, fileName, nil
}

// splitFileNameFromGetterURL returns the getter URL of the directory holding
// the file, with any ref query kept, and the file name.
func splitFileNameFromGetterURL(url string) (string, string) {
	var ref string

	parts := strings.Split(url, goGetterPathSeparator)
	if len(parts) < minimumGetterParts {
		return "", ""
	}

	last := parts[len(parts)-1]
	if path, query, found := strings.Cut(last, goGetterRefSeparator); found {
		ref = query
		last = path
	}

	if filepath.Clean(last) == filepath.Dir(last) {
		return "", ""
	}

	fileName := filepath.Base(last)

	parts[len(parts)-1] = filepath.Dir(last)
	if parts[len(parts)-1] == "." {
		parts = parts[:len(parts)-1]
	}

	dirURL := strings.Join(parts, goGetterPathSeparator)
	if ref != "" {
		dirURL += goGetterRefSeparator + ref
	}

	return dirURL, fileName
}
