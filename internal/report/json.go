// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/TylerBrock/colorjson"
	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/spf13/afero"
)

var (
	// ErrWriteReport is returned when a report cannot be encoded or written.
	ErrWriteReport = errors.New("failed to write report")
	// ErrReadReport is returned when a report cannot be read or decoded.
	ErrReadReport = errors.New("failed to read report")
)

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *pipeline.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r); err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	return nil
}

// ReadJSON decodes a report written by WriteJSON. Unknown fields are rejected.
func ReadJSON(rd io.Reader) (*pipeline.Report, error) {
	dec := json.NewDecoder(rd)
	dec.DisallowUnknownFields()

	var r pipeline.Report
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Join(ErrReadReport, err)
	}

	return &r, nil
}

// Save writes r to path, creating the parent directory.
func Save(fsys afero.Fs, path string, r *pipeline.Report) error {
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	f, err := fsys.Create(path)
	if err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	if err := WriteJSON(f, r); err != nil {
		f.Close() // nolint:errcheck
		return err
	}

	if err := f.Close(); err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	return nil
}

// Load reads the report stored at path.
func Load(fsys afero.Fs, path string) (*pipeline.Report, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, errors.Join(ErrReadReport, err)
	}
	defer f.Close() // nolint:errcheck

	r, err := ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return r, nil
}

// WritePrettyJSON writes r as indented JSON, coloured when colour is true.
func WritePrettyJSON(w io.Writer, r *pipeline.Report, colour bool) error {
	if !colour {
		return WriteJSON(w, r)
	}

	// colorjson formats generic values, so round trip through a map.
	b, err := json.Marshal(r)
	if err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	f := colorjson.NewFormatter()
	f.Indent = 2

	out, err := f.Marshal(v)
	if err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return errors.Join(ErrWriteReport, err)
	}

	return nil
}
