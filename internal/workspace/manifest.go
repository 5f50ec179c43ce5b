// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/spf13/afero"
)

const manifestSuffix = "_config.json"

// ErrManifest is returned when a manifest cannot be read or written.
var ErrManifest = errors.New("manifest error")

// Manifest maps patient IDs to the inputs selected for them.
type Manifest map[string]ManifestEntry

// ManifestEntry holds the workspace relative path of each requirement.
// A missing requirement has an empty path and is written as null.
type ManifestEntry struct {
	Artifacts    map[string]string
	NeedRevision bool
}

// MarshalJSON writes the artifacts and need_revision as one flat object.
func (e ManifestEntry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Artifacts)+1)

	for k, v := range e.Artifacts {
		if v == "" {
			m[k] = nil
			continue
		}

		m[k] = v
	}

	m["need_revision"] = e.NeedRevision

	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ManifestEntry) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	e.Artifacts = make(map[string]string, len(raw))
	e.NeedRevision = false

	for k, v := range raw {
		switch val := v.(type) {
		case bool:
			if k == "need_revision" {
				e.NeedRevision = val
			}
		case string:
			e.Artifacts[k] = val
		case nil:
			e.Artifacts[k] = ""
		}
	}

	return nil
}

// BuildManifest records every requirement for each entry, relative to the workspace root.
func (w *Workspace) BuildManifest(reqs []pipeline.Requirement, entries []Eligibility) Manifest {
	m := make(Manifest, len(entries))

	for _, e := range entries {
		entry := ManifestEntry{
			Artifacts:    make(map[string]string, len(reqs)),
			NeedRevision: e.NeedRevision(),
		}

		for _, r := range reqs {
			entry.Artifacts[r.Name] = w.relative(e.Found[r.Name])
		}

		m[e.Patient.ID] = entry
	}

	return m
}

func (w *Workspace) relative(path string) string {
	if path == "" {
		return ""
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}

	return rel
}

// NextManifestID returns one more than the highest numeric prefix of the
// existing manifests, or 1 when there are none.
func (w *Workspace) NextManifestID() (int, error) {
	existing, err := afero.Glob(w.fs, filepath.Join(w.root, PipelineDir, "*"+manifestSuffix))
	if err != nil {
		return 0, err
	}

	next := 1

	for _, f := range existing {
		prefix, _, _ := strings.Cut(filepath.Base(f), "_")

		id, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		next = max(next, id+1)
	}

	return next, nil
}

// WriteManifest writes m to pipeline/NN_config.json and returns its path.
func (w *Workspace) WriteManifest(m Manifest) (string, error) {
	dir := filepath.Join(w.root, PipelineDir)
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Join(ErrManifest, err)
	}

	id, err := w.NextManifestID()
	if err != nil {
		return "", errors.Join(ErrManifest, err)
	}

	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return "", errors.Join(ErrManifest, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%02d%s", id, manifestSuffix))
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return "", errors.Join(ErrManifest, err)
	}

	return path, nil
}

// ReadManifest reads a manifest written by WriteManifest.
func (w *Workspace) ReadManifest(path string) (Manifest, error) {
	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return nil, errors.Join(ErrManifest, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Join(ErrManifest, fmt.Errorf("%s: %w", path, err))
	}

	return m, nil
}

// ManifestItems returns an item per manifest patient, in patient ID order.
// Relative artifact paths are resolved against the workspace root.
func (w *Workspace) ManifestItems(m Manifest, outputRoot string) []pipeline.Item {
	ids := slices.Sorted(maps.Keys(m))
	items := make([]pipeline.Item, 0, len(ids))

	for _, id := range ids {
		arts := make(map[string]string, len(m[id].Artifacts))

		for name, rel := range m[id].Artifacts {
			if rel == "" {
				continue
			}

			if !filepath.IsAbs(rel) {
				rel = filepath.Join(w.root, rel)
			}

			arts[name] = rel
		}

		items = append(items, pipeline.Item{
			ID:        id,
			Path:      filepath.Join(w.root, id),
			WorkDir:   filepath.Join(outputRoot, id),
			Artifacts: arts,
		})
	}

	return items
}
