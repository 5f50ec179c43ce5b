// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package workspace

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matt-FFFFFF/nipipe/internal/pipeline"
	"github.com/spf13/afero"
)

// Eligibility is the result of checking a patient against pipeline requirements.
type Eligibility struct {
	Patient   Patient
	Eligible  bool                // Every required input was found.
	Found     map[string]string   // First match per requirement name.
	Matches   map[string][]string // All matches per requirement name.
	Missing   []string            // Labels of required inputs that were not found.
	Ambiguous []string            // Names of requirements with more than one match.
}

// NeedRevision reports whether a requirement matched more than one file and
// the first match was picked.
func (e Eligibility) NeedRevision() bool {
	return len(e.Ambiguous) > 0
}

// ExpandPattern replaces {root} and {patient} in a requirement pattern.
func ExpandPattern(pattern, root, patientID string) string {
	return strings.NewReplacer("{root}", root, "{patient}", patientID).Replace(pattern)
}

// Check globs every requirement pattern for the patient.
func (w *Workspace) Check(p Patient, reqs []pipeline.Requirement) (Eligibility, error) {
	e := Eligibility{
		Patient:  p,
		Eligible: true,
		Found:    make(map[string]string, len(reqs)),
		Matches:  make(map[string][]string, len(reqs)),
	}

	for _, r := range reqs {
		var matches []string

		for _, pattern := range r.Patterns {
			m, err := afero.Glob(w.fs, ExpandPattern(pattern, w.root, p.ID))
			if err != nil {
				return e, fmt.Errorf("requirement %s: %w", r.Name, err)
			}

			slices.Sort(m)
			matches = append(matches, m...)
		}

		if len(matches) == 0 {
			if !r.Optional {
				e.Eligible = false
				e.Missing = append(e.Missing, r.DisplayName())
			}

			continue
		}

		e.Found[r.Name] = matches[0]
		e.Matches[r.Name] = matches

		if len(matches) > 1 {
			e.Ambiguous = append(e.Ambiguous, r.Name)
		}
	}

	return e, nil
}

// Scan discovers patients and checks each of them.
func (w *Workspace) Scan(ctx context.Context, reqs []pipeline.Requirement) ([]Eligibility, error) {
	patients, err := w.Discover(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Eligibility, 0, len(patients))

	for _, p := range patients {
		e, err := w.Check(p, reqs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.ID, err)
		}

		out = append(out, e)
	}

	return out, nil
}

// Eligible returns the eligible entries.
func Eligible(entries []Eligibility) []Eligibility {
	return slices.DeleteFunc(slices.Clone(entries), func(e Eligibility) bool {
		return !e.Eligible
	})
}
