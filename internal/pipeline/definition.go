// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"
)

var (
	// ErrInvalidDefinition is returned when a definition fails validation.
	ErrInvalidDefinition = errors.New("invalid pipeline definition")
	// ErrNoPhases is returned when a definition has no phases.
	ErrNoPhases = errors.New("pipeline has no phases")
	// ErrMissingName is returned when a definition or phase has no name.
	ErrMissingName = errors.New("name is required")
	// ErrDuplicatePhase is returned when two phases share a name.
	ErrDuplicatePhase = errors.New("duplicate phase name")
	// ErrMissingCommand is returned when a phase has no command.
	ErrMissingCommand = errors.New("phase command is required")
	// ErrMissingOutput is returned when a phase has no expected output pattern.
	ErrMissingOutput = errors.New("phase output is required")
	// ErrUnknownArtifact is returned when a phase refers to an artifact no earlier phase or requirement produces.
	ErrUnknownArtifact = errors.New("unknown artifact")
	// ErrUnknownParam is returned when a template refers to an undeclared parameter.
	ErrUnknownParam = errors.New("unknown parameter")
	// ErrUnknownVariable is returned when a template refers to a variable that does not exist.
	ErrUnknownVariable = errors.New("unknown template variable")
	// ErrInvalidWeight is returned when a phase weight is negative.
	ErrInvalidWeight = errors.New("phase weight must not be negative")
)

// Definition is an ordered list of phases plus the inputs they need.
// A batch never mutates its definition.
type Definition struct {
	Name         string
	Description  string
	Params       map[string]string // Default parameter values.
	Requirements []Requirement     // Per patient inputs, used in workspace mode.
	Phases       []*PhaseSpec
}

// Requirement is an input artifact an item must have before the pipeline runs on it.
type Requirement struct {
	Name     string   // Artifact name, usable as artifacts.NAME in templates.
	Label    string   // Human readable name, e.g. "FLAIR".
	Patterns []string // Glob patterns, {root} and {patient} are substituted.
	Optional bool
}

// DisplayName returns the label of the requirement, falling back to its name.
func (r Requirement) DisplayName() string {
	if r.Label != "" {
		return r.Label
	}

	return r.Name
}

// PhaseSpec describes one external tool invocation.
type PhaseSpec struct {
	Name          string
	Label         string
	Command       Template
	Args          []Template
	Stdin         Template
	Inputs        []string // Artifact names that must exist before the phase starts.
	Output        Template // Glob pattern, relative to the item work dir, of the expected output.
	Weight        float64  // Relative progress weight, defaults to 1.
	Timeout       time.Duration
	Env           map[string]string
	SkipIfPresent bool
}

// DisplayName returns the label of the phase, falling back to its name.
func (p *PhaseSpec) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}

	return p.Name
}

// templates returns every template of the phase with a short field name.
func (p *PhaseSpec) templates() map[string]Template {
	m := map[string]Template{
		"command": p.Command,
		"stdin":   p.Stdin,
		"output":  p.Output,
	}
	for i, a := range p.Args {
		m[fmt.Sprintf("args[%d]", i)] = a
	}

	return m
}

// ArtifactRefs returns every artifact the phase needs: its declared inputs and
// the artifacts its templates refer to. Duplicates are removed, order is stable.
func (p *PhaseSpec) ArtifactRefs() []string {
	refs := slices.Clone(p.Inputs)

	refs = append(refs, p.Command.ArtifactRefs()...)
	for _, a := range p.Args {
		refs = append(refs, a.ArtifactRefs()...)
	}

	refs = append(refs, p.Stdin.ArtifactRefs()...)
	refs = append(refs, p.Output.ArtifactRefs()...)

	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}

	return out
}

// Phase returns the phase with the given name, or nil.
func (d *Definition) Phase(name string) *PhaseSpec {
	for _, p := range d.Phases {
		if p.Name == name {
			return p
		}
	}

	return nil
}

// Weights returns the progress weight of each phase in order. A zero weight counts as 1.
func (d *Definition) Weights() []float64 {
	w := make([]float64, len(d.Phases))

	for i, p := range d.Phases {
		w[i] = p.Weight
		if w[i] == 0 {
			w[i] = 1
		}
	}

	return w
}

// Validate checks the definition is internally consistent.
// All problems are returned together, wrapped in ErrInvalidDefinition.
func (d *Definition) Validate() error {
	var result error

	if d.Name == "" {
		result = multierror.Append(result, fmt.Errorf("pipeline: %w", ErrMissingName))
	}

	if len(d.Phases) == 0 {
		result = multierror.Append(result, ErrNoPhases)
	}

	known := make([]string, 0, len(d.Requirements)+len(d.Phases))
	for _, r := range d.Requirements {
		if r.Name == "" {
			result = multierror.Append(result, fmt.Errorf("requirement: %w", ErrMissingName))
			continue
		}

		known = append(known, r.Name)
	}

	seen := make(map[string]struct{}, len(d.Phases))

	for i, p := range d.Phases {
		if p == nil {
			result = multierror.Append(result, fmt.Errorf("phase %d: %w", i, ErrMissingName))
			continue
		}

		where := fmt.Sprintf("phase %q", p.Name)

		if p.Name == "" {
			where = fmt.Sprintf("phase %d", i)
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, ErrMissingName))
		}

		if _, dup := seen[p.Name]; dup && p.Name != "" {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, ErrDuplicatePhase))
		}

		seen[p.Name] = struct{}{}

		if p.Command.IsZero() || p.Command.String() == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, ErrMissingCommand))
		}

		if p.Output.IsZero() || p.Output.String() == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, ErrMissingOutput))
		}

		if p.Weight < 0 {
			result = multierror.Append(result, fmt.Errorf("%s: %w", where, ErrInvalidWeight))
		}

		for _, ref := range p.ArtifactRefs() {
			if !slices.Contains(known, ref) {
				result = multierror.Append(result, fmt.Errorf("%s: %w: %q", where, ErrUnknownArtifact, ref))
			}
		}

		tmpls := p.templates()
		for _, field := range slices.Sorted(maps.Keys(tmpls)) {
			t := tmpls[field]
			for _, root := range t.Roots() {
				if !slices.Contains(templateRoots, root) {
					result = multierror.Append(result, fmt.Errorf("%s: %s: %w: %q", where, field, ErrUnknownVariable, root))
				}
			}

			for _, ref := range t.ParamRefs() {
				if _, ok := d.Params[ref]; !ok {
					result = multierror.Append(result, fmt.Errorf("%s: %s: %w: %q", where, field, ErrUnknownParam, ref))
				}
			}
		}

		known = append(known, p.Name)
	}

	if result != nil {
		return errors.Join(ErrInvalidDefinition, result)
	}

	return nil
}
