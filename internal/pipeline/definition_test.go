// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDefinition() *Definition {
	return &Definition{
		Name:   "test",
		Params: map[string]string{"atlas": "mni.nii.gz"},
		Requirements: []Requirement{
			{Name: "flair", Patterns: []string{"{root}/{patient}/anat/*_flair.nii.gz"}},
		},
		Phases: []*PhaseSpec{
			{
				Name:    "strip",
				Command: MustParseTemplate("mri_synthstrip"),
				Args:    []Template{MustParseTemplate("${artifacts.flair}")},
				Output:  MustParseTemplate("*_brain.nii.gz"),
			},
			{
				Name:    "register",
				Command: MustParseTemplate("flirt"),
				Args:    []Template{MustParseTemplate("${artifacts.strip}"), MustParseTemplate("${params.atlas}")},
				Output:  MustParseTemplate("*_in_atlas.nii.gz"),
				Weight:  3,
			},
		},
	}
}

func TestDefinition_Validate(t *testing.T) {
	require.NoError(t, validDefinition().Validate())
}

func TestDefinition_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Definition)
		wantErr error
	}{
		{
			name:    "missing name",
			mutate:  func(d *Definition) { d.Name = "" },
			wantErr: ErrMissingName,
		},
		{
			name:    "no phases",
			mutate:  func(d *Definition) { d.Phases = nil },
			wantErr: ErrNoPhases,
		},
		{
			name:    "duplicate phase",
			mutate:  func(d *Definition) { d.Phases[1].Name = "strip" },
			wantErr: ErrDuplicatePhase,
		},
		{
			name:    "missing command",
			mutate:  func(d *Definition) { d.Phases[0].Command = Template{} },
			wantErr: ErrMissingCommand,
		},
		{
			name:    "missing output",
			mutate:  func(d *Definition) { d.Phases[0].Output = Template{} },
			wantErr: ErrMissingOutput,
		},
		{
			name: "artifact from a later phase",
			mutate: func(d *Definition) {
				d.Phases[0].Args = []Template{MustParseTemplate("${artifacts.register}")}
			},
			wantErr: ErrUnknownArtifact,
		},
		{
			name:    "unknown input",
			mutate:  func(d *Definition) { d.Phases[1].Inputs = []string{"nope"} },
			wantErr: ErrUnknownArtifact,
		},
		{
			name:    "undeclared param",
			mutate:  func(d *Definition) { d.Params = nil },
			wantErr: ErrUnknownParam,
		},
		{
			name:    "unknown variable",
			mutate:  func(d *Definition) { d.Phases[0].Output = MustParseTemplate("${nope}/x") },
			wantErr: ErrUnknownVariable,
		},
		{
			name:    "negative weight",
			mutate:  func(d *Definition) { d.Phases[0].Weight = -1 },
			wantErr: ErrInvalidWeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDefinition()
			tt.mutate(d)

			err := d.Validate()
			require.ErrorIs(t, err, ErrInvalidDefinition)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDefinition_ValidateCollectsAllErrors(t *testing.T) {
	d := validDefinition()
	d.Name = ""
	d.Phases[0].Output = Template{}
	d.Phases[1].Command = Template{}

	err := d.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingName)
	assert.ErrorIs(t, err, ErrMissingOutput)
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestDefinition_Weights(t *testing.T) {
	assert.Equal(t, []float64{1, 3}, validDefinition().Weights())
}

func TestPhaseSpec_ArtifactRefs(t *testing.T) {
	p := &PhaseSpec{
		Inputs:  []string{"strip", "flair"},
		Command: MustParseTemplate("tool"),
		Args:    []Template{MustParseTemplate("${artifacts.strip}"), MustParseTemplate("${artifacts.mask}")},
		Output:  MustParseTemplate("*.nii.gz"),
	}

	assert.Equal(t, []string{"strip", "flair", "mask"}, p.ArtifactRefs())
}
