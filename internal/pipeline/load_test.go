// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"
	"time"

	"github.com/prashantv/gostub"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
name: strip-only
params:
  level: "2"
phases:
  - name: strip
    label: Skull strip
    command: mri_synthstrip
    args: ["-i", "${item.path}", "-o", "${workdir}/${item.stem}_brain.nii.gz", "--level", "${params.level}"]
    output: "*_brain.nii.gz"
    timeout: 90s
    weight: 2
    env:
      FS_LICENSE: /opt/license.txt
`

const testHCL = `
pipeline "strip-only" {
  description = "one phase"
  params = {
    level = "2"
  }

  requirement "flair" {
    label    = "FLAIR"
    patterns = ["{root}/{patient}/anat/*_flair.nii.gz"]
  }

  phase "strip" {
    label   = "Skull strip"
    command = "mri_synthstrip"
    args    = ["-i", "${artifacts.flair}", "-o", "${workdir}/${item.stem}_brain.nii.gz", "--level", "${params.level}"]
    output  = "*_brain.nii.gz"
    timeout = "90s"
    weight  = 2
    skip_if_present = true
  }
}
`

func TestDecodeYAML(t *testing.T) {
	def, err := DecodeYAML([]byte(testYAML))
	require.NoError(t, err)

	assert.Equal(t, "strip-only", def.Name)
	require.Len(t, def.Phases, 1)

	p := def.Phases[0]
	assert.Equal(t, "Skull strip", p.DisplayName())
	assert.Equal(t, 90*time.Second, p.Timeout)
	assert.Equal(t, 2.0, p.Weight)
	assert.Equal(t, "/opt/license.txt", p.Env["FS_LICENSE"])
	require.Len(t, p.Args, 6)

	got, err := p.Args[3].Render(testScope().EvalContext())
	require.NoError(t, err)
	assert.Equal(t, "/out/sub-01/sub-01_flair_brain.nii.gz", got)
}

func TestDecodeYAML_Errors(t *testing.T) {
	_, err := DecodeYAML([]byte("name: [unterminated"))
	require.ErrorIs(t, err, ErrInvalidYaml)

	_, err = DecodeYAML([]byte("name: x\nunknown_field: 1\nphases: []"))
	require.ErrorIs(t, err, ErrInvalidYaml)

	_, err = DecodeYAML([]byte("name: x\nphases:\n  - name: a\n    command: c\n    output: o\n    timeout: soon\n"))
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = DecodeYAML([]byte("name: x\nphases: []\n"))
	require.ErrorIs(t, err, ErrNoPhases)
}

func TestDecodeHCL(t *testing.T) {
	def, err := DecodeHCL("strip.hcl", []byte(testHCL))
	require.NoError(t, err)

	assert.Equal(t, "strip-only", def.Name)
	assert.Equal(t, "one phase", def.Description)
	require.Len(t, def.Requirements, 1)
	assert.Equal(t, "FLAIR", def.Requirements[0].Label)

	require.Len(t, def.Phases, 1)
	p := def.Phases[0]
	assert.True(t, p.SkipIfPresent)
	assert.True(t, p.Stdin.IsZero())
	assert.Equal(t, 90*time.Second, p.Timeout)
	assert.Equal(t, "mri_synthstrip", p.Command.String())
	assert.Equal(t, []string{"flair"}, p.ArtifactRefs())

	scope := testScope()
	scope.Artifacts = map[string]string{"flair": "/data/sub-01/anat/sub-01_flair.nii.gz"}

	var args []string

	for _, a := range p.Args {
		s, err := a.Render(scope.EvalContext())
		require.NoError(t, err)

		args = append(args, s)
	}

	assert.Equal(t, []string{
		"-i", "/data/sub-01/anat/sub-01_flair.nii.gz",
		"-o", "/out/sub-01/sub-01_flair_brain.nii.gz",
		"--level", "2",
	}, args)
}

func TestDecodeHCL_Errors(t *testing.T) {
	_, err := DecodeHCL("bad.hcl", []byte(`pipeline "x" {`))
	require.ErrorIs(t, err, ErrParseHcl)

	_, err = DecodeHCL("empty.hcl", []byte(``))
	require.ErrorIs(t, err, ErrPipelineBlockCount)

	_, err = DecodeHCL("nocmd.hcl", []byte(`pipeline "x" {
  phase "a" {
    output = "x"
  }
}`))
	require.ErrorIs(t, err, ErrParseHcl)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/defs/strip.yaml", []byte(testYAML), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/defs/strip.hcl", []byte(testHCL), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/defs/strip.toml", []byte(""), 0o644))

	stubs := gostub.Stub(&FsFactory, func() afero.Fs {
		return fs
	})
	defer stubs.Reset()

	def, err := LoadFile("/defs/strip.yaml")
	require.NoError(t, err)
	assert.Equal(t, "strip-only", def.Name)

	def, err = Resolve("/defs/strip.hcl")
	require.NoError(t, err)
	assert.Equal(t, "strip-only", def.Name)

	_, err = LoadFile("/defs/strip.toml")
	require.ErrorIs(t, err, ErrUnknownFormat)

	_, err = LoadFile("/defs/missing.yaml")
	require.ErrorIs(t, err, ErrReadDefinition)
}

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"dl-segmentation", "patient-pipeline"}, BuiltinNames())

	for _, name := range BuiltinNames() {
		t.Run(name, func(t *testing.T) {
			def, err := Resolve(name)
			require.NoError(t, err)
			assert.Equal(t, name, def.Name)
			assert.NotEmpty(t, def.Phases)
		})
	}

	dl, err := Builtin("dl-segmentation")
	require.NoError(t, err)
	require.Len(t, dl.Phases, 6)
	assert.Equal(t, "reorientation", dl.Phases[2].Name)

	_, err = Builtin("nope")
	require.ErrorIs(t, err, ErrUnknownBuiltin)
}

func TestEncodeYAML_RoundTrip(t *testing.T) {
	def, err := Builtin("dl-segmentation")
	require.NoError(t, err)

	out, err := EncodeYAML(def)
	require.NoError(t, err)

	again, err := DecodeYAML(out)
	require.NoError(t, err)
	assert.Equal(t, len(def.Phases), len(again.Phases))
	assert.Equal(t, def.Phases[1].Args[1].String(), again.Phases[1].Args[1].String())
	assert.Equal(t, def.Phases[4].Timeout, again.Phases[4].Timeout)
}
