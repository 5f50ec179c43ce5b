// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

var (
	// ErrParseHcl is returned when an HCL definition cannot be parsed or decoded.
	ErrParseHcl = errors.New("failed to parse HCL definition")
	// ErrPipelineBlockCount is returned when an HCL file does not contain exactly one pipeline block.
	ErrPipelineBlockCount = errors.New("expected exactly one pipeline block")
)

type hclFile struct {
	Pipelines []hclPipeline `hcl:"pipeline,block"`
}

type hclPipeline struct {
	Name         string            `hcl:"name,label"`
	Description  string            `hcl:"description,optional"`
	Params       map[string]string `hcl:"params,optional"`
	Requirements []hclRequirement  `hcl:"requirement,block"`
	Phases       []hclPhase        `hcl:"phase,block"`
}

type hclRequirement struct {
	Name     string   `hcl:"name,label"`
	Label    string   `hcl:"label,optional"`
	Patterns []string `hcl:"patterns"`
	Optional bool     `hcl:"optional,optional"`
}

type hclPhase struct {
	Name          string            `hcl:"name,label"`
	Label         string            `hcl:"label,optional"`
	Command       hcl.Expression    `hcl:"command"`
	Args          hcl.Expression    `hcl:"args,optional"`
	Stdin         hcl.Expression    `hcl:"stdin,optional"`
	Inputs        []string          `hcl:"inputs,optional"`
	Output        hcl.Expression    `hcl:"output"`
	Weight        float64           `hcl:"weight,optional"`
	Timeout       string            `hcl:"timeout,optional"`
	Env           map[string]string `hcl:"env,optional"`
	SkipIfPresent bool              `hcl:"skip_if_present,optional"`
}

// DecodeHCL decodes and validates a definition written in HCL, e.g.
//
//	pipeline "dl-segmentation" {
//	  phase "skullstrip" {
//	    command = "mri_synthstrip"
//	    args    = ["-i", "${item.path}", "-o", "${workdir}/${item.stem}_brain.nii.gz"]
//	    output  = "*_brain.nii.gz"
//	  }
//	}
func DecodeHCL(filename string, src []byte) (*Definition, error) {
	file, diags := hclsyntax.ParseConfig(src, filename, hcl.InitialPos)
	if diags.HasErrors() {
		var result error
		for _, e := range diags.Errs() {
			result = multierror.Append(result, e)
		}

		return nil, errors.Join(ErrParseHcl, result)
	}

	var f hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &f); diags.HasErrors() {
		var result error
		for _, e := range diags.Errs() {
			result = multierror.Append(result, e)
		}

		return nil, errors.Join(ErrParseHcl, result)
	}

	if len(f.Pipelines) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrPipelineBlockCount, filename, len(f.Pipelines))
	}

	def, err := f.Pipelines[0].definition(src)
	if err != nil {
		return nil, err
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

func (h hclPipeline) definition(src []byte) (*Definition, error) {
	def := &Definition{
		Name:        h.Name,
		Description: h.Description,
		Params:      h.Params,
		Phases:      make([]*PhaseSpec, 0, len(h.Phases)),
	}

	for _, r := range h.Requirements {
		def.Requirements = append(def.Requirements, Requirement(r))
	}

	var errs error

	for _, p := range h.Phases {
		ps := &PhaseSpec{
			Name:          p.Name,
			Label:         p.Label,
			Command:       templateFromExpression(p.Command, src),
			Stdin:         templateFromExpression(p.Stdin, src),
			Inputs:        p.Inputs,
			Output:        templateFromExpression(p.Output, src),
			Weight:        p.Weight,
			Env:           p.Env,
			SkipIfPresent: p.SkipIfPresent,
		}

		if !expressionAbsent(p.Args) {
			exprs, diags := hcl.ExprList(p.Args)
			if diags.HasErrors() {
				errs = errors.Join(errs, fmt.Errorf("phase %q: args: %s", p.Name, diags.Error()))
				continue
			}

			for _, e := range exprs {
				ps.Args = append(ps.Args, templateFromExpression(e, src))
			}
		}

		if p.Timeout != "" {
			d, err := time.ParseDuration(p.Timeout)
			if err != nil {
				errs = errors.Join(errs, fmt.Errorf("phase %q: timeout: %w", p.Name, err))
				continue
			}

			ps.Timeout = d
		}

		def.Phases = append(def.Phases, ps)
	}

	if errs != nil {
		return nil, errors.Join(ErrInvalidDefinition, errs)
	}

	return def, nil
}
