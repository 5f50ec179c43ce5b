// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-yaml"
)

// ErrInvalidYaml is returned when a YAML definition cannot be decoded.
var ErrInvalidYaml = errors.New("invalid YAML")

type yamlDefinition struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description,omitempty"`
	Params       map[string]string `yaml:"params,omitempty"`
	Requirements []yamlRequirement `yaml:"requirements,omitempty"`
	Phases       []yamlPhase       `yaml:"phases"`
}

type yamlRequirement struct {
	Name     string   `yaml:"name"`
	Label    string   `yaml:"label,omitempty"`
	Patterns []string `yaml:"patterns"`
	Optional bool     `yaml:"optional,omitempty"`
}

type yamlPhase struct {
	Name          string            `yaml:"name"`
	Label         string            `yaml:"label,omitempty"`
	Command       string            `yaml:"command"`
	Args          []string          `yaml:"args,omitempty"`
	Stdin         string            `yaml:"stdin,omitempty"`
	Inputs        []string          `yaml:"inputs,omitempty"`
	Output        string            `yaml:"output"`
	Weight        float64           `yaml:"weight,omitempty"`
	Timeout       string            `yaml:"timeout,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	SkipIfPresent bool              `yaml:"skip_if_present,omitempty"`
}

// DecodeYAML decodes and validates a definition written in YAML.
func DecodeYAML(data []byte) (*Definition, error) {
	var dto yamlDefinition
	if err := yaml.UnmarshalWithOptions(data, &dto, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYaml, err)
	}

	def, err := dto.definition()
	if err != nil {
		return nil, err
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	return def, nil
}

func (y yamlDefinition) definition() (*Definition, error) {
	def := &Definition{
		Name:        y.Name,
		Description: y.Description,
		Params:      y.Params,
		Phases:      make([]*PhaseSpec, 0, len(y.Phases)),
	}

	for _, r := range y.Requirements {
		def.Requirements = append(def.Requirements, Requirement(r))
	}

	var errs error

	for _, p := range y.Phases {
		ps, err := p.phase()
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("phase %q: %w", p.Name, err))
			continue
		}

		def.Phases = append(def.Phases, ps)
	}

	if errs != nil {
		return nil, errors.Join(ErrInvalidDefinition, errs)
	}

	return def, nil
}

func (y yamlPhase) phase() (*PhaseSpec, error) {
	ps := &PhaseSpec{
		Name:          y.Name,
		Label:         y.Label,
		Inputs:        y.Inputs,
		Weight:        y.Weight,
		Env:           y.Env,
		SkipIfPresent: y.SkipIfPresent,
	}

	var err error

	if ps.Command, err = parseOptional(y.Command); err != nil {
		return nil, err
	}

	if ps.Stdin, err = parseOptional(y.Stdin); err != nil {
		return nil, err
	}

	if ps.Output, err = parseOptional(y.Output); err != nil {
		return nil, err
	}

	for _, a := range y.Args {
		t, err := ParseTemplate(a)
		if err != nil {
			return nil, err
		}

		ps.Args = append(ps.Args, t)
	}

	if y.Timeout != "" {
		if ps.Timeout, err = time.ParseDuration(y.Timeout); err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
	}

	return ps, nil
}

func parseOptional(src string) (Template, error) {
	if src == "" {
		return Template{}, nil
	}

	return ParseTemplate(src)
}

// EncodeYAML renders a definition back to YAML.
func EncodeYAML(def *Definition) ([]byte, error) {
	dto := yamlDefinition{
		Name:        def.Name,
		Description: def.Description,
		Params:      def.Params,
	}

	for _, r := range def.Requirements {
		dto.Requirements = append(dto.Requirements, yamlRequirement(r))
	}

	for _, p := range def.Phases {
		yp := yamlPhase{
			Name:          p.Name,
			Label:         p.Label,
			Command:       p.Command.String(),
			Stdin:         p.Stdin.String(),
			Inputs:        p.Inputs,
			Output:        p.Output.String(),
			Weight:        p.Weight,
			Env:           p.Env,
			SkipIfPresent: p.SkipIfPresent,
		}

		for _, a := range p.Args {
			yp.Args = append(yp.Args, a.String())
		}

		if p.Timeout > 0 {
			yp.Timeout = p.Timeout.String()
		}

		dto.Phases = append(dto.Phases, yp)
	}

	return yaml.Marshal(dto)
}
