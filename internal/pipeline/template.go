// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

var (
	// ErrTemplateParse is returned when a template string is not valid HCL template syntax.
	ErrTemplateParse = errors.New("template parse error")
	// ErrTemplateRender is returned when a template cannot be evaluated.
	ErrTemplateRender = errors.New("template render error")
)

// Template is an HCL template expression, e.g. "${workdir}/${item.stem}_brain.nii.gz".
// The zero value renders to an empty string.
type Template struct {
	raw  string
	expr hcl.Expression
}

// ParseTemplate parses src as an HCL template.
func ParseTemplate(src string) (Template, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "template", hcl.InitialPos)
	if diags.HasErrors() {
		return Template{}, fmt.Errorf("%w: %q: %s", ErrTemplateParse, src, diags.Error())
	}

	return Template{raw: src, expr: expr}, nil
}

// MustParseTemplate is like ParseTemplate but panics on error.
func MustParseTemplate(src string) Template {
	t, err := ParseTemplate(src)
	if err != nil {
		panic(err)
	}

	return t
}

// templateFromExpression wraps an expression decoded from an HCL body.
// src is the file it was decoded from and is used to recover the raw text.
func templateFromExpression(expr hcl.Expression, src []byte) Template {
	if expressionAbsent(expr) {
		return Template{}
	}

	rng := expr.Range()
	raw := ""

	if rng.End.Byte <= len(src) && rng.Start.Byte < rng.End.Byte {
		raw = string(src[rng.Start.Byte:rng.End.Byte])
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, `"`), `"`)
	}

	return Template{raw: raw, expr: expr}
}

// expressionAbsent reports whether expr is the synthetic null expression gohcl
// assigns to optional attributes that were not set.
func expressionAbsent(expr hcl.Expression) bool {
	if expr == nil {
		return true
	}

	if len(expr.Variables()) > 0 {
		return false
	}

	v, diags := expr.Value(nil)

	return !diags.HasErrors() && v.IsNull()
}

// IsZero reports whether the template was never set.
func (t Template) IsZero() bool {
	return t.expr == nil
}

// String returns the source text of the template.
func (t Template) String() string {
	return t.raw
}

// Render evaluates the template. A zero template renders to "".
func (t Template) Render(ctx *hcl.EvalContext) (string, error) {
	if t.expr == nil {
		return "", nil
	}

	val, diags := t.expr.Value(ctx)
	if diags.HasErrors() {
		return "", fmt.Errorf("%w: %q: %s", ErrTemplateRender, t.raw, diags.Error())
	}

	if val.IsNull() {
		return "", nil
	}

	if !val.IsWhollyKnown() {
		return "", fmt.Errorf("%w: %q: value is not known", ErrTemplateRender, t.raw)
	}

	str, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrTemplateRender, t.raw, err)
	}

	return str.AsString(), nil
}

// Roots returns the names of the variables the template refers to.
func (t Template) Roots() []string {
	if t.expr == nil {
		return nil
	}

	var roots []string
	for _, tr := range t.expr.Variables() {
		roots = append(roots, tr.RootName())
	}

	return roots
}

// ArtifactRefs returns the artifact names the template refers to through
// artifacts.NAME or artifacts["NAME"].
func (t Template) ArtifactRefs() []string {
	return t.refs(varArtifacts)
}

// ParamRefs returns the parameter names the template refers to.
func (t Template) ParamRefs() []string {
	return t.refs(varParams)
}

func (t Template) refs(root string) []string {
	if t.expr == nil {
		return nil
	}

	var names []string

	for _, tr := range t.expr.Variables() {
		if tr.RootName() != root || len(tr) < 2 {
			continue
		}

		switch step := tr[1].(type) {
		case hcl.TraverseAttr:
			names = append(names, step.Name)
		case hcl.TraverseIndex:
			if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
				names = append(names, step.Key.AsString())
			}
		}
	}

	return names
}

// MarshalText implements encoding.TextMarshaler.
func (t Template) MarshalText() ([]byte, error) {
	return []byte(t.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Template) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Template{}
		return nil
	}

	parsed, err := ParseTemplate(string(b))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}
