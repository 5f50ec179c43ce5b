// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"maps"
	"path/filepath"
	"slices"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Template variable roots.
const (
	varItem       = "item"
	varWorkDir    = "workdir"
	varOutputRoot = "output_root"
	varParams     = "params"
	varArtifacts  = "artifacts"
	varPhase      = "phase"
)

var templateRoots = []string{varItem, varWorkDir, varOutputRoot, varParams, varArtifacts, varPhase}

// Scope is everything a phase template can see for one item.
type Scope struct {
	Item       Item
	WorkDir    string
	OutputRoot string
	Params     map[string]string
	Artifacts  map[string]string
	PhaseName  string
	PhaseIndex int
}

// EvalContext builds the HCL evaluation context for the scope.
func (s Scope) EvalContext() *hcl.EvalContext {
	workDir := s.WorkDir
	if workDir == "" {
		workDir = s.Item.WorkDir
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			varItem: cty.ObjectVal(map[string]cty.Value{
				"id":    cty.StringVal(s.Item.ID),
				"label": cty.StringVal(s.Item.DisplayName()),
				"path":  cty.StringVal(s.Item.Path),
				"name":  cty.StringVal(filepath.Base(s.Item.Path)),
				"stem":  cty.StringVal(Stem(s.Item.Path)),
				"dir":   cty.StringVal(filepath.Dir(s.Item.Path)),
			}),
			varWorkDir:    cty.StringVal(workDir),
			varOutputRoot: cty.StringVal(s.OutputRoot),
			varParams:     stringMapVal(s.Params),
			varArtifacts:  stringMapVal(s.Artifacts),
			varPhase: cty.ObjectVal(map[string]cty.Value{
				"name":  cty.StringVal(s.PhaseName),
				"index": cty.NumberIntVal(int64(s.PhaseIndex)),
			}),
		},
		Functions: templateFunctions,
	}
}

func stringMapVal(m map[string]string) cty.Value {
	if len(m) == 0 {
		return cty.EmptyObjectVal
	}

	vals := make(map[string]cty.Value, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		vals[k] = cty.StringVal(m[k])
	}

	return cty.ObjectVal(vals)
}

var templateFunctions = map[string]function.Function{
	"lower":      stdlib.LowerFunc,
	"upper":      stdlib.UpperFunc,
	"replace":    stdlib.ReplaceFunc,
	"trimsuffix": stdlib.TrimSuffixFunc,
	"join":       stdlib.JoinFunc,
	"basename":   pathFunc(filepath.Base),
	"dirname":    pathFunc(filepath.Dir),
	"stem":       pathFunc(Stem),
}

func pathFunc(fn func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "path", Type: cty.String},
		},
		Type: function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString())), nil
		},
	})
}
