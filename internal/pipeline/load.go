// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrUnknownFormat is returned when a definition file has an unsupported extension.
	ErrUnknownFormat = errors.New("unknown definition format, expected .yaml, .yml or .hcl")
	// ErrReadDefinition is returned when a definition file cannot be read.
	ErrReadDefinition = errors.New("failed to read definition file")
	// ErrUnknownBuiltin is returned when no built-in definition has the requested name.
	ErrUnknownBuiltin = errors.New("unknown built-in pipeline")
)

// FsFactory creates the filesystem definitions are read from. Tests replace it.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

//go:embed definitions/*.yaml
var builtinFS embed.FS

const builtinDir = "definitions"

// LoadFile reads a definition from disk, choosing the decoder by extension.
func LoadFile(filename string) (*Definition, error) {
	data, err := afero.ReadFile(FsFactory(), filename)
	if err != nil {
		return nil, errors.Join(ErrReadDefinition, err)
	}

	return Decode(filename, data)
}

// Decode decodes data using the decoder for the extension of filename.
func Decode(filename string, data []byte) (*Definition, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return DecodeYAML(data)
	case ".hcl":
		return DecodeHCL(filename, data)
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filename)
}

// BuiltinNames returns the names of the embedded definitions, sorted.
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir(builtinDir)
	if err != nil {
		panic(err) // embedded at build time
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}

	slices.Sort(names)

	return names
}

// Builtin returns the embedded definition with the given name.
func Builtin(name string) (*Definition, error) {
	if !slices.Contains(BuiltinNames(), name) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuiltin, name)
	}

	data, err := builtinFS.ReadFile(path.Join(builtinDir, name+".yaml"))
	if err != nil {
		return nil, errors.Join(ErrReadDefinition, err)
	}

	return DecodeYAML(data)
}

// Resolve returns a built-in definition when ref is one of BuiltinNames,
// otherwise it loads ref as a file.
func Resolve(ref string) (*Definition, error) {
	if slices.Contains(BuiltinNames(), ref) {
		return Builtin(ref)
	}

	return LoadFile(ref)
}
