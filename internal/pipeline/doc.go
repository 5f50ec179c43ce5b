// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package pipeline holds the data model shared by the batch orchestrator:
// pipeline definitions and their phases, the items a batch works on, and the
// per-item and per-batch results it produces.
//
// Definitions can be written in YAML or HCL. Command, argument, stdin and
// output fields are HCL template strings evaluated per item, for example:
//
//	args = ["-i", "${item.path}", "-o", "${workdir}/${item.stem}_brain.nii.gz"]
//
// The variables available to a template are item (id, label, path, name,
// stem, dir), workdir, output_root, params, artifacts and phase (name, index).
package pipeline
