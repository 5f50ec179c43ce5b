// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package tui provides a terminal user interface for monitoring a batch.
// It shows an overall progress bar and one row per item with its current
// phase and the last output line of the running tool.
//
// Pressing s asks the batch to stop after the running phase has been
// terminated, pressing it again kills the running tool. The interface stays
// open after the batch finishes until q is pressed.
package tui
