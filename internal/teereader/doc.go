// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package teereader splits process output into lines as it arrives, forwarding
// each line to an observer while keeping a bounded tail for error details and
// the last line for progress display.
package teereader
