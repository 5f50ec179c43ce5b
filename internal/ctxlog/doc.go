// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package ctxlog carries a slog logger in a context.Context.
//
// The default is a pretty console handler that formats records in a human-readable way.
// The level of every logger in the package is read from NIPIPE_LOG_LEVEL at start up.
package ctxlog
