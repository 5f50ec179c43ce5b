// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package procrun runs a single external process and classifies how it ended.
//
// Output is forwarded line by line while the process runs. A timeout or a stop
// request first asks the process to terminate, then kills it; on Unix both
// signals go to the process group of the child.
package procrun
