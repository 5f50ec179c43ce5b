// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package progress provides the ordered event stream a batch emits while it
// runs, the reporters that carry it to observers, and the aggregator that turns
// item and phase positions into an overall percentage.
package progress
