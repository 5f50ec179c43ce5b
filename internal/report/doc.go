// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package report renders batch reports and workspace scans for the console,
// stores reports as JSON and selects the items to reprocess.
package report
