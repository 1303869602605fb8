// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates CUE documents against an embedded schema
// definition and reports failures with JSON-style field paths.
package cueutil
