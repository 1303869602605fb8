// SPDX-License-Identifier: MPL-2.0

// Package issue turns deploy failures into user-facing guidance.
//
// Each failure kind of the layer engine maps to a catalog entry holding a
// Markdown explanation, and to an ActionableError carrying the operation,
// the resource involved, and remediation hints for terminal output.
package issue
