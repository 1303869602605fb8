// SPDX-License-Identifier: MPL-2.0

// Package deploy drives a full deployment batch: it asks the layer engine for
// a plan, packages the function code once, updates each target in order,
// reports each update to a log sink, and records fingerprints for targets
// whose update succeeded.
package deploy
