// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the layerdeploy CLI commands.
//
// App is the composition root: it loads configuration, wires the layer engine
// and the deploy orchestrator from it, and renders results and errors.
package cmd
