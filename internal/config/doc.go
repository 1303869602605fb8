// SPDX-License-Identifier: MPL-2.0

// Package config loads deploy settings using Viper with CUE as the file format.
//
// Settings come from layerdeploy.cue in the project directory (or the file
// passed with --config), validated against the embedded config_schema.cue,
// layered over DefaultConfig and overridden by LAYERDEPLOY_* environment
// variables. Credentials are normally supplied through the environment.
package config
