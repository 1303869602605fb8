// SPDX-License-Identifier: MPL-2.0

// Package benchmark holds benchmarks for the deploy hot paths:
//   - manifest fingerprinting
//   - CUE config loading
//   - dependency bundle packaging
//   - the no-change short-circuit of a plan
//
// Run them with:
//
//	go test -bench=. -benchmem ./internal/benchmark/
package benchmark
