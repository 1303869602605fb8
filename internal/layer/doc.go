// SPDX-License-Identifier: MPL-2.0

// Package layer implements the dependency-layer reconciliation engine.
//
// Given the project's dependency manifests, the engine computes a content
// fingerprint, makes sure a dependency bundle for that fingerprint exists in the
// object store, resolves (or publishes) a remote layer version that carries the
// fingerprint, and splices the resulting layer reference into the reference list
// of every target function whose recorded fingerprint differs:
//
//	engine := layer.NewEngine(artifacts, resolver, reconciler)
//	plan, err := engine.Plan(ctx, layer.Request{...})
//	// plan.Updates holds one entry per target, in input order
//
// All remote collaborators (control plane, object store, fingerprint
// persistence) are injected as interfaces. Work is strictly sequential: the
// artifact and the layer version are computed at most once per batch and shared
// read-only across targets, and the first fatal error aborts the batch.
package layer
