// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"strconv"
	"strings"
)

type (
	// Request describes one reconciliation batch.
	Request struct {
		LayerName          string
		Description        string
		CompatibleRuntimes []string
		Manifests          []string
		ProjectVersion     string
		// SourceDir is the dependency directory packaged into a new bundle.
		SourceDir string
		Targets   []Target
		// Force treats every target as changed.
		Force bool
	}

	// Plan is the outcome of a reconciliation batch.
	Plan struct {
		Fingerprint Fingerprint
		// NoLayerWork is true when no target changed, so no bundle was ensured
		// and no version resolved. Artifact and Version are then zero.
		NoLayerWork bool
		Artifact    ArtifactLocation
		Version     *LayerVersion
		Updates     []Update
	}

	// Engine runs the fingerprint, artifact, version and reconcile steps in
	// order for a batch of targets.
	Engine struct {
		clients    ClientResolver
		artifacts  *ArtifactBuilder
		resolver   *Resolver
		reconciler *Reconciler
		observer   Observer
	}
)

// NewEngine wires the engine's steps. Layer-level control plane calls use the
// client of the first target.
func NewEngine(clients ClientResolver, artifacts *ArtifactBuilder, resolver *Resolver, reconciler *Reconciler, observer Observer) *Engine {
	return &Engine{
		clients:    clients,
		artifacts:  artifacts,
		resolver:   resolver,
		reconciler: reconciler,
		observer:   observerOrNop(observer),
	}
}

// Plan computes the fingerprint, detects changed targets and, if any changed,
// ensures the bundle, resolves the layer version and splices it into each
// changed target's layer list. Nothing is written to the targets.
func (e *Engine) Plan(ctx context.Context, req Request) (*Plan, error) {
	plan, err := e.Preview(ctx, req)
	if err != nil {
		return nil, err
	}
	if plan.NoLayerWork {
		e.observer.Info("all targets up to date", "fingerprint", plan.Fingerprint.Short())
		return plan, nil
	}

	artifact, err := e.artifacts.Ensure(ctx, req.LayerName, plan.Fingerprint, req.SourceDir)
	if err != nil {
		return nil, err
	}
	plan.Artifact = artifact

	cp, err := e.clients.For(req.Targets[0])
	if err != nil {
		return nil, &ControlPlaneError{Op: "resolve client", Resource: req.Targets[0].String(), Cause: err}
	}
	version, err := e.resolver.Resolve(ctx, cp, ResolveRequest{
		LayerName:          req.LayerName,
		Fingerprint:        plan.Fingerprint,
		Artifact:           artifact,
		CompatibleRuntimes: req.CompatibleRuntimes,
		Description:        req.Description,
	})
	if err != nil {
		return nil, err
	}
	plan.Version = version

	if err := e.reconciler.Attach(ctx, plan.Updates, version); err != nil {
		return nil, err
	}
	return plan, nil
}

// Preview computes the fingerprint and which targets changed, without touching
// the object store or publishing anything.
func (e *Engine) Preview(ctx context.Context, req Request) (*Plan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	fp, err := ComputeFingerprint(ctx, req.Manifests, req.ProjectVersion)
	if err != nil {
		return nil, err
	}
	e.observer.Debug("computed fingerprint", "fingerprint", fp.String(), "manifests", len(req.Manifests))

	updates, err := e.reconciler.Detect(ctx, req.Targets, fp, req.Force)
	if err != nil {
		return nil, err
	}
	return &Plan{
		Fingerprint: fp,
		NoLayerWork: ChangedCount(updates) == 0,
		Updates:     updates,
	}, nil
}

func (r Request) validate() error {
	if strings.TrimSpace(r.LayerName) == "" {
		return &ConfigError{Field: "layer.name", Reason: "must not be empty"}
	}
	for i, t := range r.Targets {
		if t.Service == "" || t.Function == "" {
			return &ConfigError{Field: "targets", Reason: "entry " + strconv.Itoa(i) + " needs both service and function"}
		}
	}
	return nil
}
