// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	// DefaultVersionWindow is how many recent versions are scanned for a match.
	DefaultVersionWindow = 10
	// DefaultPublishAttempts bounds publish attempts.
	DefaultPublishAttempts = 3
	// DefaultPublishBackoff is the wait before the first publish retry.
	DefaultPublishBackoff = time.Second

	fingerprintTokenPrefix = "fingerprint="
)

type (
	// Resolver finds or publishes the layer version carrying a fingerprint.
	Resolver struct {
		attempts int
		backoff  time.Duration
		window   int
		observer Observer
	}

	// ResolverOption configures a Resolver.
	ResolverOption func(*Resolver)

	// ResolveRequest holds the inputs of a single resolution.
	ResolveRequest struct {
		LayerName          string
		Fingerprint        Fingerprint
		Artifact           ArtifactLocation
		CompatibleRuntimes []string
		Description        string
	}
)

// WithPublishRetry sets the publish attempt bound and the base backoff.
func WithPublishRetry(attempts int, backoff time.Duration) ResolverOption {
	return func(r *Resolver) {
		if attempts > 0 {
			r.attempts = attempts
		}
		if backoff >= 0 {
			r.backoff = backoff
		}
	}
}

// WithVersionWindow sets how many recent versions are scanned.
func WithVersionWindow(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.window = n
		}
	}
}

// WithResolverObserver sets the progress observer.
func WithResolverObserver(o Observer) ResolverOption {
	return func(r *Resolver) { r.observer = observerOrNop(o) }
}

// NewResolver creates a Resolver with default retry settings.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		attempts: DefaultPublishAttempts,
		backoff:  DefaultPublishBackoff,
		window:   DefaultVersionWindow,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// VersionDescription returns the description published for a new version.
func VersionDescription(description, artifactFileName string) string {
	if description == "" {
		return artifactFileName
	}
	return description + " " + artifactFileName
}

// MatchVersion reports whether a version description carries fp, either as
// the exact bundle file name or as a "fingerprint=<fp>" token.
func MatchVersion(description string, fp Fingerprint) bool {
	if fp == "" {
		return false
	}
	fileName := ArtifactFileName(fp)
	for _, tok := range strings.Fields(description) {
		if tok == fileName || tok == fingerprintTokenPrefix+string(fp) {
			return true
		}
	}
	return false
}

// Resolve returns an existing version of req.LayerName whose description
// carries req.Fingerprint, or publishes a new one pointing at req.Artifact.
func (r *Resolver) Resolve(ctx context.Context, cp ControlPlane, req ResolveRequest) (*LayerVersion, error) {
	if req.LayerName == "" {
		return nil, &ConfigError{Field: "layer.name", Reason: "must not be empty"}
	}

	versions, err := cp.ListLayerVersions(ctx, req.LayerName, r.window)
	switch {
	case errors.Is(err, ErrLayerNotFound):
		r.observer.Debug("layer has no published versions", "layer", req.LayerName)
		versions = nil
	case err != nil:
		return nil, &ControlPlaneError{Op: "list layer versions", Resource: req.LayerName, Cause: err}
	}

	for i := range versions {
		if MatchVersion(versions[i].Description, req.Fingerprint) {
			v := versions[i]
			r.observer.Info("reusing layer version", "layer", req.LayerName, "version", v.Version)
			return &v, nil
		}
	}

	createReq := CreateLayerVersionRequest{
		LayerName:          req.LayerName,
		Description:        VersionDescription(req.Description, req.Artifact.FileName),
		CompatibleRuntimes: req.CompatibleRuntimes,
		Code:               CodeRef{Bucket: req.Artifact.Bucket, Key: req.Artifact.Key},
	}

	var published *LayerVersion
	onRetry := func(attempt int, err error) {
		r.observer.Warn("publish layer version failed, retrying",
			"layer", req.LayerName, "attempt", attempt, "of", r.attempts, "err", err)
	}
	err = retryWithBackoff(ctx, r.attempts, r.backoff, onRetry, func(int) (bool, error) {
		v, err := cp.CreateLayerVersion(ctx, createReq)
		if err != nil {
			return ctx.Err() == nil, err
		}
		published = v
		return false, nil
	})
	if err != nil {
		return nil, &ControlPlaneError{Op: "publish layer version", Resource: req.LayerName, Cause: err}
	}

	if published == nil || published.Name == "" || published.Ref == "" {
		var v LayerVersion
		if published != nil {
			v = *published
		}
		return nil, &InvalidLayerVersionError{LayerName: req.LayerName, Version: v}
	}
	r.observer.Info("published layer version", "layer", published.Name, "version", published.Version)
	return published, nil
}
