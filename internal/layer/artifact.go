// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultSubdir is the object key prefix under which bundles are stored.
	DefaultSubdir = "fc-deploy"
	// DefaultMountPrefix is the directory the runtime mounts layers under.
	DefaultMountPrefix = "nodejs"
	// MinUploadTimeout is the lower bound applied to every bundle upload.
	MinUploadTimeout = 5 * time.Minute
)

// ErrPrebuild is the sentinel error wrapped by PrebuildError.
var ErrPrebuild = errors.New("prebuild hook failed")

type (
	// PrebuildFunc prepares sourceDir before it is packaged.
	PrebuildFunc func(ctx context.Context, sourceDir string) error

	// PrebuildError is returned when the prebuild hook fails.
	PrebuildError struct {
		Dir   string
		Cause error
	}

	// ArtifactBuilder makes sure a dependency bundle for a fingerprint exists
	// in the object store, building and uploading it only when absent.
	ArtifactBuilder struct {
		store         ObjectStore
		bundler       BundleWriter
		subdir        string
		mountPrefix   string
		uploadTimeout time.Duration
		tempDir       string
		prebuild      PrebuildFunc
		observer      Observer
	}

	// ArtifactOption configures an ArtifactBuilder.
	ArtifactOption func(*ArtifactBuilder)
)

func (e *PrebuildError) Error() string {
	return fmt.Sprintf("prebuild in %s: %v", e.Dir, e.Cause)
}

// Unwrap returns ErrPrebuild and the underlying cause.
func (e *PrebuildError) Unwrap() []error { return wrapped(ErrPrebuild, e.Cause) }

// WithSubdir sets the object key prefix. Empty keeps DefaultSubdir.
func WithSubdir(subdir string) ArtifactOption {
	return func(b *ArtifactBuilder) {
		if s := strings.Trim(subdir, "/"); s != "" {
			b.subdir = s
		}
	}
}

// WithMountPrefix sets the directory bundle entries are rooted under.
func WithMountPrefix(prefix string) ArtifactOption {
	return func(b *ArtifactBuilder) {
		if p := strings.Trim(prefix, "/"); p != "" {
			b.mountPrefix = p
		}
	}
}

// WithUploadTimeout sets the upload timeout. Values below MinUploadTimeout
// are raised to it.
func WithUploadTimeout(d time.Duration) ArtifactOption {
	return func(b *ArtifactBuilder) {
		b.uploadTimeout = max(d, MinUploadTimeout)
	}
}

// WithTempDir sets where temporary bundles are written. Empty means os.TempDir.
func WithTempDir(dir string) ArtifactOption {
	return func(b *ArtifactBuilder) { b.tempDir = dir }
}

// WithPrebuild sets a hook run before packaging a new bundle.
func WithPrebuild(fn PrebuildFunc) ArtifactOption {
	return func(b *ArtifactBuilder) { b.prebuild = fn }
}

// WithArtifactObserver sets the progress observer.
func WithArtifactObserver(o Observer) ArtifactOption {
	return func(b *ArtifactBuilder) { b.observer = observerOrNop(o) }
}

// NewArtifactBuilder creates an ArtifactBuilder over the given store.
func NewArtifactBuilder(store ObjectStore, bundler BundleWriter, opts ...ArtifactOption) *ArtifactBuilder {
	b := &ArtifactBuilder{
		store:         store,
		bundler:       bundler,
		subdir:        DefaultSubdir,
		mountPrefix:   DefaultMountPrefix,
		uploadTimeout: MinUploadTimeout,
		observer:      NopObserver{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ArtifactFileName returns the bundle file name for a fingerprint.
func ArtifactFileName(fp Fingerprint) string {
	return "node_modules@" + string(fp) + ".zip"
}

// ArtifactKey returns the object key of the bundle for (layerName, fp).
func (b *ArtifactBuilder) ArtifactKey(layerName string, fp Fingerprint) string {
	return path.Join(b.subdir, layerName, ArtifactFileName(fp))
}

// Ensure returns the location of the bundle for fingerprint, uploading a
// freshly packaged sourceDir only if the store does not already hold it.
func (b *ArtifactBuilder) Ensure(ctx context.Context, layerName string, fp Fingerprint, sourceDir string) (ArtifactLocation, error) {
	if layerName == "" {
		return ArtifactLocation{}, &ConfigError{Field: "layer.name", Reason: "must not be empty"}
	}
	if fp == "" {
		return ArtifactLocation{}, &ConfigError{Field: "fingerprint", Reason: "must not be empty"}
	}

	loc := ArtifactLocation{
		Bucket:   b.store.Bucket(),
		Key:      b.ArtifactKey(layerName, fp),
		FileName: ArtifactFileName(fp),
	}

	exists, err := b.store.Exists(ctx, loc.Key)
	if err != nil {
		return ArtifactLocation{}, &StorageError{Op: "stat", Key: loc.Key, Cause: err}
	}
	if exists {
		b.observer.Info("reusing dependency bundle", "key", loc.Key)
		loc.Reused = true
		return loc, nil
	}

	if sourceDir == "" {
		return ArtifactLocation{}, &ConfigError{Field: "layer.source_dir", Reason: "must not be empty"}
	}
	if b.prebuild != nil {
		b.observer.Info("running prebuild hook", "dir", sourceDir)
		if err := b.prebuild(ctx, sourceDir); err != nil {
			return ArtifactLocation{}, &PrebuildError{Dir: sourceDir, Cause: err}
		}
	}
	if info, err := os.Stat(sourceDir); err != nil || !info.IsDir() {
		return ArtifactLocation{}, &SourceMissingError{Dir: sourceDir}
	}

	tmp, err := os.CreateTemp(b.tempDir, "layer-*.zip")
	if err != nil {
		return ArtifactLocation{}, fmt.Errorf("failed to create temporary bundle: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpPath) }()

	prefix := path.Join(b.mountPrefix, filepath.Base(filepath.Clean(sourceDir)))
	b.observer.Debug("packaging dependency bundle", "dir", sourceDir, "prefix", prefix)
	if err := b.bundler.WriteBundle(ctx, sourceDir, prefix, tmpPath); err != nil {
		return ArtifactLocation{}, fmt.Errorf("failed to package %s: %w", sourceDir, err)
	}

	b.observer.Info("uploading dependency bundle", "key", loc.Key, "timeout", b.uploadTimeout)
	url, err := b.store.Put(ctx, loc.Key, tmpPath, b.uploadTimeout)
	if err != nil {
		return ArtifactLocation{}, &StorageError{Op: "put", Key: loc.Key, Cause: err}
	}
	loc.URL = url
	return loc, nil
}
