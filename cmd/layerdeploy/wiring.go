// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/layerdeploy/internal/archive"
	"github.com/invowk/layerdeploy/internal/config"
	"github.com/invowk/layerdeploy/internal/controlplane"
	"github.com/invowk/layerdeploy/internal/deploy"
	"github.com/invowk/layerdeploy/internal/hashstore"
	"github.com/invowk/layerdeploy/internal/layer"
	"github.com/invowk/layerdeploy/internal/objectstore"
	"github.com/invowk/layerdeploy/internal/project"
	"github.com/invowk/layerdeploy/internal/shell"
)

type (
	// inputs are the project-derived values every command needs.
	inputs struct {
		dir       string
		version   string
		manifests []string
		sourceDir string
		codeDir   string
	}

	wireOptions struct {
		dryRun  bool
		version string
	}

	// services is the wired deploy pipeline for one invocation.
	services struct {
		inputs       inputs
		request      layer.Request
		artifacts    *layer.ArtifactBuilder
		engine       *layer.Engine
		orchestrator *deploy.Orchestrator
		registry     *deploy.Registry
	}
)

// httpControlPlane is the production deploy.Factory.
func httpControlPlane(t layer.Target) (layer.ControlPlane, error) {
	if t.Endpoint == "" {
		return nil, &layer.ConfigError{Field: "targets.endpoint", Reason: "no endpoint for " + t.String() + " and no defaults.endpoint"}
	}
	return controlplane.NewClient(t.Endpoint,
		controlplane.WithCredentials(t.Credentials.AccessKeyID, t.Credentials.AccessKeySecret),
		controlplane.WithUserAgent(config.AppName+"/"+Version),
	)
}

// projectDirs returns the absolute project and code directories.
func projectDirs(cfg *config.Config) (dir, codeDir string, err error) {
	dir, err = filepath.Abs(cfg.Project.Dir)
	if err != nil {
		return "", "", &layer.ConfigError{Field: "project.dir", Reason: err.Error()}
	}
	codeDir = dir
	if cfg.Code.Dir != "" {
		codeDir = resolvePath(dir, cfg.Code.Dir)
	}
	return dir, codeDir, nil
}

// resolveInputs derives paths, the project version and the manifest set.
func resolveInputs(cfg *config.Config, versionOverride string) (inputs, error) {
	dir, codeDir, err := projectDirs(cfg)
	if err != nil {
		return inputs{}, err
	}

	override := versionOverride
	if override == "" {
		override = cfg.Project.Version
	}
	version, err := project.ResolveVersion(dir, override)
	if err != nil {
		return inputs{}, err
	}

	manifests := project.ResolvePaths(dir, cfg.Manifests)
	if len(manifests) == 0 {
		if manifests, err = project.DefaultManifests(dir); err != nil {
			return inputs{}, err
		}
	}

	in := inputs{
		dir:       dir,
		version:   version,
		manifests: manifests,
		sourceDir: filepath.Join(dir, "node_modules"),
		codeDir:   codeDir,
	}
	if cfg.Layer.SourceDir != "" {
		in.sourceDir = resolvePath(dir, cfg.Layer.SourceDir)
	}
	return in, nil
}

func resolvePath(dir, p string) string {
	return project.ResolvePaths(dir, []string{p})[0]
}

// within returns p relative to root in slash form, or false when p lies
// outside root.
func within(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// generatedExcludes returns anchored exclude patterns, relative to root, for
// everything a deploy writes below root: the state file and its temporary
// sibling, the log sink, and the local object root.
func generatedExcludes(cfg *config.Config, dir, root string) []string {
	state := resolvePath(dir, cfg.State.Path)
	paths := []string{state}
	if cfg.LogSink.Path != "" {
		paths = append(paths, resolvePath(dir, cfg.LogSink.Path))
	}
	if cfg.Storage.Driver == config.StorageDriverLocal {
		paths = append(paths, resolvePath(dir, cfg.Storage.LocalRoot))
	}

	var out []string
	for _, p := range paths {
		if rel, ok := within(root, p); ok && rel != "." {
			out = append(out, archive.Literal(rel))
		}
	}
	if rel, ok := within(root, filepath.Dir(state)); ok {
		prefix := ""
		if rel != "." {
			prefix = archive.Literal(rel)
		}
		out = append(out, prefix+"/"+hashstore.TempPattern)
	}
	return out
}

// codeExcludes are the patterns skipped when packaging function code.
func codeExcludes(cfg *config.Config, dir, codeDir string) []string {
	out := append([]string{}, archive.DefaultExcludes...)
	out = append(out, cfg.Code.Exclude...)
	return append(out, generatedExcludes(cfg, dir, codeDir)...)
}

// watchIgnores returns the watcher's ignore globs, relative to the project
// directory: what a deploy writes, plus the code excludes. Anchored code
// excludes are rebased from the code directory onto the project directory.
func watchIgnores(cfg *config.Config, dir, codeDir string) []string {
	patterns := generatedExcludes(cfg, dir, dir)
	codeRel, inside := within(dir, codeDir)
	for _, p := range cfg.Code.Exclude {
		p = strings.TrimSpace(p)
		if inside && codeRel != "." && strings.Contains(strings.TrimSuffix(p, "/"), "/") {
			p = archive.Literal(codeRel) + "/" + strings.TrimPrefix(p, "/")
		}
		patterns = append(patterns, p)
	}
	return archive.Globs(patterns)
}

// wire builds the deploy pipeline from cfg. A dry run keeps every write in
// memory: bundles go to an in-memory bucket, layers are published to an
// in-memory control plane seeded with the targets, and fingerprints are
// read from the state file but never written back.
func (a *App) wire(ctx context.Context, cfg *config.Config, logger *log.Logger, opts wireOptions) (*services, error) {
	if ok, errs := cfg.IsValid(); !ok {
		return nil, errs[0]
	}
	in, err := resolveInputs(cfg, opts.version)
	if err != nil {
		return nil, err
	}
	targets := cfg.ResolvedTargets()

	store, err := a.objectStore(cfg, in.dir, opts.dryRun)
	if err != nil {
		return nil, err
	}

	var (
		hashes   layer.HashStore
		registry *deploy.Registry
		sink     deploy.LogSink
	)
	state := hashstore.NewFileStore(resolvePath(in.dir, cfg.State.Path))
	if opts.dryRun {
		mem, err := seedHashes(ctx, state)
		if err != nil {
			return nil, err
		}
		hashes = mem
		cp := controlplane.NewMemory(cfg.Defaults.Region, "dry-run")
		for _, t := range targets {
			cp.AddFunction(t.Service, t.Function)
		}
		registry = deploy.NewRegistry(func(layer.Target) (layer.ControlPlane, error) { return cp, nil })
		sink = deploy.NewLoggerSink(logger)
	} else {
		hashes = state
		registry = deploy.NewRegistry(a.ControlPlanes)
		if cfg.LogSink.Path != "" {
			sink = deploy.NewFileSink(afero.NewOsFs(), resolvePath(in.dir, cfg.LogSink.Path))
		}
	}

	artifactOpts := []layer.ArtifactOption{
		layer.WithSubdir(cfg.Storage.Subdir),
		layer.WithMountPrefix(cfg.Layer.MountPrefix),
		layer.WithUploadTimeout(cfg.Storage.UploadTimeout),
		layer.WithArtifactObserver(logger),
	}
	if cfg.Layer.BuildCommand != "" && !opts.dryRun {
		if err := shell.Validate(cfg.Layer.BuildCommand); err != nil {
			return nil, &layer.ConfigError{Field: "layer.build_command", Reason: err.Error()}
		}
		out := io.Discard
		if a.verbose {
			out = a.stderr
		}
		runner := shell.New(shell.WithOutput(out, out))
		artifactOpts = append(artifactOpts, layer.WithPrebuild(runner.Prebuild(cfg.Layer.BuildCommand)))
	}
	level := archive.WithLevel(cfg.Code.CompressionLevel)
	artifacts := layer.NewArtifactBuilder(store, archive.New(level), artifactOpts...)

	resolver := layer.NewResolver(
		layer.WithPublishRetry(cfg.Retry.Attempts, cfg.Retry.Backoff),
		layer.WithResolverObserver(logger),
	)
	reconciler := layer.NewReconciler(registry, hashes, layer.WithReconcilerObserver(logger))
	engine := layer.NewEngine(registry, artifacts, resolver, reconciler, logger)

	packager := archive.New(level, archive.WithExcludes(codeExcludes(cfg, in.dir, in.codeDir)...))
	orchestrator := deploy.NewOrchestrator(engine, registry, hashes, packager,
		deploy.WithSink(sink),
		deploy.WithObserver(logger),
	)

	return &services{
		inputs: in,
		request: layer.Request{
			LayerName:          cfg.Layer.Name,
			Description:        cfg.Layer.Description,
			CompatibleRuntimes: cfg.Layer.CompatibleRuntimes,
			Manifests:          in.manifests,
			ProjectVersion:     in.version,
			SourceDir:          in.sourceDir,
			Targets:            targets,
		},
		artifacts:    artifacts,
		engine:       engine,
		orchestrator: orchestrator,
		registry:     registry,
	}, nil
}

func (a *App) objectStore(cfg *config.Config, dir string, dryRun bool) (layer.ObjectStore, error) {
	bucket := cfg.Storage.Bucket
	if bucket == "" {
		bucket = "layerdeploy"
	}
	switch {
	case dryRun:
		return objectstore.NewLocalStore(afero.NewMemMapFs(), "/", bucket), nil
	case cfg.Storage.Driver == config.StorageDriverLocal:
		return objectstore.NewLocalStore(afero.NewOsFs(), resolvePath(dir, cfg.Storage.LocalRoot), bucket), nil
	default:
		s3, err := objectstore.NewS3Store(objectstore.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
			PathStyle:       cfg.Storage.PathStyle,
		})
		if err != nil {
			return nil, &layer.ConfigError{Field: "storage", Reason: err.Error()}
		}
		return s3, nil
	}
}

// seedHashes copies the recorded fingerprints into memory.
func seedHashes(ctx context.Context, state *hashstore.FileStore) (*hashstore.Memory, error) {
	entries, err := state.Entries(ctx)
	if err != nil {
		return nil, &layer.StorageError{Op: "read fingerprint", Key: state.Path(), Cause: err}
	}
	mem := hashstore.NewMemory()
	for key, e := range entries {
		if err := mem.SetHash(ctx, key, e.Fingerprint); err != nil {
			return nil, err
		}
	}
	return mem, nil
}
