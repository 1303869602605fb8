// SPDX-License-Identifier: MPL-2.0

package layer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/invowk/layerdeploy/internal/archive"
	"github.com/invowk/layerdeploy/internal/controlplane"
	"github.com/invowk/layerdeploy/internal/hashstore"
	"github.com/invowk/layerdeploy/internal/layer"
	"github.com/invowk/layerdeploy/internal/objectstore"
	"github.com/invowk/layerdeploy/internal/testutil"
)

const testLayer = "app-deps"

type (
	// countingStore wraps an ObjectStore, counting calls and injecting errors.
	countingStore struct {
		layer.ObjectStore
		mu          sync.Mutex
		exists      int
		puts        int
		lastTimeout time.Duration
		existsErr   error
		putErr      error
	}

	countingBundler struct {
		layer.BundleWriter
		mu    sync.Mutex
		calls int
	}

	recordingObserver struct {
		mu    sync.Mutex
		warns []string
		infos []string
	}

	fixture struct {
		dir       string
		tmp       string
		manifests []string
		cp        *controlplane.Memory
		store     *countingStore
		bundler   *countingBundler
		hashes    *hashstore.Memory
		observer  *recordingObserver
	}
)

func (s *countingStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	s.exists++
	err := s.existsErr
	s.mu.Unlock()
	if err != nil {
		return false, err
	}
	return s.ObjectStore.Exists(ctx, key)
}

func (s *countingStore) Put(ctx context.Context, key, localPath string, timeout time.Duration) (string, error) {
	s.mu.Lock()
	s.puts++
	s.lastTimeout = timeout
	err := s.putErr
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return s.ObjectStore.Put(ctx, key, localPath, timeout)
}

func (b *countingBundler) WriteBundle(ctx context.Context, srcDir, prefix, dst string) error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.BundleWriter.WriteBundle(ctx, srcDir, prefix, dst)
}

func (o *recordingObserver) Debug(interface{}, ...interface{}) {}

func (o *recordingObserver) Info(msg interface{}, _ ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos = append(o.infos, fmt.Sprint(msg))
}

func (o *recordingObserver) Warn(msg interface{}, _ ...interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warns = append(o.warns, fmt.Sprint(msg))
}

func (o *recordingObserver) warnCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.warns)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := testutil.NodeProject(t, "1.0.0")
	return &fixture{
		dir: dir,
		tmp: t.TempDir(),
		manifests: []string{
			filepath.Join(dir, "package.json"),
			filepath.Join(dir, "package-lock.json"),
		},
		cp:       controlplane.NewMemory("cn-hangzhou", "1234"),
		store:    &countingStore{ObjectStore: objectstore.NewLocalStore(afero.NewMemMapFs(), "/oss", "deploy-bucket")},
		bundler:  &countingBundler{BundleWriter: archive.New()},
		hashes:   hashstore.NewMemory(),
		observer: &recordingObserver{},
	}
}

func (f *fixture) artifacts(opts ...layer.ArtifactOption) *layer.ArtifactBuilder {
	opts = append([]layer.ArtifactOption{layer.WithTempDir(f.tmp), layer.WithArtifactObserver(f.observer)}, opts...)
	return layer.NewArtifactBuilder(f.store, f.bundler, opts...)
}

func (f *fixture) resolver() *layer.Resolver {
	return layer.NewResolver(layer.WithPublishRetry(3, time.Millisecond), layer.WithResolverObserver(f.observer))
}

func (f *fixture) reconciler() *layer.Reconciler {
	return layer.NewReconciler(layer.SingleClient(f.cp), f.hashes, layer.WithReconcilerObserver(f.observer))
}

func (f *fixture) engine() *layer.Engine {
	return layer.NewEngine(layer.SingleClient(f.cp), f.artifacts(), f.resolver(), f.reconciler(), f.observer)
}

func (f *fixture) sourceDir() string {
	return filepath.Join(f.dir, "node_modules")
}

func (f *fixture) targets(names ...string) []layer.Target {
	out := make([]layer.Target, 0, len(names))
	for _, n := range names {
		f.cp.AddFunction("svc", n, "acs:fc:cn-hangzhou:1234:layers/other/versions/1")
		out = append(out, layer.Target{Service: "svc", Function: n, Region: "cn-hangzhou"})
	}
	return out
}

func (f *fixture) request(targets []layer.Target) layer.Request {
	return layer.Request{
		LayerName:          testLayer,
		Description:        "dependencies of app",
		CompatibleRuntimes: []string{"nodejs18"},
		Manifests:          f.manifests,
		ProjectVersion:     "1.0.0",
		SourceDir:          f.sourceDir(),
		Targets:            targets,
	}
}
