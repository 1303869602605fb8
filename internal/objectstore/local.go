// SPDX-License-Identifier: MPL-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
)

type (
	// LocalStore keeps objects as files under a root directory of an afero
	// filesystem. It backs dry runs and tests, and deployments whose bundle
	// bucket is a mounted directory.
	LocalStore struct {
		fs     afero.Fs
		src    afero.Fs
		root   string
		bucket string
	}

	// LocalOption configures a LocalStore.
	LocalOption func(*LocalStore)
)

// WithSourceFs sets the filesystem uploads are read from. Defaults to the OS.
func WithSourceFs(src afero.Fs) LocalOption {
	return func(s *LocalStore) { s.src = src }
}

// NewLocalStore creates a store rooted at root/bucket on fsys.
func NewLocalStore(fsys afero.Fs, root, bucket string, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		fs:     fsys,
		src:    afero.NewOsFs(),
		root:   root,
		bucket: bucket,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket returns the bucket name.
func (s *LocalStore) Bucket() string { return s.bucket }

// Exists reports whether key is stored.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// Put copies the file at localPath to key.
// A non-positive timeout means no deadline beyond ctx.
func (s *LocalStore) Put(ctx context.Context, key, localPath string, timeout time.Duration) (string, error) {
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	p, err := s.objectPath(key)
	if err != nil {
		return "", err
	}
	in, err := s.src.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer in.Close()

	if err := s.fs.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}
	tmp := p + ".partial"
	out, err := s.fs.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}
	if _, err := io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		_ = out.Close()
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := out.Close(); err != nil {
		_ = s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to close object %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, p); err != nil {
		return "", fmt.Errorf("failed to commit object %s: %w", key, err)
	}
	return "file://" + p, nil
}

// Get returns the stored bytes of key, or ErrNotFound.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return data, err
}

func (s *LocalStore) objectPath(key string) (string, error) {
	clean := path.Clean("/" + strings.TrimLeft(key, "/"))
	if key == "" || clean == "/" {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return path.Join(s.root, s.bucket, clean), nil
}

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
