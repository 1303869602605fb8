// SPDX-License-Identifier: MPL-2.0

// Package archive packages directories into zip archives: function code into
// an in-memory archive, and dependency directories into layer bundle files.
//
// Archives are deterministic: entries are written in lexical walk order with a
// fixed modification time, so identical trees produce identical bytes.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// DefaultExcludes are skipped when packaging function code.
var DefaultExcludes = []string{"node_modules", ".git", ".layerdeploy"}

var metaEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`, `{`, `\{`, `}`, `\}`)

// epoch is the modification time stamped on every entry.
var epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type (
	// Zipper creates zip archives.
	Zipper struct {
		level    int
		excludes []string
	}

	// Option configures a Zipper.
	Option func(*Zipper)
)

// WithLevel sets the deflate compression level.
func WithLevel(level int) Option {
	return func(z *Zipper) {
		if level >= flate.HuffmanOnly && level <= flate.BestCompression {
			z.level = level
		}
	}
}

// WithExcludes replaces the exclude patterns used by Compress. See Globs
// for the pattern forms.
func WithExcludes(patterns ...string) Option {
	return func(z *Zipper) { z.excludes = Globs(patterns) }
}

// Globs turns exclude patterns into doublestar globs over slash-separated
// paths relative to the archived root. A pattern without a slash matches
// any path segment, so "*.log" excludes "sub/app.log". A pattern with a
// slash is anchored at the root; a leading slash only forces anchoring.
// Every glob also covers the contents of a matching directory.
func Globs(patterns []string) []string {
	globs := make([]string, 0, 2*len(patterns))
	for _, p := range patterns {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			p = strings.TrimPrefix(p, "/")
		} else {
			p = "**/" + p
		}
		globs = append(globs, p, p+"/**")
	}
	return globs
}

// Literal returns an exclude pattern anchored at the root that matches rel
// and nothing else, with glob metacharacters escaped.
func Literal(rel string) string {
	return "/" + metaEscaper.Replace(filepath.ToSlash(rel))
}

// New creates a Zipper with default compression and DefaultExcludes.
func New(opts ...Option) *Zipper {
	z := &Zipper{
		level:    flate.DefaultCompression,
		excludes: Globs(DefaultExcludes),
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

// Compress returns a zip archive of dir with entries relative to dir.
// Paths matching an exclude pattern are skipped.
func (z *Zipper) Compress(ctx context.Context, dir string) ([]byte, error) {
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("failed to stat code directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var buf bytes.Buffer
	if err := z.write(ctx, &buf, dir, "", z.excludes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteBundle writes srcDir into a zip file at dst with every entry placed
// under prefix. Nothing is excluded.
func (z *Zipper) WriteBundle(ctx context.Context, srcDir, prefix, dst string) (err error) {
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close bundle file: %w", closeErr)
		}
	}()
	return z.write(ctx, f, srcDir, strings.Trim(prefix, "/"), nil)
}

func (z *Zipper) write(ctx context.Context, w io.Writer, root, prefix string, excludes []string) error {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, z.level)
	})

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path: %w", err)
		}
		if rel == "." {
			if prefix != "" {
				return addDir(zw, prefix)
			}
			return nil
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := rel
		if prefix != "" {
			name = path.Join(prefix, rel)
		}
		if d.IsDir() {
			return addDir(zw, name)
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to get file info: %w", err)
		}
		return addFile(zw, p, name, info)
	})
	if walkErr != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to archive %s: %w", root, walkErr)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

func addDir(zw *zip.Writer, name string) error {
	hdr := &zip.FileHeader{Name: name + "/", Method: zip.Store, Modified: epoch}
	hdr.SetMode(fs.ModeDir | 0o755)
	if _, err := zw.CreateHeader(hdr); err != nil {
		return fmt.Errorf("failed to create directory entry: %w", err)
	}
	return nil
}

func addFile(zw *zip.Writer, src, name string, info fs.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create file header: %w", err)
	}
	hdr.Name = name
	hdr.Modified = epoch

	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("failed to read symlink %s: %w", src, err)
		}
		hdr.Method = zip.Store
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("failed to create symlink entry: %w", err)
		}
		_, err = io.WriteString(w, target)
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create file entry: %w", err)
	}
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", src, err)
	}
	return nil
}

func excluded(rel string, globs []string) bool {
	for _, g := range globs {
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}
