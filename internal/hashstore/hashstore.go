// SPDX-License-Identifier: MPL-2.0

// Package hashstore persists the last successfully deployed fingerprint per
// target, keyed by "<service>-<function>".
package hashstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	// DefaultPath is the state file location relative to the project directory.
	DefaultPath = ".layerdeploy/state.toml"
	// TempPattern names the temporary file written next to the state file
	// before it is renamed into place.
	TempPattern = ".state-*.toml"
)

type (
	// Entry is the recorded state of one target.
	Entry struct {
		Fingerprint string    `toml:"fingerprint"`
		UpdatedAt   time.Time `toml:"updated_at"`
	}

	stateFile struct {
		Targets map[string]Entry `toml:"targets"`
	}

	// FileStore keeps fingerprints in a TOML file. Writes replace the file
	// atomically.
	FileStore struct {
		mu   sync.Mutex
		path string
		now  func() time.Time
	}

	// Option configures a FileStore.
	Option func(*FileStore)

	// Memory keeps fingerprints in a map.
	Memory struct {
		mu      sync.Mutex
		entries map[string]string
	}
)

// WithClock overrides the time source used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) { s.now = now }
}

// NewFileStore creates a store backed by the file at path. The file is
// created on first write.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the state file path.
func (s *FileStore) Path() string { return s.path }

// GetHash returns the recorded fingerprint of key, or "" if none.
func (s *FileStore) GetHash(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return "", err
	}
	return st.Targets[key].Fingerprint, nil
}

// SetHash records hash for key.
func (s *FileStore) SetHash(ctx context.Context, key, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("state key must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return err
	}
	st.Targets[key] = Entry{Fingerprint: hash, UpdatedAt: s.now().UTC().Truncate(time.Second)}
	return s.save(st)
}

// Entries returns every recorded entry.
func (s *FileStore) Entries(ctx context.Context) (map[string]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	return st.Targets, nil
}

func (s *FileStore) load() (*stateFile, error) {
	st := &stateFile{Targets: make(map[string]Entry)}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	if err := toml.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", s.path, err)
	}
	if st.Targets == nil {
		st.Targets = make(map[string]Entry)
	}
	return st, nil
}

func (s *FileStore) save(st *stateFile) error {
	data, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, TempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

// GetHash returns the recorded fingerprint of key, or "".
func (m *Memory) GetHash(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key], nil
}

// SetHash records hash for key.
func (m *Memory) SetHash(ctx context.Context, key, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = hash
	return nil
}
