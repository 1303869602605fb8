// SPDX-License-Identifier: MPL-2.0

package hashstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invowk/layerdeploy/internal/layer"
	"github.com/invowk/layerdeploy/internal/testutil"
)

var (
	_ layer.HashStore = (*FileStore)(nil)
	_ layer.HashStore = (*Memory)(nil)
)

func TestFileStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	path := filepath.Join(t.TempDir(), ".layerdeploy", "state.toml")
	s := NewFileStore(path, WithClock(clock.Now))

	got, err := s.GetHash(ctx, "svc-fn")
	if err != nil {
		t.Fatalf("GetHash() on missing file error = %v", err)
	}
	if got != "" {
		t.Errorf("GetHash() = %q, want empty", got)
	}

	if err := s.SetHash(ctx, "svc-fn", "abc"); err != nil {
		t.Fatalf("SetHash() error = %v", err)
	}
	clock.Advance(time.Hour)
	if err := s.SetHash(ctx, "svc-other", "def"); err != nil {
		t.Fatalf("SetHash() error = %v", err)
	}

	reopened := NewFileStore(path)
	for key, want := range map[string]string{"svc-fn": "abc", "svc-other": "def", "nope": ""} {
		got, err := reopened.GetHash(ctx, key)
		if err != nil {
			t.Fatalf("GetHash(%s) error = %v", key, err)
		}
		if got != want {
			t.Errorf("GetHash(%s) = %q, want %q", key, got, want)
		}
	}

	entries, err := reopened.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !entries["svc-other"].UpdatedAt.Equal(clock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", entries["svc-other"].UpdatedAt, clock.Now())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[targets.svc-fn]") {
		t.Errorf("state file missing table header:\n%s", data)
	}
}

func TestFileStore_Overwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewFileStore(filepath.Join(t.TempDir(), "state.toml"))
	for _, h := range []string{"one", "two"} {
		if err := s.SetHash(ctx, "svc-fn", h); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.GetHash(ctx, "svc-fn")
	if err != nil || got != "two" {
		t.Errorf("GetHash() = %q, %v, want two", got, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.toml")
	testutil.MustWriteFile(t, path, "this is = = not toml")
	if _, err := NewFileStore(path).GetHash(context.Background(), "k"); err == nil {
		t.Fatal("GetHash() expected error for corrupt state file")
	}
}

func TestFileStore_EmptyKey(t *testing.T) {
	t.Parallel()

	s := NewFileStore(filepath.Join(t.TempDir(), "state.toml"))
	if err := s.SetHash(context.Background(), "", "x"); err == nil {
		t.Fatal("SetHash() expected error for empty key")
	}
}

func TestMemory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	if got, _ := m.GetHash(ctx, "k"); got != "" {
		t.Errorf("GetHash() = %q, want empty", got)
	}
	if err := m.SetHash(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.GetHash(ctx, "k"); got != "v" {
		t.Errorf("GetHash() = %q, want v", got)
	}
}
