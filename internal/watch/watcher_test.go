// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/invowk/layerdeploy/internal/testutil"
)

func TestWatcher_DebouncesIntoOneBatch(t *testing.T) {
	t.Parallel()

	dir := testutil.NodeProject(t, "1.0.0")
	batches := make(chan []string, 4)
	w, err := New(Config{
		Dir:      dir,
		Debounce: 150 * time.Millisecond,
		OnChange: func(_ context.Context, changed []string) error {
			batches <- changed
			return nil
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)

	testutil.MustWriteFile(t, dir+"/package.json", `{"name":"app","version":"1.0.1"}`)
	testutil.MustWriteFile(t, dir+"/package-lock.json", `{"lockfileVersion":3,"v":2}`)
	testutil.MustWriteFile(t, dir+"/node_modules/left-pad/index.js", "changed")

	select {
	case got := <-batches:
		if !slices.Equal(got, []string{"package-lock.json", "package.json"}) {
			t.Errorf("batch = %v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
	if err := w.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestWatcher_Patterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if _, err := New(Config{Dir: dir, Patterns: []string{"[unclosed"}}); err == nil {
		t.Error("New() accepted an invalid pattern")
	}

	w, err := New(Config{Dir: dir, Patterns: []string{"package*.json"}, Ignore: []string{"dist/**"}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.fsw.Close() })
	tests := []struct {
		rel      string
		ignored  bool
		selected bool
	}{
		{"package.json", false, true},
		{"package-lock.json", false, true},
		{"index.js", false, false},
		{"node_modules/x/package.json", true, false},
		{".layerdeploy/state.toml", true, false},
		{"dist/out.js", true, false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.rel); got != tt.ignored {
			t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.ignored)
		}
		if got := w.selected(tt.rel); got != tt.selected {
			t.Errorf("selected(%q) = %v, want %v", tt.rel, got, tt.selected)
		}
	}
}
