// SPDX-License-Identifier: MPL-2.0

package objectstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newMemStore(t *testing.T) (*LocalStore, afero.Fs) {
	t.Helper()
	src := afero.NewMemMapFs()
	if err := afero.WriteFile(src, "/tmp/bundle.zip", []byte("PK-bundle"), 0o644); err != nil {
		t.Fatal(err)
	}
	return NewLocalStore(afero.NewMemMapFs(), "/store", "layers", WithSourceFs(src)), src
}

func TestLocalStore_PutExistsGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newMemStore(t)
	key := "fc-deploy/deps/node_modules@abc.zip"

	ok, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Fatal("Exists() = true before Put")
	}

	url, err := store.Put(ctx, key, "/tmp/bundle.zip", time.Minute)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if want := "file:///store/layers/fc-deploy/deps/node_modules@abc.zip"; url != want {
		t.Errorf("Put() url = %q, want %q", url, want)
	}

	ok, err = store.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v after Put", ok, err)
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(data) != "PK-bundle" {
		t.Errorf("Get() = %q, want %q", data, "PK-bundle")
	}
	if store.Bucket() != "layers" {
		t.Errorf("Bucket() = %q", store.Bucket())
	}
}

func TestLocalStore_PutMissingSource(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	if _, err := store.Put(context.Background(), "k.zip", "/tmp/missing.zip", time.Minute); err == nil {
		t.Fatal("Put() expected error for missing source")
	}
	ok, err := store.Exists(context.Background(), "k.zip")
	if err != nil || ok {
		t.Errorf("Exists() = %v, %v after failed Put", ok, err)
	}
}

func TestLocalStore_GetMissing(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	_, err := store.Get(context.Background(), "nope.zip")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestLocalStore_InvalidKey(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	for _, key := range []string{"", "/", "../.."} {
		if _, err := store.Exists(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Exists(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalStore_KeyCannotEscapeRoot(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	p, err := store.objectPath("../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if p != "/store/layers/etc/passwd" {
		t.Errorf("objectPath() = %q", p)
	}
}

func TestLocalStore_CanceledContext(t *testing.T) {
	t.Parallel()

	store, _ := newMemStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Exists(ctx, "k.zip"); err == nil {
		t.Error("Exists() expected error for canceled context")
	}
	if _, err := store.Put(ctx, "k.zip", "/tmp/bundle.zip", time.Minute); err == nil {
		t.Error("Put() expected error for canceled context")
	}
}
