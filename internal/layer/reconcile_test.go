// SPDX-License-Identifier: MPL-2.0

package layer_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/invowk/layerdeploy/internal/layer"
)

func TestSplice(t *testing.T) {
	t.Parallel()

	const ref = "acs:fc:r:1:layers/app-deps/versions/7"
	tests := []struct {
		name    string
		current []string
		want    []string
	}{
		{
			name:    "empty list",
			current: nil,
			want:    []string{ref},
		},
		{
			name:    "prepend when absent",
			current: []string{"layers/other/versions/1", "layers/tools/versions/3"},
			want:    []string{ref, "layers/other/versions/1", "layers/tools/versions/3"},
		},
		{
			name:    "replace in place",
			current: []string{"layers/other/versions/1", "layers/app-deps/versions/6", "layers/tools/versions/3"},
			want:    []string{"layers/other/versions/1", ref, "layers/tools/versions/3"},
		},
		{
			name:    "collapse duplicates",
			current: []string{"layers/app-deps/versions/4", "x", "layers/app-deps/versions/5", "y"},
			want:    []string{ref, "x", "y"},
		},
		{
			name:    "already current",
			current: []string{ref, "x"},
			want:    []string{ref, "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			orig := slices.Clone(tt.current)
			got := layer.Splice(tt.current, testLayer, ref)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Splice() = %v, want %v", got, tt.want)
			}
			if !slices.Equal(tt.current, orig) {
				t.Errorf("Splice() mutated its input: %v", tt.current)
			}
		})
	}
}

func TestSplice_EmptyLayerNamePrepends(t *testing.T) {
	t.Parallel()

	got := layer.Splice([]string{"a", "b"}, "", "ref")
	if !slices.Equal(got, []string{"ref", "a", "b"}) {
		t.Errorf("Splice() = %v", got)
	}
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api", "worker", "cron")
	version := f.cp.AddLayerVersion(testLayer, "d "+layer.ArtifactFileName(fpA))

	if err := f.hashes.SetHash(ctx, "svc-worker", string(fpA)); err != nil {
		t.Fatal(err)
	}

	updates, err := f.reconciler().Reconcile(ctx, targets, fpA, &version)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("len(updates) = %d, want 3", len(updates))
	}
	for i, want := range []string{"api", "worker", "cron"} {
		if updates[i].Target.Function != want {
			t.Errorf("updates[%d] = %s, want %s (order not preserved)", i, updates[i].Target.Function, want)
		}
	}

	if updates[1].Changed || updates[1].Layers != nil {
		t.Errorf("worker update = %+v, want unchanged with nil layers", updates[1])
	}
	wantLayers := []string{version.Ref, "acs:fc:cn-hangzhou:1234:layers/other/versions/1"}
	for _, i := range []int{0, 2} {
		if !updates[i].Changed {
			t.Errorf("updates[%d].Changed = false", i)
		}
		if !slices.Equal(updates[i].Layers, wantLayers) {
			t.Errorf("updates[%d].Layers = %v, want %v", i, updates[i].Layers, wantLayers)
		}
	}
	if got := layer.ChangedCount(updates); got != 2 {
		t.Errorf("ChangedCount() = %d, want 2", got)
	}
}

func TestReconciler_DetectForce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api")
	if err := f.hashes.SetHash(ctx, "svc-api", string(fpA)); err != nil {
		t.Fatal(err)
	}

	updates, err := f.reconciler().Detect(ctx, targets, fpA, true)
	if err != nil {
		t.Fatal(err)
	}
	if !updates[0].Changed {
		t.Error("forced Detect() reported target unchanged")
	}
}

func TestReconciler_GetFunctionFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	targets := f.targets("api")
	version := f.cp.AddLayerVersion(testLayer, "d")
	f.cp.FailGet(errors.New("forbidden"))

	_, err := f.reconciler().Reconcile(context.Background(), targets, fpA, &version)
	var cpErr *layer.ControlPlaneError
	if !errors.As(err, &cpErr) {
		t.Fatalf("Reconcile() error = %v, want *ControlPlaneError", err)
	}
	if cpErr.Resource != "svc/api" {
		t.Errorf("Resource = %q", cpErr.Resource)
	}
}

func TestReconciler_InvalidVersion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	targets := f.targets("api")
	_, err := f.reconciler().Reconcile(context.Background(), targets, fpA, &layer.LayerVersion{Name: testLayer})
	if !errors.Is(err, layer.ErrInvalidLayerVersion) {
		t.Fatalf("Reconcile() error = %v, want ErrInvalidLayerVersion", err)
	}
}
