// SPDX-License-Identifier: MPL-2.0

package layer_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/invowk/layerdeploy/internal/layer"
)

func TestEngine_Plan_FirstRunBuildsOncePublishesOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	targets := f.targets("api", "worker", "cron")

	plan, err := f.engine().Plan(context.Background(), f.request(targets))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan.NoLayerWork {
		t.Fatal("Plan() reported no layer work on first run")
	}
	if f.bundler.calls != 1 || f.store.puts != 1 {
		t.Errorf("bundles = %d, puts = %d, want 1 each", f.bundler.calls, f.store.puts)
	}
	if f.cp.CreateCalls() != 1 {
		t.Errorf("CreateCalls() = %d, want 1", f.cp.CreateCalls())
	}
	if plan.Version == nil || plan.Version.Ref == "" {
		t.Fatalf("Plan().Version = %+v", plan.Version)
	}
	if plan.Artifact.Key != "fc-deploy/"+testLayer+"/"+layer.ArtifactFileName(plan.Fingerprint) {
		t.Errorf("Artifact.Key = %q", plan.Artifact.Key)
	}
	for i, u := range plan.Updates {
		if !u.Changed || u.Layers[0] != plan.Version.Ref {
			t.Errorf("Updates[%d] = %+v", i, u)
		}
	}
}

func TestEngine_Plan_NoOpConvergence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api", "worker")

	first, err := f.engine().Plan(ctx, f.request(targets))
	if err != nil {
		t.Fatal(err)
	}
	for _, tg := range targets {
		if err := f.hashes.SetHash(ctx, tg.Key(), first.Fingerprint.String()); err != nil {
			t.Fatal(err)
		}
	}
	lists := f.cp.ListCalls()

	second, err := f.engine().Plan(ctx, f.request(targets))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !second.NoLayerWork {
		t.Error("second Plan() did not short-circuit")
	}
	if second.Version != nil || second.Artifact != (layer.ArtifactLocation{}) {
		t.Errorf("short-circuited plan carries layer work: %+v", second)
	}
	for i, u := range second.Updates {
		if u.Changed || u.Layers != nil {
			t.Errorf("Updates[%d] = %+v, want unchanged", i, u)
		}
	}
	if f.cp.ListCalls() != lists || f.cp.CreateCalls() != 1 || f.store.puts != 1 {
		t.Errorf("short-circuit touched remote state: lists=%d creates=%d puts=%d",
			f.cp.ListCalls(), f.cp.CreateCalls(), f.store.puts)
	}
}

func TestEngine_Plan_ReusesArtifactAndVersion(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	first, err := f.engine().Plan(ctx, f.request(f.targets("api")))
	if err != nil {
		t.Fatal(err)
	}
	// A new target with no recorded fingerprint needs the same layer.
	second, err := f.engine().Plan(ctx, f.request(f.targets("new")))
	if err != nil {
		t.Fatal(err)
	}
	if !second.Artifact.Reused {
		t.Error("artifact rebuilt for an unchanged fingerprint")
	}
	if *second.Version != *first.Version {
		t.Errorf("Version = %+v, want reuse of %+v", second.Version, first.Version)
	}
	if f.cp.CreateCalls() != 1 || f.bundler.calls != 1 {
		t.Errorf("creates = %d, bundles = %d, want 1 each", f.cp.CreateCalls(), f.bundler.calls)
	}
}

func TestEngine_Plan_PartialChange(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api", "worker")

	first, err := f.engine().Plan(ctx, f.request(targets))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.hashes.SetHash(ctx, "svc-api", first.Fingerprint.String()); err != nil {
		t.Fatal(err)
	}

	plan, err := f.engine().Plan(ctx, f.request(targets))
	if err != nil {
		t.Fatal(err)
	}
	if plan.NoLayerWork {
		t.Fatal("Plan() short-circuited with a changed target")
	}
	if plan.Updates[0].Changed || !plan.Updates[1].Changed {
		t.Errorf("changed flags = [%v %v], want [false true]", plan.Updates[0].Changed, plan.Updates[1].Changed)
	}
	if plan.Updates[0].Layers != nil {
		t.Errorf("unchanged target Layers = %v, want nil", plan.Updates[0].Layers)
	}
	want := []string{plan.Version.Ref, "acs:fc:cn-hangzhou:1234:layers/other/versions/1"}
	if !slices.Equal(plan.Updates[1].Layers, want) {
		t.Errorf("changed target Layers = %v, want %v", plan.Updates[1].Layers, want)
	}
	if *plan.Version != *first.Version || !plan.Artifact.Reused {
		t.Errorf("Plan() = %+v, want reuse of the first version and bundle", plan)
	}
	if f.bundler.calls != 1 || f.store.puts != 1 || f.cp.CreateCalls() != 1 {
		t.Errorf("bundles = %d, puts = %d, creates = %d, want 1 each",
			f.bundler.calls, f.store.puts, f.cp.CreateCalls())
	}
}

func TestEngine_Plan_Force(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api")
	first, err := f.engine().Plan(ctx, f.request(targets))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.hashes.SetHash(ctx, "svc-api", first.Fingerprint.String()); err != nil {
		t.Fatal(err)
	}

	req := f.request(targets)
	req.Force = true
	plan, err := f.engine().Plan(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if plan.NoLayerWork || !plan.Updates[0].Changed {
		t.Errorf("forced Plan() = %+v, want changed", plan)
	}
	if f.cp.CreateCalls() != 1 {
		t.Errorf("forced Plan() republished: creates = %d", f.cp.CreateCalls())
	}
}

func TestEngine_Plan_EmptyTargets(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	plan, err := f.engine().Plan(context.Background(), f.request(nil))
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if !plan.NoLayerWork || len(plan.Updates) != 0 {
		t.Errorf("Plan() = %+v, want vacuous no-op", plan)
	}
	if f.store.exists != 0 {
		t.Errorf("object store consulted for empty batch")
	}
}

func TestEngine_Plan_RetryExhaustionWritesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	targets := f.targets("api")
	f.cp.FailCreate(10, errors.New("throttled"))

	_, err := f.engine().Plan(ctx, f.request(targets))
	if !errors.Is(err, layer.ErrControlPlane) {
		t.Fatalf("Plan() error = %v, want ErrControlPlane", err)
	}
	if got, _ := f.hashes.GetHash(ctx, "svc-api"); got != "" {
		t.Errorf("fingerprint written after failure: %q", got)
	}
	if !slices.Equal(f.cp.FunctionLayers("svc", "api"), []string{"acs:fc:cn-hangzhou:1234:layers/other/versions/1"}) {
		t.Errorf("function layers modified: %v", f.cp.FunctionLayers("svc", "api"))
	}
}

func TestEngine_Preview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	plan, err := f.engine().Preview(context.Background(), f.request(f.targets("api")))
	if err != nil {
		t.Fatal(err)
	}
	if plan.NoLayerWork || !plan.Updates[0].Changed || plan.Updates[0].Layers != nil {
		t.Errorf("Preview() = %+v", plan)
	}
	if f.store.exists != 0 || f.cp.ListCalls() != 0 {
		t.Error("Preview() touched remote state")
	}
}

func TestEngine_Plan_InvalidRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	tests := []struct {
		name   string
		mutate func(*layer.Request)
	}{
		{"empty layer name", func(r *layer.Request) { r.LayerName = " " }},
		{"target without function", func(r *layer.Request) { r.Targets = []layer.Target{{Service: "svc"}} }},
		{"empty version", func(r *layer.Request) { r.ProjectVersion = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := f.request(nil)
			tt.mutate(&req)
			if _, err := f.engine().Plan(context.Background(), req); !errors.Is(err, layer.ErrConfig) {
				t.Errorf("Plan() error = %v, want ErrConfig", err)
			}
		})
	}
}
