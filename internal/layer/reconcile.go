// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"strings"
)

type (
	// Reconciler decides, per target, whether the layer reference list must
	// change and computes the new list.
	Reconciler struct {
		clients  ClientResolver
		hashes   HashStore
		observer Observer
	}

	// ReconcilerOption configures a Reconciler.
	ReconcilerOption func(*Reconciler)
)

// WithReconcilerObserver sets the progress observer.
func WithReconcilerObserver(o Observer) ReconcilerOption {
	return func(r *Reconciler) { r.observer = observerOrNop(o) }
}

// NewReconciler creates a Reconciler.
func NewReconciler(clients ClientResolver, hashes HashStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{clients: clients, hashes: hashes, observer: NopObserver{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile returns one Update per target, in input order. Targets whose stored
// fingerprint equals fp are unchanged; every other target gets its current
// layer list with version.Ref spliced in.
func (r *Reconciler) Reconcile(ctx context.Context, targets []Target, fp Fingerprint, version *LayerVersion) ([]Update, error) {
	updates, err := r.Detect(ctx, targets, fp, false)
	if err != nil {
		return nil, err
	}
	if err := r.Attach(ctx, updates, version); err != nil {
		return nil, err
	}
	return updates, nil
}

// Detect compares each target's stored fingerprint with fp. With force set,
// every target is reported as changed without consulting the store.
func (r *Reconciler) Detect(ctx context.Context, targets []Target, fp Fingerprint, force bool) ([]Update, error) {
	updates := make([]Update, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if force {
			updates = append(updates, Update{Target: t, Changed: true})
			continue
		}
		stored, err := r.hashes.GetHash(ctx, t.Key())
		if err != nil {
			return nil, &StorageError{Op: "read fingerprint", Key: t.Key(), Cause: err}
		}
		changed := stored != string(fp)
		r.observer.Debug("compared fingerprint", "target", t.String(), "stored", Fingerprint(stored).Short(),
			"current", fp.Short(), "changed", changed)
		updates = append(updates, Update{Target: t, Changed: changed})
	}
	return updates, nil
}

// Attach fills Layers for every changed update by fetching the target's
// current layer list and splicing version.Ref into it. Unchanged updates are
// left untouched.
func (r *Reconciler) Attach(ctx context.Context, updates []Update, version *LayerVersion) error {
	for i := range updates {
		u := &updates[i]
		if !u.Changed {
			continue
		}
		if version == nil || version.Name == "" || version.Ref == "" {
			var v LayerVersion
			if version != nil {
				v = *version
			}
			return &InvalidLayerVersionError{LayerName: v.Name, Version: v}
		}
		cp, err := r.clients.For(u.Target)
		if err != nil {
			return &ControlPlaneError{Op: "resolve client", Resource: u.Target.String(), Cause: err}
		}
		current, err := cp.GetFunctionLayers(ctx, u.Target.Service, u.Target.Function)
		if err != nil {
			return &ControlPlaneError{Op: "get function", Resource: u.Target.String(), Cause: err}
		}
		u.Layers = Splice(current, version.Name, version.Ref)
		r.observer.Info("layer reference updated", "target", u.Target.String(), "layers", len(u.Layers))
	}
	return nil
}

// Splice returns a copy of current in which the first entry containing
// layerName is replaced by ref and any later such entries are dropped. If no
// entry matches, ref is prepended. Other entries keep their relative order.
func Splice(current []string, layerName, ref string) []string {
	out := make([]string, 0, len(current)+1)
	replaced := false
	for _, entry := range current {
		if layerName == "" || !strings.Contains(entry, layerName) {
			out = append(out, entry)
			continue
		}
		if !replaced {
			out = append(out, ref)
			replaced = true
		}
	}
	if !replaced {
		out = append([]string{ref}, out...)
	}
	return out
}
