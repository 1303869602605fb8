// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invowk/layerdeploy/internal/layer"
)

// OpUpdateFunction is the ControlPlaneError operation of a failed function update.
const OpUpdateFunction = "update function"

var (
	// ErrPackage is the sentinel error wrapped by PackageError.
	ErrPackage = errors.New("code packaging failed")
	// ErrEmptyUpdate is the cause when a control plane reports success for a
	// function update without returning its result.
	ErrEmptyUpdate = errors.New("empty function update response")
)

type (
	// PackageError is returned when the function code directory cannot be
	// compressed.
	PackageError struct {
		Dir   string
		Cause error
	}

	// Result is the outcome of one target's function update.
	Result struct {
		Target  layer.Target
		Changed bool
		// Layers is the layer list sent with the update; nil when unchanged.
		Layers   []string
		Response *layer.FunctionUpdate
	}

	// Report summarizes a deploy batch. On failure it holds the results of
	// the targets updated before the failing one.
	Report struct {
		Plan    *layer.Plan
		Results []Result
	}

	// Orchestrator runs deploy batches.
	Orchestrator struct {
		engine   *layer.Engine
		clients  layer.ClientResolver
		hashes   layer.HashStore
		packager layer.Packager
		sink     LogSink
		observer layer.Observer
		now      func() time.Time
	}

	// Option configures an Orchestrator.
	Option func(*Orchestrator)
)

func (e *PackageError) Error() string {
	return fmt.Sprintf("package function code %s: %v", e.Dir, e.Cause)
}

// Unwrap returns ErrPackage and the underlying cause.
func (e *PackageError) Unwrap() []error { return []error{ErrPackage, e.Cause} }

// WithSink sets the log sink. Nil disables it.
func WithSink(s LogSink) Option {
	return func(o *Orchestrator) {
		if s == nil {
			s = nopSink{}
		}
		o.sink = s
	}
}

// WithObserver sets the observer.
func WithObserver(obs layer.Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithClock overrides the time source used for sink lines.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator returns an Orchestrator. clients must be the resolver the
// engine was built with, so layer and function calls share clients.
func NewOrchestrator(engine *layer.Engine, clients layer.ClientResolver, hashes layer.HashStore, packager layer.Packager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		clients:  clients,
		hashes:   hashes,
		packager: packager,
		sink:     nopSink{},
		observer: layer.NopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Deploy plans the batch, packages codeDir once, then updates every target in
// input order. A changed target's fingerprint is recorded only after its
// update succeeded. The first failure stops the batch.
func (o *Orchestrator) Deploy(ctx context.Context, req layer.Request, codeDir string) (*Report, error) {
	plan, err := o.engine.Plan(ctx, req)
	if err != nil {
		return nil, err
	}
	report := &Report{Plan: plan}
	if len(plan.Updates) == 0 {
		return report, nil
	}

	code, err := o.packager.Compress(ctx, codeDir)
	if err != nil {
		return report, &PackageError{Dir: codeDir, Cause: err}
	}
	o.observer.Debug("packaged function code", "dir", codeDir, "bytes", len(code))

	for _, u := range plan.Updates {
		res, err := o.update(ctx, u, code)
		if err != nil {
			return report, err
		}
		report.Results = append(report.Results, *res)

		if u.Changed {
			if err := o.hashes.SetHash(ctx, u.Target.Key(), plan.Fingerprint.String()); err != nil {
				return report, &layer.StorageError{Op: "write fingerprint", Key: u.Target.Key(), Cause: err}
			}
		}
	}
	return report, nil
}

func (o *Orchestrator) update(ctx context.Context, u layer.Update, code []byte) (*Result, error) {
	cp, err := o.clients.For(u.Target)
	if err != nil {
		return nil, &layer.ControlPlaneError{Op: "resolve client", Resource: u.Target.String(), Cause: err}
	}
	resp, err := cp.UpdateFunction(ctx, layer.UpdateFunctionRequest{
		Service:  u.Target.Service,
		Function: u.Target.Function,
		Code:     code,
		Layers:   u.Layers,
	})
	if err != nil {
		return nil, &layer.ControlPlaneError{Op: OpUpdateFunction, Resource: u.Target.String(), Cause: err}
	}
	if resp == nil {
		return nil, &layer.ControlPlaneError{Op: OpUpdateFunction, Resource: u.Target.String(), Cause: ErrEmptyUpdate}
	}
	o.observer.Info("updated function", "target", u.Target.String(), "changed", u.Changed, "status", resp.StatusCode)

	if err := o.sink.Emit(ctx, UpdateLine(o.now(), u.Target, resp)); err != nil {
		o.observer.Warn("log sink failed", "target", u.Target.String(), "err", err)
	}
	return &Result{Target: u.Target, Changed: u.Changed, Layers: u.Layers, Response: resp}, nil
}
