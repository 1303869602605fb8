// SPDX-License-Identifier: MPL-2.0

package controlplane

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/invowk/layerdeploy/internal/layer"
)

const (
	memoryCPU    = 0.35
	memoryMemory = 512
)

type (
	// Memory is an in-memory control plane. It keeps functions and layer
	// versions in maps, counts calls, and can be told to fail.
	Memory struct {
		mu        sync.Mutex
		region    string
		account   string
		functions map[string]*memFunction
		layers    map[string][]layer.LayerVersion

		listCalls    int
		createCalls  int
		updateCalls  []layer.UpdateFunctionRequest
		createFails  int
		createErr    error
		listErr      error
		getErr       error
		updateErrs   map[string]error
		emptyPublish bool
	}

	memFunction struct {
		layers []string
		code   []byte
	}
)

// NewMemory creates an empty in-memory control plane. region and account are
// only used to build layer version references.
func NewMemory(region, account string) *Memory {
	return &Memory{
		region:     region,
		account:    account,
		functions:  make(map[string]*memFunction),
		layers:     make(map[string][]layer.LayerVersion),
		updateErrs: make(map[string]error),
	}
}

// AddFunction registers a function with an initial layer list.
func (m *Memory) AddFunction(service, function string, layers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.functions[funcKey(service, function)] = &memFunction{layers: slices.Clone(layers)}
}

// AddLayerVersion publishes a version directly, bypassing call counters.
func (m *Memory) AddLayerVersion(name, description string) layer.LayerVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishLocked(name, description)
}

// FunctionLayers returns the current layer list of a function.
func (m *Memory) FunctionLayers(service, function string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.functions[funcKey(service, function)]; ok {
		return slices.Clone(f.layers)
	}
	return nil
}

// FunctionCode returns the last code uploaded to a function.
func (m *Memory) FunctionCode(service, function string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.functions[funcKey(service, function)]; ok {
		return slices.Clone(f.code)
	}
	return nil
}

// LayerVersions returns all published versions of a layer, oldest first.
func (m *Memory) LayerVersions(name string) []layer.LayerVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.layers[name])
}

// ListCalls returns how many times ListLayerVersions was called.
func (m *Memory) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// CreateCalls returns how many times CreateLayerVersion was called,
// including failed attempts.
func (m *Memory) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

// UpdateCalls returns the recorded UpdateFunction requests in call order.
func (m *Memory) UpdateCalls() []layer.UpdateFunctionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.updateCalls)
}

// FailCreate makes the next n CreateLayerVersion calls fail with err.
func (m *Memory) FailCreate(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createFails, m.createErr = n, err
}

// FailList makes ListLayerVersions fail with err until reset with nil.
func (m *Memory) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailGet makes GetFunctionLayers fail with err until reset with nil.
func (m *Memory) FailGet(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
}

// FailUpdate makes UpdateFunction fail with err for one function.
func (m *Memory) FailUpdate(service, function string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErrs[funcKey(service, function)] = err
}

// PublishEmpty makes CreateLayerVersion return versions without a reference.
func (m *Memory) PublishEmpty(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emptyPublish = v
}

// GetFunctionLayers implements layer.ControlPlane.
func (m *Memory) GetFunctionLayers(ctx context.Context, service, function string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	f, ok := m.functions[funcKey(service, function)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", service, function, ErrFunctionNotFound)
	}
	return slices.Clone(f.layers), nil
}

// ListLayerVersions implements layer.ControlPlane. Versions are returned
// newest first.
func (m *Memory) ListLayerVersions(ctx context.Context, layerName string, maxItems int) ([]layer.LayerVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	versions, ok := m.layers[layerName]
	if !ok {
		return nil, fmt.Errorf("%s: %w", layerName, ErrLayerNotFound)
	}
	out := slices.Clone(versions)
	slices.Reverse(out)
	if maxItems > 0 && len(out) > maxItems {
		out = out[:maxItems]
	}
	return out, nil
}

// CreateLayerVersion implements layer.ControlPlane.
func (m *Memory) CreateLayerVersion(ctx context.Context, req layer.CreateLayerVersionRequest) (*layer.LayerVersion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createFails > 0 {
		m.createFails--
		return nil, m.createErr
	}
	v := m.publishLocked(req.LayerName, req.Description)
	if m.emptyPublish {
		v.Ref = ""
	}
	return &v, nil
}

// UpdateFunction implements layer.ControlPlane.
func (m *Memory) UpdateFunction(ctx context.Context, req layer.UpdateFunctionRequest) (*layer.FunctionUpdate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls = append(m.updateCalls, req)
	key := funcKey(req.Service, req.Function)
	if err := m.updateErrs[key]; err != nil {
		return nil, err
	}
	f, ok := m.functions[key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", req.Service, req.Function, ErrFunctionNotFound)
	}
	f.code = slices.Clone(req.Code)
	if req.Layers != nil {
		f.layers = slices.Clone(req.Layers)
	}
	return &layer.FunctionUpdate{
		StatusCode: 200,
		CodeSize:   int64(len(req.Code)),
		CPU:        memoryCPU,
		MemorySize: memoryMemory,
	}, nil
}

func (m *Memory) publishLocked(name, description string) layer.LayerVersion {
	n := len(m.layers[name]) + 1
	v := layer.LayerVersion{
		Name:        name,
		Version:     n,
		Description: description,
		Ref:         LayerRef(m.region, m.account, name, n),
	}
	m.layers[name] = append(m.layers[name], v)
	return v
}

// LayerRef formats the reference of a layer version.
func LayerRef(region, account, name string, version int) string {
	return fmt.Sprintf("acs:fc:%s:%s:layers/%s/versions/%d", region, account, name, version)
}

func funcKey(service, function string) string {
	return service + "/" + function
}
