// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"cmp"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/invowk/layerdeploy/internal/layer"
)

type (
	// Identity is the credential identity a control plane client is bound to.
	// Targets sharing an identity share a client.
	Identity struct {
		Endpoint    string
		Region      string
		AccessKeyID string
	}

	// Factory builds a control plane client for the identity of target.
	Factory func(target layer.Target) (layer.ControlPlane, error)

	// Registry caches control plane clients per Identity. It implements
	// layer.ClientResolver and is safe for concurrent use.
	Registry struct {
		mu      sync.Mutex
		factory Factory
		clients map[Identity]layer.ControlPlane
	}
)

// IdentityOf returns the identity a target authenticates as.
func IdentityOf(t layer.Target) Identity {
	return Identity{Endpoint: t.Endpoint, Region: t.Region, AccessKeyID: t.Credentials.AccessKeyID}
}

// NewRegistry returns an empty registry that builds clients with factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{factory: factory, clients: make(map[Identity]layer.ControlPlane)}
}

// For returns the cached client for target's identity, building it on first
// use. A factory error is returned as is and nothing is cached.
func (r *Registry) For(target layer.Target) (layer.ControlPlane, error) {
	id := IdentityOf(target)

	r.mu.Lock()
	defer r.mu.Unlock()

	if cp, ok := r.clients[id]; ok {
		return cp, nil
	}
	cp, err := r.factory(target)
	if err != nil {
		return nil, err
	}
	r.clients[id] = cp
	return cp, nil
}

// Identities lists the identities with a cached client, sorted.
func (r *Registry) Identities() []Identity {
	r.mu.Lock()
	out := make([]Identity, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Identity) int {
		return cmp.Or(
			cmp.Compare(a.Endpoint, b.Endpoint),
			cmp.Compare(a.Region, b.Region),
			cmp.Compare(a.AccessKeyID, b.AccessKeyID),
		)
	})
	return out
}
