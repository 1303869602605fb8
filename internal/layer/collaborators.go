// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"time"
)

type (
	// ControlPlane is the remote compute control plane.
	//
	// ListLayerVersions must return an error wrapping ErrLayerNotFound when the
	// layer itself does not exist yet.
	ControlPlane interface {
		GetFunctionLayers(ctx context.Context, service, function string) ([]string, error)
		ListLayerVersions(ctx context.Context, layerName string, maxItems int) ([]LayerVersion, error)
		CreateLayerVersion(ctx context.Context, req CreateLayerVersionRequest) (*LayerVersion, error)
		UpdateFunction(ctx context.Context, req UpdateFunctionRequest) (*FunctionUpdate, error)
	}

	// CreateLayerVersionRequest describes a new layer version.
	CreateLayerVersionRequest struct {
		LayerName          string
		Description        string
		CompatibleRuntimes []string
		Code               CodeRef
	}

	// CodeRef locates layer code in the object store.
	CodeRef struct {
		Bucket string
		Key    string
	}

	// UpdateFunctionRequest carries new code and, optionally, a new layer list.
	UpdateFunctionRequest struct {
		Service  string
		Function string
		Code     []byte
		// Layers replaces the function's layer list. Nil leaves it untouched.
		Layers []string
	}

	// ClientResolver hands out the control plane client for a target.
	ClientResolver interface {
		For(target Target) (ControlPlane, error)
	}

	// ObjectStore stores dependency bundles.
	//
	// Exists reports (false, nil) for a missing object and returns an error
	// only for other failures.
	ObjectStore interface {
		Bucket() string
		Exists(ctx context.Context, key string) (bool, error)
		Put(ctx context.Context, key, localPath string, timeout time.Duration) (url string, err error)
	}

	// HashStore persists the last deployed fingerprint per target key.
	// GetHash returns "" for an unknown key.
	HashStore interface {
		GetHash(ctx context.Context, key string) (string, error)
		SetHash(ctx context.Context, key, hash string) error
	}

	// Packager compresses a code directory into an in-memory archive.
	Packager interface {
		Compress(ctx context.Context, dir string) ([]byte, error)
	}

	// BundleWriter writes srcDir into a zip file at dst, with every entry
	// placed under prefix.
	BundleWriter interface {
		WriteBundle(ctx context.Context, srcDir, prefix, dst string) error
	}

	// singleClient resolves every target to the same control plane.
	singleClient struct {
		cp ControlPlane
	}
)

// SingleClient returns a ClientResolver that always yields cp.
func SingleClient(cp ControlPlane) ClientResolver {
	return singleClient{cp: cp}
}

// For returns the wrapped control plane.
func (s singleClient) For(Target) (ControlPlane, error) {
	return s.cp, nil
}
