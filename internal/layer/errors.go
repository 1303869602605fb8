// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is the sentinel error wrapped by ConfigError.
	ErrConfig = errors.New("invalid configuration")
	// ErrManifestRead is the sentinel error wrapped by ManifestReadError.
	ErrManifestRead = errors.New("manifest read failed")
	// ErrSourceMissing is the sentinel error wrapped by SourceMissingError.
	ErrSourceMissing = errors.New("dependency source directory missing")
	// ErrStorage is the sentinel error wrapped by StorageError.
	ErrStorage = errors.New("object storage failure")
	// ErrControlPlane is the sentinel error wrapped by ControlPlaneError.
	ErrControlPlane = errors.New("control plane failure")
	// ErrInvalidLayerVersion is the sentinel error wrapped by InvalidLayerVersionError.
	ErrInvalidLayerVersion = errors.New("invalid layer version")
	// ErrLayerNotFound is returned by ControlPlane.ListLayerVersions when the
	// layer has never been published. It is not fatal to resolution.
	ErrLayerNotFound = errors.New("layer not found")
)

type (
	// ConfigError is returned when a required input is empty or malformed.
	ConfigError struct {
		Field  string
		Reason string
	}

	// ManifestReadError is returned when a dependency manifest cannot be read.
	ManifestReadError struct {
		Path  string
		Cause error
	}

	// SourceMissingError is returned when the dependency source directory is
	// absent and a new bundle would have to be built from it.
	SourceMissingError struct {
		Dir string
	}

	// StorageError is returned when an object store call fails.
	StorageError struct {
		Op    string
		Key   string
		Cause error
	}

	// ControlPlaneError is returned when a control plane call fails.
	ControlPlaneError struct {
		Op       string
		Resource string
		Cause    error
	}

	// InvalidLayerVersionError is returned when a published layer version lacks
	// its name or reference.
	InvalidLayerVersionError struct {
		LayerName string
		Version   LayerVersion
	}
)

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Unwrap returns ErrConfig for errors.Is() compatibility.
func (e *ConfigError) Unwrap() error { return ErrConfig }

func (e *ManifestReadError) Error() string {
	return fmt.Sprintf("failed to read manifest %s: %v", e.Path, e.Cause)
}

// Unwrap returns ErrManifestRead and the underlying cause.
func (e *ManifestReadError) Unwrap() []error { return wrapped(ErrManifestRead, e.Cause) }

func (e *SourceMissingError) Error() string {
	return fmt.Sprintf("dependency source directory %s does not exist", e.Dir)
}

// Unwrap returns ErrSourceMissing for errors.Is() compatibility.
func (e *SourceMissingError) Unwrap() error { return ErrSourceMissing }

func (e *StorageError) Error() string {
	return fmt.Sprintf("object storage %s %s: %v", e.Op, e.Key, e.Cause)
}

// Unwrap returns ErrStorage and the underlying cause.
func (e *StorageError) Unwrap() []error { return wrapped(ErrStorage, e.Cause) }

func (e *ControlPlaneError) Error() string {
	return fmt.Sprintf("control plane %s %s: %v", e.Op, e.Resource, e.Cause)
}

// Unwrap returns ErrControlPlane and the underlying cause.
func (e *ControlPlaneError) Unwrap() []error { return wrapped(ErrControlPlane, e.Cause) }

func (e *InvalidLayerVersionError) Error() string {
	return fmt.Sprintf("layer %s: published version %d has empty name or reference (name=%q, ref=%q)",
		e.LayerName, e.Version.Version, e.Version.Name, e.Version.Ref)
}

// Unwrap returns ErrInvalidLayerVersion for errors.Is() compatibility.
func (e *InvalidLayerVersionError) Unwrap() error { return ErrInvalidLayerVersion }

func wrapped(sentinel, cause error) []error {
	if cause == nil {
		return []error{sentinel}
	}
	return []error{sentinel, cause}
}
