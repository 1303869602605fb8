// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invowk/layerdeploy/internal/hashstore"
	"github.com/invowk/layerdeploy/internal/layer"
)

const (
	// StorageDriverS3 stores bundles in an S3-compatible bucket.
	StorageDriverS3 StorageDriver = "s3"
	// StorageDriverLocal stores bundles in a directory tree on disk.
	StorageDriverLocal StorageDriver = "local"

	// DefaultLocalRoot is the object root of the local storage driver.
	DefaultLocalRoot = ".layerdeploy/objects"

	// DefaultCompressionLevel selects the deflate library default.
	DefaultCompressionLevel = -1
	minCompressionLevel     = -2
	maxCompressionLevel     = 9
)

var (
	// ErrInvalidStorageDriver is returned when a StorageDriver value is not recognized.
	ErrInvalidStorageDriver = errors.New("invalid storage driver")
	// ErrInvalidTarget is the sentinel error wrapped by InvalidTargetError.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// StorageDriver selects the object store implementation.
	StorageDriver string

	// InvalidStorageDriverError is returned when a StorageDriver value is not recognized.
	InvalidStorageDriverError struct {
		Value StorageDriver
	}

	// InvalidTargetError is returned when a target entry lacks its service
	// or function.
	InvalidTargetError struct {
		Index  int
		Target TargetConfig
	}

	// InvalidConfigError collects every field error of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the deploy configuration.
	Config struct {
		Project   ProjectConfig  `json:"project" mapstructure:"project"`
		Targets   []TargetConfig `json:"targets" mapstructure:"targets"`
		Defaults  EndpointConfig `json:"defaults" mapstructure:"defaults"`
		Layer     LayerConfig    `json:"layer" mapstructure:"layer"`
		Manifests []string       `json:"manifests" mapstructure:"manifests"`
		Storage   StorageConfig  `json:"storage" mapstructure:"storage"`
		Code      CodeConfig     `json:"code" mapstructure:"code"`
		State     StateConfig    `json:"state" mapstructure:"state"`
		LogSink   LogSinkConfig  `json:"log_sink" mapstructure:"log_sink"`
		Retry     RetryConfig    `json:"retry" mapstructure:"retry"`
	}

	// ProjectConfig locates the project. An empty Version is read from
	// package.json.
	ProjectConfig struct {
		Dir     string `json:"dir" mapstructure:"dir"`
		Version string `json:"version" mapstructure:"version"`
	}

	// EndpointConfig is the control plane endpoint and credentials. Targets
	// inherit unset fields from Config.Defaults.
	EndpointConfig struct {
		Endpoint        string `json:"endpoint" mapstructure:"endpoint"`
		Region          string `json:"region" mapstructure:"region"`
		AccessKeyID     string `json:"access_key_id" mapstructure:"access_key_id"`
		AccessKeySecret string `json:"-" mapstructure:"access_key_secret"`
	}

	// TargetConfig is one deploy target.
	TargetConfig struct {
		EndpointConfig `mapstructure:",squash"`
		Service        string `json:"service" mapstructure:"service"`
		Function       string `json:"function" mapstructure:"function"`
	}

	// LayerConfig describes the dependency layer.
	LayerConfig struct {
		Name               string   `json:"name" mapstructure:"name"`
		Description        string   `json:"description" mapstructure:"description"`
		CompatibleRuntimes []string `json:"compatible_runtimes" mapstructure:"compatible_runtimes"`
		// SourceDir defaults to node_modules under the project directory.
		SourceDir    string `json:"source_dir" mapstructure:"source_dir"`
		MountPrefix  string `json:"mount_prefix" mapstructure:"mount_prefix"`
		BuildCommand string `json:"build_command" mapstructure:"build_command"`
	}

	// StorageConfig configures the artifact bucket.
	StorageConfig struct {
		Driver          StorageDriver `json:"driver" mapstructure:"driver"`
		Bucket          string        `json:"bucket" mapstructure:"bucket"`
		Region          string        `json:"region" mapstructure:"region"`
		Endpoint        string        `json:"endpoint" mapstructure:"endpoint"`
		Subdir          string        `json:"subdir" mapstructure:"subdir"`
		UseSSL          bool          `json:"use_ssl" mapstructure:"use_ssl"`
		PathStyle       bool          `json:"path_style" mapstructure:"path_style"`
		LocalRoot       string        `json:"local_root" mapstructure:"local_root"`
		UploadTimeout   time.Duration `json:"upload_timeout" mapstructure:"upload_timeout"`
		AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
		SecretAccessKey string        `json:"-" mapstructure:"secret_access_key"`
	}

	// CodeConfig configures function code packaging.
	CodeConfig struct {
		// Dir defaults to the project directory.
		Dir     string   `json:"dir" mapstructure:"dir"`
		Exclude []string `json:"exclude" mapstructure:"exclude"`
		// CompressionLevel is the deflate level for code archives and layer
		// bundles: -2 (Huffman only) through 9, -1 for the default.
		CompressionLevel int `json:"compression_level" mapstructure:"compression_level"`
	}

	// StateConfig locates the fingerprint state file.
	StateConfig struct {
		Path string `json:"path" mapstructure:"path"`
	}

	// LogSinkConfig enables the per-update log file when Path is set.
	LogSinkConfig struct {
		Path string `json:"path" mapstructure:"path"`
	}

	// RetryConfig tunes layer publication retries.
	RetryConfig struct {
		Attempts int           `json:"attempts" mapstructure:"attempts"`
		Backoff  time.Duration `json:"backoff" mapstructure:"backoff"`
	}
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Project:   ProjectConfig{Dir: "."},
		Targets:   []TargetConfig{},
		Layer:     LayerConfig{CompatibleRuntimes: []string{"nodejs18", "nodejs20"}, MountPrefix: layer.DefaultMountPrefix},
		Manifests: []string{},
		Storage: StorageConfig{
			Driver:        StorageDriverS3,
			Subdir:        layer.DefaultSubdir,
			UseSSL:        true,
			LocalRoot:     DefaultLocalRoot,
			UploadTimeout: layer.MinUploadTimeout,
		},
		Code:  CodeConfig{Exclude: []string{}, CompressionLevel: DefaultCompressionLevel},
		State: StateConfig{Path: hashstore.DefaultPath},
		Retry: RetryConfig{Attempts: layer.DefaultPublishAttempts, Backoff: layer.DefaultPublishBackoff},
	}
}

// String returns the string representation of the StorageDriver.
func (d StorageDriver) String() string { return string(d) }

// IsValid reports whether d is a known driver.
func (d StorageDriver) IsValid() (bool, []error) {
	switch d {
	case StorageDriverS3, StorageDriverLocal:
		return true, nil
	default:
		return false, []error{&InvalidStorageDriverError{Value: d}}
	}
}

func (e *InvalidStorageDriverError) Error() string {
	return fmt.Sprintf("invalid storage driver %q (valid: s3, local)", e.Value)
}

// Unwrap returns ErrInvalidStorageDriver for errors.Is() compatibility.
func (e *InvalidStorageDriverError) Unwrap() error { return ErrInvalidStorageDriver }

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("targets[%d]: service and function are required (got %q/%q)", e.Index, e.Target.Service, e.Target.Function)
}

// Unwrap returns ErrInvalidTarget for errors.Is() compatibility.
func (e *InvalidTargetError) Unwrap() error { return ErrInvalidTarget }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, fe := range e.FieldErrors {
		msgs[i] = fe.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and every field error, so both
// errors.Is(err, ErrInvalidConfig) and errors.As on a field error work.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// IsValid checks the fields CUE cannot: the layer name, the targets, and
// the settings the selected storage driver requires.
func (c Config) IsValid() (bool, []error) {
	var errs []error
	if strings.TrimSpace(c.Layer.Name) == "" {
		errs = append(errs, &layer.ConfigError{Field: "layer.name", Reason: "must not be empty"})
	}
	for i, t := range c.Targets {
		if strings.TrimSpace(t.Service) == "" || strings.TrimSpace(t.Function) == "" {
			errs = append(errs, &InvalidTargetError{Index: i, Target: t})
		}
	}
	if valid, fieldErrs := c.Storage.Driver.IsValid(); !valid {
		errs = append(errs, fieldErrs...)
	}
	if c.Storage.Driver == StorageDriverS3 && c.Storage.Bucket == "" {
		errs = append(errs, &layer.ConfigError{Field: "storage.bucket", Reason: "required by the s3 driver"})
	}
	if l := c.Code.CompressionLevel; l < minCompressionLevel || l > maxCompressionLevel {
		errs = append(errs, &layer.ConfigError{Field: "code.compression_level", Reason: fmt.Sprintf("%d is outside -2..9", l)})
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, &layer.ConfigError{Field: "retry.attempts", Reason: "must be at least 1"})
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

// ResolvedTargets returns the targets with unset endpoint fields taken from
// Defaults.
func (c Config) ResolvedTargets() []layer.Target {
	out := make([]layer.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		ep := t.EndpointConfig
		if ep.Endpoint == "" {
			ep.Endpoint = c.Defaults.Endpoint
		}
		if ep.Region == "" {
			ep.Region = c.Defaults.Region
		}
		if ep.AccessKeyID == "" {
			ep.AccessKeyID = c.Defaults.AccessKeyID
			ep.AccessKeySecret = c.Defaults.AccessKeySecret
		}
		out = append(out, layer.Target{
			Service:  t.Service,
			Function: t.Function,
			Endpoint: ep.Endpoint,
			Region:   ep.Region,
			Credentials: layer.Credentials{
				AccessKeyID:     ep.AccessKeyID,
				AccessKeySecret: ep.AccessKeySecret,
			},
		})
	}
	return out
}
