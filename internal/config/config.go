// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/invowk/layerdeploy/internal/cueutil"
	"github.com/invowk/layerdeploy/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "layerdeploy"
	// ConfigFileName is the config file name without extension.
	ConfigFileName = "layerdeploy"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "LAYERDEPLOY"
)

//go:embed config_schema.cue
var configSchema []byte

// ErrConfigExists is returned by WriteFile when the target file exists.
var ErrConfigExists = errors.New("config file already exists")

// secretEnv binds credential keys to their short environment names.
var secretEnv = map[string]string{
	"defaults.access_key_id":     EnvPrefix + "_ACCESS_KEY_ID",
	"defaults.access_key_secret": EnvPrefix + "_ACCESS_KEY_SECRET",
}

// DefaultPath returns the config file looked up in dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
}

// Load resolves the configuration and returns it with the path of the file
// it was read from ("" when only defaults and environment applied). The
// result is not validated; call Config.IsValid.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	if err := bindEnv(v); err != nil {
		return nil, "", err
	}

	path := opts.ConfigFilePath
	if path != "" {
		if !fileExists(path) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Verify the --config path").
				WithSuggestion("Run 'layerdeploy config init' to create a configuration file").
				Wrap(fmt.Errorf("config file not found: %s", path)).
				BuildError()
		}
	} else {
		dir := opts.Dir
		if dir == "" {
			dir = "."
		}
		if candidate := DefaultPath(dir); fileExists(candidate) {
			path = candidate
		}
	}

	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare it with the output of 'layerdeploy config init --stdout'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Project.Dir == "." && opts.Dir != "" {
		cfg.Project.Dir = opts.Dir
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("project.dir", d.Project.Dir)
	v.SetDefault("project.version", d.Project.Version)
	v.SetDefault("targets", d.Targets)
	v.SetDefault("defaults.endpoint", d.Defaults.Endpoint)
	v.SetDefault("defaults.region", d.Defaults.Region)
	v.SetDefault("defaults.access_key_id", d.Defaults.AccessKeyID)
	v.SetDefault("defaults.access_key_secret", d.Defaults.AccessKeySecret)
	v.SetDefault("layer.name", d.Layer.Name)
	v.SetDefault("layer.description", d.Layer.Description)
	v.SetDefault("layer.compatible_runtimes", d.Layer.CompatibleRuntimes)
	v.SetDefault("layer.source_dir", d.Layer.SourceDir)
	v.SetDefault("layer.mount_prefix", d.Layer.MountPrefix)
	v.SetDefault("layer.build_command", d.Layer.BuildCommand)
	v.SetDefault("manifests", d.Manifests)
	v.SetDefault("storage.driver", string(d.Storage.Driver))
	v.SetDefault("storage.bucket", d.Storage.Bucket)
	v.SetDefault("storage.region", d.Storage.Region)
	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.subdir", d.Storage.Subdir)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)
	v.SetDefault("storage.path_style", d.Storage.PathStyle)
	v.SetDefault("storage.local_root", d.Storage.LocalRoot)
	v.SetDefault("storage.upload_timeout", d.Storage.UploadTimeout)
	v.SetDefault("storage.access_key_id", d.Storage.AccessKeyID)
	v.SetDefault("storage.secret_access_key", d.Storage.SecretAccessKey)
	v.SetDefault("code.dir", d.Code.Dir)
	v.SetDefault("code.exclude", d.Code.Exclude)
	v.SetDefault("code.compression_level", d.Code.CompressionLevel)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("log_sink.path", d.LogSink.Path)
	v.SetDefault("retry.attempts", d.Retry.Attempts)
	v.SetDefault("retry.backoff", d.Retry.Backoff)
}

// bindEnv maps nested keys to LAYERDEPLOY_<SECTION>_<KEY>, plus the short
// credential names in secretEnv.
func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range secretEnv {
		long := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env, long); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

// loadCUEIntoViper validates the file against #Config and merges it over
// the defaults already set on v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	m, err := cueutil.DecodeMap(configSchema, data, "#Config", cueutil.WithFilename(path), cueutil.WithConcrete(true))
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteFile writes cfg as CUE to path. An existing file is replaced only
// when overwrite is set.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a CUE document accepted by the schema. Secrets
// and empty optional strings are left out.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// layerdeploy configuration\n")
	sb.WriteString("// Credentials are read from LAYERDEPLOY_ACCESS_KEY_ID and LAYERDEPLOY_ACCESS_KEY_SECRET.\n\n")

	sb.WriteString("project: {\n")
	writeString(&sb, 1, "dir", cfg.Project.Dir)
	writeString(&sb, 1, "version", cfg.Project.Version)
	sb.WriteString("}\n")

	if cfg.Defaults.Endpoint != "" || cfg.Defaults.Region != "" {
		sb.WriteString("\ndefaults: {\n")
		writeString(&sb, 1, "endpoint", cfg.Defaults.Endpoint)
		writeString(&sb, 1, "region", cfg.Defaults.Region)
		sb.WriteString("}\n")
	}

	sb.WriteString("\ntargets: [\n")
	for _, t := range cfg.Targets {
		fmt.Fprintf(&sb, "\t{service: %q, function: %q", t.Service, t.Function)
		if t.Endpoint != "" {
			fmt.Fprintf(&sb, ", endpoint: %q", t.Endpoint)
		}
		if t.Region != "" {
			fmt.Fprintf(&sb, ", region: %q", t.Region)
		}
		sb.WriteString("},\n")
	}
	sb.WriteString("]\n")

	sb.WriteString("\nlayer: {\n")
	writeString(&sb, 1, "name", cfg.Layer.Name)
	writeString(&sb, 1, "description", cfg.Layer.Description)
	if len(cfg.Layer.CompatibleRuntimes) > 0 {
		fmt.Fprintf(&sb, "\tcompatible_runtimes: %s\n", cueList(cfg.Layer.CompatibleRuntimes))
	}
	writeString(&sb, 1, "source_dir", cfg.Layer.SourceDir)
	writeString(&sb, 1, "mount_prefix", cfg.Layer.MountPrefix)
	writeString(&sb, 1, "build_command", cfg.Layer.BuildCommand)
	sb.WriteString("}\n")

	if len(cfg.Manifests) > 0 {
		fmt.Fprintf(&sb, "\nmanifests: %s\n", cueList(cfg.Manifests))
	}

	sb.WriteString("\nstorage: {\n")
	writeString(&sb, 1, "driver", string(cfg.Storage.Driver))
	writeString(&sb, 1, "bucket", cfg.Storage.Bucket)
	writeString(&sb, 1, "region", cfg.Storage.Region)
	writeString(&sb, 1, "endpoint", cfg.Storage.Endpoint)
	writeString(&sb, 1, "subdir", cfg.Storage.Subdir)
	fmt.Fprintf(&sb, "\tuse_ssl: %v\n", cfg.Storage.UseSSL)
	fmt.Fprintf(&sb, "\tpath_style: %v\n", cfg.Storage.PathStyle)
	writeString(&sb, 1, "local_root", cfg.Storage.LocalRoot)
	if cfg.Storage.UploadTimeout > 0 {
		fmt.Fprintf(&sb, "\tupload_timeout: %q\n", cfg.Storage.UploadTimeout.String())
	}
	sb.WriteString("}\n")

	customLevel := cfg.Code.CompressionLevel != DefaultCompressionLevel
	if cfg.Code.Dir != "" || len(cfg.Code.Exclude) > 0 || customLevel {
		sb.WriteString("\ncode: {\n")
		writeString(&sb, 1, "dir", cfg.Code.Dir)
		if len(cfg.Code.Exclude) > 0 {
			fmt.Fprintf(&sb, "\texclude: %s\n", cueList(cfg.Code.Exclude))
		}
		if customLevel {
			fmt.Fprintf(&sb, "\tcompression_level: %d\n", cfg.Code.CompressionLevel)
		}
		sb.WriteString("}\n")
	}

	if cfg.State.Path != "" {
		fmt.Fprintf(&sb, "\nstate: path: %q\n", cfg.State.Path)
	}
	if cfg.LogSink.Path != "" {
		fmt.Fprintf(&sb, "\nlog_sink: path: %q\n", cfg.LogSink.Path)
	}

	sb.WriteString("\nretry: {\n")
	fmt.Fprintf(&sb, "\tattempts: %d\n", cfg.Retry.Attempts)
	if cfg.Retry.Backoff > 0 {
		fmt.Fprintf(&sb, "\tbackoff: %q\n", cfg.Retry.Backoff.String())
	}
	sb.WriteString("}\n")

	return sb.String()
}

func writeString(sb *strings.Builder, indent int, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s%s: %q\n", strings.Repeat("\t", indent), key, value)
}

func cueList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
