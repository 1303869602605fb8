// SPDX-License-Identifier: MPL-2.0

// Package project reads the Node.js project being deployed: its package.json
// version and the set of dependency manifests that feed the fingerprint.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"golang.org/x/mod/semver"

	"github.com/invowk/layerdeploy/internal/layer"
)

// PackageFile is the project's package manifest file name.
const PackageFile = "package.json"

// lockFiles are the dependency lock files picked up by DefaultManifests, in
// the order they are checked.
var lockFiles = []string{"package-lock.json", "npm-shrinkwrap.json", "yarn.lock", "pnpm-lock.yaml"}

// Package is the subset of package.json the deployer reads.
type Package struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// ReadPackage parses dir/package.json. Comments and trailing commas are
// tolerated.
func ReadPackage(dir string) (*Package, error) {
	p := filepath.Join(dir, PackageFile)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, &layer.ManifestReadError{Path: p, Cause: err}
	}
	var pkg Package
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return nil, &layer.ManifestReadError{Path: p, Cause: fmt.Errorf("parsing: %w", err)}
	}
	return &pkg, nil
}

// ResolveVersion returns override when set, otherwise the version field of
// dir/package.json, which must be a valid semantic version.
func ResolveVersion(dir, override string) (string, error) {
	if v := strings.TrimSpace(override); v != "" {
		return v, nil
	}
	pkg, err := ReadPackage(dir)
	if err != nil {
		return "", err
	}
	if pkg.Version == "" {
		return "", &layer.ConfigError{Field: "project.version", Reason: PackageFile + " has no version and none is configured"}
	}
	if !ValidVersion(pkg.Version) {
		return "", &layer.ConfigError{Field: "project.version", Reason: fmt.Sprintf("%q is not a semantic version", pkg.Version)}
	}
	return pkg.Version, nil
}

// ValidVersion reports whether v is a semantic version, with or without a
// leading "v".
func ValidVersion(v string) bool {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.IsValid(v)
}

// DefaultManifests returns package.json plus every lock file present in dir.
func DefaultManifests(dir string) ([]string, error) {
	out := []string{filepath.Join(dir, PackageFile)}
	for _, name := range lockFiles {
		p := filepath.Join(dir, name)
		_, err := os.Stat(p)
		switch {
		case err == nil:
			out = append(out, p)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, &layer.ManifestReadError{Path: p, Cause: err}
		}
	}
	return out, nil
}

// ResolvePaths makes every relative path absolute against dir.
func ResolvePaths(dir string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if filepath.IsAbs(p) {
			out[i] = filepath.Clean(p)
			continue
		}
		out[i] = filepath.Join(dir, p)
	}
	return out
}
