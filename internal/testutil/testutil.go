// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// MustSetenv sets the environment variable key to value.
// It returns a cleanup function that restores the original value (or unsets it).
// The test fails immediately if the operation fails.
func MustSetenv(t testing.TB, key, value string) func() {
	t.Helper()
	originalValue, hadValue := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	return func() {
		if hadValue {
			if err := os.Setenv(key, originalValue); err != nil {
				t.Errorf("failed to restore env %s: %v", key, err)
			}
		} else {
			if err := os.Unsetenv(key); err != nil {
				t.Errorf("failed to unset env %s: %v", key, err)
			}
		}
	}
}

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes content to path, creating parent directories.
func MustWriteFile(t testing.TB, path, content string) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteFiles writes each slash-separated relative name in files under root
// and returns root.
func WriteFiles(t testing.TB, root string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		MustWriteFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}
	return root
}

// NodeProject writes a minimal Node.js project into a temporary directory:
// package.json with the given version, a lock file, and one installed
// dependency under node_modules. It returns the project directory.
func NodeProject(t testing.TB, version string) string {
	t.Helper()
	return WriteFiles(t, t.TempDir(), map[string]string{
		"package.json":                   `{"name":"app","version":"` + version + `","dependencies":{"left-pad":"^1.3.0"}}`,
		"package-lock.json":              `{"lockfileVersion":3}`,
		"index.js":                       "exports.handler = async () => 'ok';\n",
		"node_modules/left-pad/index.js": "module.exports = (s) => s;\n",
	})
}
