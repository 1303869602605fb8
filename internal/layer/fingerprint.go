// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// ComputeFingerprint hashes the given manifest files together with the project
// version. Paths are sorted and deduplicated first, so the result does not
// depend on input order. CRLF line endings are normalized to LF before hashing.
//
// The digest covers "<projectVersion>\n<content_1>\n...\n<content_n>".
func ComputeFingerprint(ctx context.Context, manifestPaths []string, projectVersion string) (Fingerprint, error) {
	if strings.TrimSpace(projectVersion) == "" {
		return "", &ConfigError{Field: "project.version", Reason: "must not be empty"}
	}
	if len(manifestPaths) == 0 {
		return "", &ConfigError{Field: "manifests", Reason: "at least one manifest path is required"}
	}

	paths := slices.Clone(manifestPaths)
	slices.Sort(paths)
	paths = slices.Compact(paths)

	h := blake3.New()
	_, _ = h.WriteString(projectVersion)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return "", &ManifestReadError{Path: p, Cause: err}
		}
		_, _ = h.WriteString("\n")
		_, _ = h.Write(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil))), nil
}
