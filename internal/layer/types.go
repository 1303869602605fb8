// SPDX-License-Identifier: MPL-2.0

package layer

import "fmt"

// shortFingerprintLen is the number of hex characters shown in log output.
const shortFingerprintLen = 12

type (
	// Fingerprint is the lowercase hex BLAKE3-256 digest of the dependency
	// manifests plus the project version.
	Fingerprint string

	// Credentials identify the account a target is deployed with.
	Credentials struct {
		AccessKeyID     string
		AccessKeySecret string
	}

	// Target is one deployable function, addressed by service and function name.
	// Endpoint, Region and Credentials form its connection identity.
	Target struct {
		Service     string
		Function    string
		Endpoint    string
		Region      string
		Credentials Credentials
	}

	// ArtifactLocation points at the dependency bundle in the object store.
	ArtifactLocation struct {
		Bucket   string
		Key      string
		FileName string
		// URL is only known when the bundle was uploaded during this run.
		URL string
		// Reused is true when the bundle already existed and no upload happened.
		Reused bool
	}

	// LayerVersion is an immutable, published version of a layer.
	LayerVersion struct {
		Name        string
		Version     int
		Description string
		// Ref is the opaque reference string targets use to attach the layer.
		Ref string
	}

	// Update is the reconciliation result for one target.
	Update struct {
		Target Target
		// Changed reports whether the target's recorded fingerprint differed.
		Changed bool
		// Layers is the spliced reference list; nil when Changed is false.
		Layers []string
	}

	// FunctionUpdate is the control plane's answer to a function update.
	FunctionUpdate struct {
		StatusCode int
		CodeSize   int64
		CPU        float64
		MemorySize int
	}
)

// String returns the fingerprint as a string.
func (f Fingerprint) String() string { return string(f) }

// Short returns an abbreviated fingerprint for log output.
func (f Fingerprint) Short() string {
	if len(f) <= shortFingerprintLen {
		return string(f)
	}
	return string(f[:shortFingerprintLen])
}

// Key returns the persistence key of the target: "<service>-<function>".
func (t Target) Key() string {
	return t.Service + "-" + t.Function
}

// String returns "<service>/<function>" for display.
func (t Target) String() string {
	return fmt.Sprintf("%s/%s", t.Service, t.Function)
}

// ChangedCount returns how many updates require a new layer reference list.
func ChangedCount(updates []Update) int {
	n := 0
	for i := range updates {
		if updates[i].Changed {
			n++
		}
	}
	return n
}
