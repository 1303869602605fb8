// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"

	"github.com/invowk/layerdeploy/internal/deploy"
	"github.com/invowk/layerdeploy/internal/layer"
)

// Explain classifies err into a catalog entry and an ActionableError with
// hints specific to the failure. It returns (nil, nil) for a nil err and a
// nil Issue for errors outside the layer engine's failure kinds.
func Explain(err error) (*Issue, *ActionableError) {
	if err == nil {
		return nil, nil
	}

	var (
		cfgErr   *layer.ConfigError
		manErr   *layer.ManifestReadError
		srcErr   *layer.SourceMissingError
		stErr    *layer.StorageError
		cpErr    *layer.ControlPlaneError
		verErr   *layer.InvalidLayerVersionError
		buildErr *layer.PrebuildError
		pkgErr   *deploy.PackageError
	)

	switch {
	case errors.As(err, &cfgErr):
		return Get(ConfigInvalidId), NewErrorContext().
			WithOperation("validate deploy request").
			WithResource(cfgErr.Field).
			WithSuggestion("Run 'layerdeploy config show' to inspect the effective settings").
			Wrap(err).Build()
	case errors.As(err, &manErr):
		return Get(ManifestReadFailedId), NewErrorContext().
			WithOperation("compute fingerprint").
			WithResource(manErr.Path).
			WithSuggestion("Check that the manifest exists or remove it from layer.manifests").
			Wrap(err).Build()
	case errors.As(err, &buildErr):
		return Get(PrebuildFailedId), NewErrorContext().
			WithOperation("run prebuild hook").
			WithResource(buildErr.Dir).
			WithSuggestion("Run the hook by hand from the project directory").
			Wrap(err).Build()
	case errors.As(err, &pkgErr):
		return Get(CodePackageFailedId), NewErrorContext().
			WithOperation("package function code").
			WithResource(pkgErr.Dir).
			WithSuggestion("Check code.dir and that the directory is readable").
			Wrap(err).Build()
	case errors.As(err, &srcErr):
		return Get(SourceMissingId), NewErrorContext().
			WithOperation("build dependency bundle").
			WithResource(srcErr.Dir).
			WithSuggestions("Install dependencies first, e.g. 'npm ci --omit=dev'",
				"Or configure layer.build_command to install them during deploy").
			Wrap(err).Build()
	case errors.As(err, &stErr):
		return Get(StorageFailedId), NewErrorContext().
			WithOperation(stErr.Op + " bundle").
			WithResource(stErr.Key).
			WithSuggestion("Verify the bucket exists and the credentials may read and write it").
			Wrap(err).Build()
	case errors.As(err, &verErr):
		return Get(InvalidLayerVersionId), NewErrorContext().
			WithOperation("attach layer version").
			WithResource(verErr.LayerName).
			WithSuggestion("Delete the broken version and re-run with --force").
			Wrap(err).Build()
	case errors.As(err, &cpErr):
		if cpErr.Op == deploy.OpUpdateFunction {
			return Get(FunctionUpdateFailedId), NewErrorContext().
				WithOperation(cpErr.Op).
				WithResource(cpErr.Resource).
				WithSuggestion("Re-run the deploy; the published layer is reused").
				Wrap(err).Build()
		}
		return Get(ControlPlaneFailedId), NewErrorContext().
			WithOperation(cpErr.Op).
			WithResource(cpErr.Resource).
			WithSuggestion("Confirm the credentials and region of the target").
			Wrap(err).Build()
	}

	var ae *ActionableError
	if errors.As(err, &ae) {
		return nil, ae
	}
	return nil, Wrap(err, "deploy", "")
}
