// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies a catalog entry.
type Id int

const (
	ConfigInvalidId Id = iota + 1
	ManifestReadFailedId
	SourceMissingId
	StorageFailedId
	ControlPlaneFailedId
	InvalidLayerVersionId
	PrebuildFailedId
	FunctionUpdateFailedId
	CodePackageFailedId
)

type (
	// MarkdownMsg is the Markdown body of an issue.
	MarkdownMsg string

	// HttpLink is a documentation or external reference.
	HttpLink string

	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		docLinks []HttpLink
		extLinks []HttpLink
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue for the terminal using the glamour style at
// stylePath ("" selects the default style).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md += "\n\n## See also\n"
		for _, link := range i.docLinks {
			md += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			md += "- <" + string(link) + ">\n"
		}
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	configInvalidIssue = &Issue{
		id: ConfigInvalidId,
		mdMsg: `
# Invalid deploy configuration

A required setting is missing or malformed.

## Things you can try
- Print the effective configuration:
~~~
$ layerdeploy config show
~~~
- Generate a fresh configuration file and fill in the layer name and targets:
~~~
$ layerdeploy config init
~~~
- Make sure ` + "`package.json`" + ` has a valid semver ` + "`version`" + `, or pass ` + "`--project-version`" + `.`,
	}

	manifestReadFailedIssue = &Issue{
		id: ManifestReadFailedId,
		mdMsg: `
# Failed to read a dependency manifest

The fingerprint covers every manifest listed in ` + "`layer.manifests`" + `, so all of
them must exist and be readable.

## Things you can try
- Check that the lockfile was committed and is present in the working copy.
- Remove stale entries from ` + "`layer.manifests`" + ` in your configuration.`,
	}

	sourceMissingIssue = &Issue{
		id: SourceMissingId,
		mdMsg: `
# Dependency directory not found

No bundle exists yet for the current fingerprint, and the directory it would be
built from is missing.

## Things you can try
- Install dependencies before deploying:
~~~
$ npm ci --omit=dev
~~~
- Or let the deploy do it with a prebuild hook:
~~~cue
layer: build_command: "npm ci --omit=dev"
~~~`,
	}

	storageFailedIssue = &Issue{
		id: StorageFailedId,
		mdMsg: `
# Object storage request failed

The bundle could not be checked for or uploaded to the artifact bucket.
Nothing was published and no function was modified.

## Things you can try
- Verify the bucket exists and the access key may read and write to it.
- Check ` + "`storage.endpoint`" + ` and ` + "`storage.region`" + `.
- Raise ` + "`storage.upload_timeout`" + ` for large dependency trees on slow links.`,
	}

	controlPlaneFailedIssue = &Issue{
		id: ControlPlaneFailedId,
		mdMsg: `
# Control plane request failed

A call to read functions, list layer versions, or publish a version failed.
Layer publication is retried before giving up.

## Things you can try
- Confirm the credentials for the target region are valid.
- Check that every target service and function exists.
- Re-run the deploy; published bundles and layer versions are reused.`,
	}

	invalidLayerVersionIssue = &Issue{
		id: InvalidLayerVersionId,
		mdMsg: `
# Layer version is unusable

The control plane returned a layer version without a name or reference, so it
cannot be attached to any function. No function was modified.

## Things you can try
- Inspect the layer in the console and delete the broken version.
- Re-run with ` + "`--force`" + ` once the control plane is healthy.`,
	}

	prebuildFailedIssue = &Issue{
		id: PrebuildFailedId,
		mdMsg: `
# Prebuild hook failed

The command configured in ` + "`layer.build_command`" + ` exited with an error, so no bundle
was built.

## Things you can try
- Run the hook by hand from the project directory to see its output.
- Re-run with ` + "`--verbose`" + ` to stream the hook output.`,
	}

	functionUpdateFailedIssue = &Issue{
		id: FunctionUpdateFailedId,
		mdMsg: `
# Function update failed

The layer was published but a function could not be updated. Functions before
it in the batch were updated; their fingerprints were not recorded, so the next
run revisits them.

## Things you can try
- Check the function's memory and runtime limits against the new code size.
- Re-run the deploy; it resumes without republishing the layer.`,
	}

	codePackageFailedIssue = &Issue{
		id: CodePackageFailedId,
		mdMsg: `
# Failed to package function code

The code directory is compressed once per deploy and sent to every target.
No function was modified.

## Things you can try
- Check that ` + "`code.dir`" + ` points at an existing, readable directory.
- Add large generated paths to ` + "`code.exclude`" + `.`,
	}

	issues = map[Id]*Issue{
		configInvalidIssue.Id():        configInvalidIssue,
		manifestReadFailedIssue.Id():   manifestReadFailedIssue,
		sourceMissingIssue.Id():        sourceMissingIssue,
		storageFailedIssue.Id():        storageFailedIssue,
		controlPlaneFailedIssue.Id():   controlPlaneFailedIssue,
		invalidLayerVersionIssue.Id():  invalidLayerVersionIssue,
		prebuildFailedIssue.Id():       prebuildFailedIssue,
		functionUpdateFailedIssue.Id(): functionUpdateFailedIssue,
		codePackageFailedIssue.Id():    codePackageFailedIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	out := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		out = append(out, i)
	}
	slices.SortFunc(out, func(a, b *Issue) int { return int(a.id - b.id) })
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
