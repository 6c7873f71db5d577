// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

// Id identifies an issue guide in the catalog.
type Id int

const (
	ContainerEngineNotFoundId Id = iota + 1
	ConfigLoadFailedId
	ManifestNotFoundId
	StepOrderViolationId
	StepFailedId
	VerificationFailedId
	MissingRuntimeVariableId
)

type (
	// MarkdownMsg is the Markdown body of an issue guide.
	MarkdownMsg string

	// HttpLink is a documentation or external reference link.
	HttpLink string

	// Issue is a Markdown troubleshooting guide for a known failure.
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

// Render renders the guide for the terminal. stylePath is a glamour style
// name ("dark", "light", "notty") or a path to a JSON style file.
func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.docLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# No container engine found

Provisioning builds images with Podman or Docker, and neither could be reached.

## Things you can try
- Install Podman or Docker and make sure the binary is on your PATH.
- For Docker, check that the daemon is running:
~~~
$ docker version
~~~
- Pick an engine explicitly:
~~~
$ rmgprov build --engine docker
~~~`,
		docLinks: []HttpLink{"https://podman.io/docs/installation", "https://docs.docker.com/engine/install/"},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded

The configuration file is not valid CUE or does not match the expected schema.

## Things you can try
- Print the effective defaults and compare:
~~~
$ rmgprov config show
~~~
- Write a fresh configuration file:
~~~
$ rmgprov config init
~~~`,
		docLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	manifestNotFoundIssue = &Issue{
		id: ManifestNotFoundId,
		mdMsg: `
# Package manifest not found

The application environment step needs its manifest on disk before the build starts.

## Things you can try
- Check ` + "`pipeline.app_manifest`" + ` in your configuration.
- Run from the application directory, or pass ` + "`--context`" + `.`,
	}

	stepOrderViolationIssue = &Issue{
		id: StepOrderViolationId,
		mdMsg: `
# Provisioning steps are out of order

Every step relies on what the earlier steps left in the image. A step was
placed before the step that provides what it needs.

## Things you can try
- Inspect the ordered plan:
~~~
$ rmgprov plan
~~~
- Remove any custom step ordering from your configuration.`,
	}

	stepFailedIssue = &Issue{
		id: StepFailedId,
		mdMsg: `
# A provisioning step failed

The pipeline stops at the first failing step and no partial image is kept.
The output above is the failing tool's own error text.

## Things you can try
- Re-run with ` + "`--verbose`" + ` to see the full build output.
- Network errors during the toolchain or fetch steps are usually transient;
  re-run the whole build.
- Compile errors usually mean the toolkit manifest and the source ref disagree.`,
		extLinks: []HttpLink{"https://reactionmechanismgenerator.github.io/RMG-Py/users/rmg/installation/index.html"},
	}

	verificationFailedIssue = &Issue{
		id: VerificationFailedId,
		mdMsg: `
# The image does not satisfy its manifests

One or more declared packages are missing from the image or installed at a
version outside the declared constraint.

## Things you can try
- Rebuild without the engine cache:
~~~
$ rmgprov build --no-cache
~~~
- Compare against the last known-good lockfile:
~~~
$ rmgprov lock --check
~~~`,
	}

	missingRuntimeVariableIssue = &Issue{
		id: MissingRuntimeVariableId,
		mdMsg: `
# A required environment variable is not set

The entry script reads its settings from the environment.

## Things you can try
- Export the variable in your shell, or
- put it in a dotenv file and pass it:
~~~
$ rmgprov run --env-file .env
~~~`,
	}

	issues = map[Id]*Issue{
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		manifestNotFoundIssue.Id():        manifestNotFoundIssue,
		stepOrderViolationIssue.Id():      stepOrderViolationIssue,
		stepFailedIssue.Id():              stepFailedIssue,
		verificationFailedIssue.Id():      verificationFailedIssue,
		missingRuntimeVariableIssue.Id():  missingRuntimeVariableIssue,
	}
)

// Values returns every issue in the catalog ordered by Id.
func Values() []*Issue {
	values := make([]*Issue, 0, len(issues))
	for _, i := range issues {
		values = append(values, i)
	}
	slices.SortFunc(values, func(a, b *Issue) int { return int(a.id) - int(b.id) })
	return values
}

// Get returns the issue with the given id, or nil.
func Get(id Id) *Issue {
	return issues[id]
}
