// SPDX-License-Identifier: MPL-2.0

package provision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/rmgprov/rmgprov/internal/manifest"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/runenv"
)

// manifestStagingDir is where COPYed manifests live inside the image.
const manifestStagingDir = "/tmp/rmgprov"

var (
	// ErrInvalidScript is the sentinel error wrapped by ScriptError.
	ErrInvalidScript = errors.New("invalid step script")
	// ErrUnknownStep is returned when a step has no rendering.
	ErrUnknownStep = errors.New("no rendering for step")
)

type (
	// Instruction is one Dockerfile instruction.
	Instruction struct {
		Command string
		Args    string
	}

	// ScriptError is returned when a RUN body is not valid POSIX shell.
	ScriptError struct {
		Step   pipeline.StepID
		Script string
		Err    error
	}

	// Renderer renders pipeline steps as Dockerfile instructions.
	Renderer struct {
		settings  pipeline.Settings
		variant   pipeline.Variant
		env       runenv.Environment
		appFormat manifest.Format
	}
)

func (e *ScriptError) Error() string {
	return fmt.Sprintf("step %s: invalid shell %q: %v", e.Step, e.Script, e.Err)
}

func (e *ScriptError) Unwrap() []error { return []error{ErrInvalidScript, e.Err} }

func (i Instruction) String() string {
	return i.Command + " " + i.Args
}

// NewRenderer creates a renderer for the plan's settings and variant.
func NewRenderer(plan *pipeline.Plan) (*Renderer, error) {
	r := &Renderer{
		settings: plan.Settings,
		variant:  plan.Variant,
		env:      runenv.FromSettings(plan.Settings),
	}
	if plan.Has(pipeline.StepAppEnv) {
		format, err := manifest.DetectFormat(plan.Settings.AppManifest)
		if err != nil {
			return nil, fmt.Errorf("application manifest: %w", err)
		}
		r.appFormat = format
	}
	return r, nil
}

// Environment returns the runtime environment baked into the image.
func (r *Renderer) Environment() runenv.Environment { return r.env }

// Step returns the instructions that apply step on top of the previous stage.
func (r *Renderer) Step(step pipeline.Step) ([]Instruction, error) {
	s := r.settings
	switch step.ID {
	case pipeline.StepToolchain:
		return r.run(step.ID, aptInstall(s.ToolchainPackages))
	case pipeline.StepFetchSource:
		clone := []string{"git", "clone", "--depth", "1"}
		if s.SourceRef != "" {
			clone = append(clone, "--branch", s.SourceRef)
		}
		clone = append(clone, s.SourceRepo, s.SourcePath)
		return r.run(step.ID, quoteWords(clone...))
	case pipeline.StepToolkitEnv:
		return r.run(step.ID,
			quoteWords("conda", "env", "update", "-n", s.EnvName, "-f", path.Join(s.SourcePath, s.ToolkitManifest)),
			condaClean)
	case pipeline.StepCompile:
		mk := []string{"conda", "run", "-n", s.EnvName, "--no-capture-output", "make", "-C", s.SourcePath}
		if target := r.variant.Target.MakeTarget(); target != "" {
			mk = append(mk, target)
		}
		return r.run(step.ID, quoteWords(mk...))
	case pipeline.StepAppEnv:
		return r.appEnv(step.ID)
	case pipeline.StepExtraLibrary:
		return r.run(step.ID, aptInstall([]string{s.ExtraLibraryPackage}))
	case pipeline.StepCopySource:
		copySource, err := copyInstruction(s.Owner, ".", s.AppDir)
		if err != nil {
			return nil, err
		}
		return []Instruction{copySource}, nil
	case pipeline.StepEntryCommand:
		cmd, err := execForm(s.EntryCommand(r.variant))
		if err != nil {
			return nil, err
		}
		out := []Instruction{{Command: "WORKDIR", Args: s.AppDir}}
		if env := r.env.Dockerfile(); env != "" {
			out = append(out, Instruction{Command: "ENV", Args: strings.TrimPrefix(env, "ENV ")})
		}
		return append(out, Instruction{Command: "CMD", Args: cmd}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStep, step.ID)
	}
}

func (r *Renderer) appEnv(id pipeline.StepID) ([]Instruction, error) {
	s := r.settings
	staged := path.Join(manifestStagingDir, path.Base(s.AppManifest))
	copyManifest, err := copyInstruction("", s.AppManifest, staged)
	if err != nil {
		return nil, err
	}

	var install []string
	switch r.appFormat {
	case manifest.FormatPipRequirements:
		install = append(install, quoteWords("conda", "run", "-n", s.EnvName, "pip", "install", "--no-cache-dir", "-r", staged))
	default:
		install = append(install, quoteWords("conda", "env", "update", "-n", s.EnvName, "-f", staged), condaClean)
	}
	install = append(install, quoteWords("rm", "-rf", manifestStagingDir))

	runs, err := r.run(id, install...)
	if err != nil {
		return nil, err
	}
	return append([]Instruction{copyManifest}, runs...), nil
}

// ContextPaths returns the paths, relative to the application tree, that the
// step's build context must contain. "." means the whole tree.
func (r *Renderer) ContextPaths(id pipeline.StepID) []string {
	switch id {
	case pipeline.StepAppEnv:
		return []string{r.settings.AppManifest}
	case pipeline.StepCopySource:
		return []string{"."}
	default:
		return nil
	}
}

// Dockerfile renders steps on top of from as a complete Dockerfile.
func (r *Renderer) Dockerfile(from string, steps []pipeline.Step) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "FROM %s\n", from)
	for _, step := range steps {
		instructions, err := r.Step(step)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, "\n# %d. %s\n", step.ID.Ordinal(), step.Title)
		for _, in := range instructions {
			sb.WriteString(in.String())
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// RenderDockerfile renders the whole plan as a single Dockerfile whose build
// context is the application tree.
func RenderDockerfile(plan *pipeline.Plan) (string, error) {
	r, err := NewRenderer(plan)
	if err != nil {
		return "", err
	}
	body, err := r.Dockerfile(plan.Settings.BaseImage, plan.Steps)
	if err != nil {
		return "", err
	}
	header := fmt.Sprintf("# Generated by rmgprov for variant %q (%s build)\n", plan.Variant.Name, plan.Variant.Target)
	return header + body, nil
}

func (r *Renderer) run(id pipeline.StepID, commands ...string) ([]Instruction, error) {
	script, err := formatScript(strings.Join(commands, " && "))
	if err != nil {
		return nil, &ScriptError{Step: id, Script: strings.Join(commands, " && "), Err: err}
	}
	return []Instruction{{Command: "RUN", Args: script}}, nil
}

const (
	aptCleanup = "rm -rf /var/lib/apt/lists/*"
	condaClean = "conda clean --all --yes"
)

func aptInstall(packages []string) string {
	words := append([]string{"apt-get", "install", "-y", "--no-install-recommends"}, packages...)
	return strings.Join([]string{"apt-get update", quoteWords(words...), aptCleanup}, " && ")
}

// quoteWords joins words into one shell command, quoting each as needed.
func quoteWords(words ...string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		q, err := syntax.Quote(w, syntax.LangPOSIX)
		if err != nil {
			// Unquotable input (e.g. NUL bytes) is left as is and rejected by the parser.
			q = w
		}
		quoted[i] = q
	}
	return strings.Join(quoted, " ")
}

// formatScript parses a POSIX shell script and prints it on a single line.
func formatScript(script string) (string, error) {
	f, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(script), "")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := syntax.NewPrinter(syntax.SingleLine(true)).Print(&buf, f); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// copyInstruction renders COPY in JSON form so paths may contain spaces.
func copyInstruction(owner, src, dst string) (Instruction, error) {
	paths, err := execForm([]string{src, dst})
	if err != nil {
		return Instruction{}, err
	}
	if owner != "" {
		paths = "--chown=" + owner + " " + paths
	}
	return Instruction{Command: "COPY", Args: paths}, nil
}

// execForm renders a command in Dockerfile JSON exec form.
func execForm(argv []string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(argv); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
