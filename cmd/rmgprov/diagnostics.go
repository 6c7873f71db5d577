// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rmgprov/rmgprov/internal/config"
	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/issue"
	"github.com/rmgprov/rmgprov/internal/pipeline"
	"github.com/rmgprov/rmgprov/internal/runenv"
)

// fail prints what the user can do about err and converts it to an exit
// status of 1. Every failure maps to the same status.
func (a *App) fail(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) && len(ae.Suggestions) > 0 {
		for _, s := range ae.Suggestions {
			fmt.Fprintln(a.stderr, SubtitleStyle.Render("  • "+s))
		}
	}

	var out pipeline.ToolOutputError
	if errors.As(err, &out) && out.ToolOutput() != "" {
		fmt.Fprintln(a.stderr, outputBoxStyle.Render(strings.TrimRight(out.ToolOutput(), "\n")))
	}

	if id := guideFor(err); id != 0 {
		a.renderGuide(id)
	}
	return &ExitError{Code: 1, Err: err}
}

// guideFor picks the troubleshooting guide for a failure, or 0.
func guideFor(err error) issue.Id {
	switch {
	case errors.Is(err, container.ErrNoEngineAvailable):
		return issue.ContainerEngineNotFoundId
	case errors.Is(err, config.ErrConfigNotFound), errors.Is(err, config.ErrInvalidConfig):
		return issue.ConfigLoadFailedId
	case errors.Is(err, pipeline.ErrOrderViolation):
		return issue.StepOrderViolationId
	case errors.Is(err, pipeline.ErrStepFailed):
		return issue.StepFailedId
	case errors.Is(err, runenv.ErrMissingVariable):
		return issue.MissingRuntimeVariableId
	case errors.Is(err, errVerificationFailed):
		return issue.VerificationFailedId
	case errors.Is(err, fs.ErrNotExist) && strings.Contains(err.Error(), "manifest"):
		return issue.ManifestNotFoundId
	default:
		return 0
	}
}

func (a *App) renderGuide(id issue.Id) {
	guide := issue.Get(id)
	if guide == nil {
		return
	}
	rendered, err := guide.Render(a.guideStyle())
	if err != nil {
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

// guideStyle renders plain text unless stderr is a terminal.
func (a *App) guideStyle() string {
	if f, ok := a.stderr.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return "dark"
	}
	return "notty"
}
