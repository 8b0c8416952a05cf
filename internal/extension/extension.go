// Package extension enables and disables the Jovian Jupyter extension.
package extension

import (
	"context"
	"errors"

	"go.uber.org/multierr"

	"github.com/jovian-ai/jovian-cli/internal/shell"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

// ErrJupyterNotFound is returned when jupyter is not on PATH.
var ErrJupyterNotFound = errors.New("jupyter is not installed or not on PATH")

// Runner runs external commands.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, argv ...string) (*shell.Result, error)
}

// Steps returns the jupyter invocations for enabling or disabling the
// extension, without the leading "jupyter".
func Steps(enable bool) [][]string {
	if enable {
		return [][]string{
			{"nbextension", "install", "--sys-prefix", "--py", "jovian"},
			{"nbextension", "enable", "--sys-prefix", "--py", "jovian"},
			{"serverextension", "enable", "--sys-prefix", "--py", "jovian"},
		}
	}
	return [][]string{
		{"nbextension", "disable", "--sys-prefix", "--py", "jovian"},
		{"serverextension", "disable", "--sys-prefix", "--py", "jovian"},
	}
}

// Installer toggles the extension.
type Installer struct {
	Runner  Runner
	Printer *ui.Printer
}

// Setup enables or disables the extension. Every step is attempted; the
// returned error combines the failures and the first one decides the exit
// status.
func (i *Installer) Setup(ctx context.Context, enable bool) error {
	jupyter, err := i.Runner.LookPath("jupyter")
	if err != nil {
		return ErrJupyterNotFound
	}

	if enable {
		i.Printer.Log("Enabling the Jovian Jupyter extension...")
	} else {
		i.Printer.Log("Disabling the Jovian Jupyter extension...")
	}

	var errs error
	var first error
	for _, step := range Steps(enable) {
		argv := append([]string{jupyter}, step...)
		if _, err := i.Runner.Run(ctx, argv...); err != nil {
			if first == nil {
				first = err
			}
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return &setupError{first: first, all: errs}
	}

	if enable {
		i.Printer.Log("Extension enabled. Restart Jupyter to load it.")
	} else {
		i.Printer.Log("Extension disabled.")
	}
	return nil
}

type setupError struct {
	first error
	all   error
}

func (e *setupError) Error() string {
	return e.all.Error()
}

// Unwrap exposes the first failure so its exit status is found by errors.As.
func (e *setupError) Unwrap() error {
	return e.first
}

// Errors returns every failed step.
func (e *setupError) Errors() []error {
	return multierr.Errors(e.all)
}
