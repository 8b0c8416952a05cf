// Package ui prints user-facing messages and asks the user questions.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

const prefix = "[jovian]"

// Printer writes "[jovian]"-prefixed progress and error messages.
type Printer struct {
	out    io.Writer
	errOut io.Writer

	tag  *color.Color
	err  *color.Color
	warn *color.Color
	dim  *color.Color
}

// NewPrinter returns a Printer writing progress to out and errors to errOut.
func NewPrinter(out, errOut io.Writer) *Printer {
	return &Printer{
		out:    out,
		errOut: errOut,
		tag:    color.New(color.FgBlue, color.Bold),
		err:    color.New(color.FgRed),
		warn:   color.New(color.FgYellow),
		dim:    color.New(color.FgHiBlack),
	}
}

// Stdio returns a Printer on the process's standard streams.
func Stdio() *Printer {
	return NewPrinter(os.Stdout, os.Stderr)
}

// DisableColor turns off ANSI colors for every Printer.
func DisableColor() {
	color.NoColor = true
}

// Log prints a progress message.
func (p *Printer) Log(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.tag.Sprint(prefix), fmt.Sprintf(format, args...))
}

// Warn prints a warning to the error stream.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintf(p.errOut, "%s %s\n", p.tag.Sprint(prefix), p.warn.Sprintf(format, args...))
}

// Error prints an error to the error stream.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintf(p.errOut, "%s %s\n", p.tag.Sprint(prefix), p.err.Sprint("Error: "+fmt.Sprintf(format, args...)))
}

// Hint prints a de-emphasized line without the prefix, e.g. a command to run.
func (p *Printer) Hint(format string, args ...any) {
	fmt.Fprintln(p.out, p.dim.Sprintf(format, args...))
}
