// Package commands maps a jovian command line onto one CLI operation.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jovian-ai/jovian-cli/internal/logging"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

// Version information set at build time
var Version = "0.1.0"

// Exit codes
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// maxSuggestDistance bounds the edit distance of "did you mean" hints.
const maxSuggestDistance = 2

const rootLong = `Keep track of your Jupyter notebooks using Jovian.

Use within your Jupyter notebooks:

    [1] import jovian

    [2] jovian.commit()

Or try out a demo with:

    $ jovian clone aakashns/jovian-tutorial`

// Operations are the actions the router delegates to.
type Operations interface {
	Configure(ctx context.Context) error
	ResetConfig(ctx context.Context) error
	Install(ctx context.Context, envName string) error
	Activate(ctx context.Context) error
	Clone(ctx context.Context, id, version string) error
	Pull(ctx context.Context, id, version string) error
	AddSlack(ctx context.Context) error
	SetupExtension(ctx context.Context, enable bool) error
}

// Outcome is the result of one dispatch.
type Outcome struct {
	Code    int
	Message string
}

// Router parses command lines and runs the selected operation. It keeps no
// state between dispatches.
type Router struct {
	ops    Operations
	out    io.Writer
	errOut io.Writer
}

// NewRouter returns a router delegating to ops. Usage and version text go
// to out, errors to errOut.
func NewRouter(ops Operations, out, errOut io.Writer) *Router {
	return &Router{ops: ops, out: out, errOut: errOut}
}

// delegateError marks an error returned by an operation, as opposed to one
// found while parsing the command line.
type delegateError struct {
	err error
}

func (e *delegateError) Error() string { return e.err.Error() }
func (e *delegateError) Unwrap() error { return e.err }

func delegated(err error) error {
	if err == nil {
		return nil
	}
	return &delegateError{err: err}
}

type unknownCommandError struct {
	name string
}

func (e *unknownCommandError) Error() string {
	return fmt.Sprintf("No such command '%s'.", e.name)
}

// Dispatch runs the command line args, without the program name.
func (r *Router) Dispatch(ctx context.Context, args []string) (outcome Outcome) {
	defer func() {
		if p := recover(); p != nil {
			logging.Error().Interface("panic", p).Strs("args", args).Msg("dispatch panicked")
			ui.NewPrinter(r.out, r.errOut).Error("%v", p)
			outcome = Outcome{Code: ExitFailure, Message: fmt.Sprint(p)}
		}
	}()

	root := r.newRoot()
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return Outcome{Code: ExitOK}
	}

	var de *delegateError
	if errors.As(err, &de) {
		return r.failure(de.err)
	}

	if cmd == nil {
		cmd = root
	}
	return r.usageFailure(root, cmd, err)
}

func (r *Router) failure(err error) Outcome {
	code := ExitFailure
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) && coded.ExitCode() != 0 {
		code = coded.ExitCode()
	}
	logging.Debug().Err(err).Int("code", code).Msg("operation failed")

	ui.NewPrinter(r.out, r.errOut).Error("%s", err)
	return Outcome{Code: code, Message: err.Error()}
}

func (r *Router) usageFailure(root, cmd *cobra.Command, err error) Outcome {
	p := ui.NewPrinter(r.errOut, r.errOut)
	p.Error("%s", err)

	var unknown *unknownCommandError
	if errors.As(err, &unknown) {
		if s := suggest(unknown.name); s != "" {
			p.Hint("Did you mean '%s'?", s)
		}
		cmd = root
	}
	fmt.Fprintln(r.errOut)
	displayUsage(r.errOut, cmd)
	return Outcome{Code: ExitUsage, Message: err.Error()}
}

// globalFlags are accepted by every command.
type globalFlags struct {
	logLevel  string
	printLogs bool
	noColor   bool
}

func (g *globalFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&g.logLevel, "log-level", "WARN", "Log level (DEBUG|INFO|WARN|ERROR)")
	fs.BoolVar(&g.printLogs, "print-logs", false, "Print logs to stderr")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
}

func (g *globalFlags) apply() {
	logging.Setup(g.logLevel, g.printLogs)
	if g.noColor {
		ui.DisableColor()
	}
}

// newRoot builds a fresh command tree from the command table.
func (r *Router) newRoot() *cobra.Command {
	var showVersion bool
	globals := &globalFlags{}

	root := &cobra.Command{
		Use:   "jovian",
		Short: "Keep track of your Jupyter notebooks using Jovian",
		Long:  rootLong,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &unknownCommandError{name: args[0]}
			}
			return nil
		},
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			globals.apply()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				displayVersion(cmd.OutOrStdout())
				return nil
			}
			displayUsage(cmd.OutOrStdout(), cmd)
			return nil
		},
	}
	root.SetOut(r.out)
	root.SetErr(r.errOut)
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		displayUsage(cmd.OutOrStdout(), cmd)
	})

	root.Flags().BoolVar(&showVersion, "version", false, "Show the version and exit")
	globals.bind(root.PersistentFlags())
	root.InitDefaultHelpFlag()

	for _, def := range commandTable {
		c := def.build(r.ops)
		if def.name == "help" {
			root.SetHelpCommand(c)
			continue
		}
		root.AddCommand(c)
		c.InitDefaultHelpFlag()
	}
	return root
}

// displayUsage prints the description and usage of cmd.
func displayUsage(w io.Writer, cmd *cobra.Command) {
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	fmt.Fprintln(w, strings.TrimRight(desc, "\n"))
	fmt.Fprintln(w)
	fmt.Fprint(w, cmd.UsageString())
}

// displayVersion prints the version line.
func displayVersion(w io.Writer) {
	fmt.Fprintf(w, "Jovian, version %s\n", Version)
}

// suggest returns the subcommand closest to name, or "" if none is close.
func suggest(name string) string {
	name = strings.ToLower(name)
	best, bestDist := "", maxSuggestDistance+1
	for _, def := range commandTable {
		if d := levenshtein.ComputeDistance(name, def.name); d < bestDist {
			best, bestDist = def.name, d
		}
	}
	return best
}
