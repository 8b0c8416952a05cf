// Package shell runs external tools such as conda and jupyter.
//
// Commands run through the mvdan.cc/sh interpreter rather than os/exec so
// that PATH lookup matches a POSIX shell and tests can swap the process
// layer for an in-memory exec handler.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/jovian-ai/jovian-cli/internal/logging"
)

// ExecMiddleware wraps the interpreter's process execution.
type ExecMiddleware = func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc

// ExitError reports a command that ran and exited with a nonzero status.
type ExitError struct {
	Command string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command `%s` exited with status %d", e.Command, e.Code)
}

// ExitCode returns the process exit status.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Result holds a copy of what a command wrote.
type Result struct {
	Stdout string
	Stderr string
}

// Runner runs commands.
type Runner struct {
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	dir      string
	env      []string
	handlers []ExecMiddleware
}

// Option configures a Runner.
type Option func(*Runner)

// WithStdio sets the streams commands are attached to.
func WithStdio(in io.Reader, out, errOut io.Writer) Option {
	return func(r *Runner) {
		r.stdin = in
		r.stdout = out
		r.stderr = errOut
	}
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// WithEnv replaces the environment, as KEY=VALUE pairs.
func WithEnv(env []string) Option {
	return func(r *Runner) { r.env = env }
}

// WithExecMiddleware intercepts process execution.
func WithExecMiddleware(m ExecMiddleware) Option {
	return func(r *Runner) { r.handlers = append(r.handlers, m) }
}

// New returns a Runner attached to the process's standard streams.
func New(opts ...Option) *Runner {
	r := &Runner{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		env:    os.Environ(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.dir == "" {
		r.dir, _ = os.Getwd()
	}
	return r
}

// Display renders argv the way a user would type it.
func Display(argv []string) string {
	return shellquote.Join(argv...)
}

// LookPath resolves a program on the runner's PATH.
func (r *Runner) LookPath(name string) (string, error) {
	return interp.LookPathDir(r.dir, expand.ListEnviron(r.env...), name)
}

// Run runs argv and waits for it. Output is streamed to the runner's
// streams and also captured in the Result. A nonzero exit yields *ExitError.
func (r *Runner) Run(ctx context.Context, argv ...string) (*Result, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	quoted := make([]string, len(argv))
	for i, arg := range argv {
		q, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return nil, fmt.Errorf("cannot quote argument %q: %w", arg, err)
		}
		quoted[i] = q
	}
	file, err := syntax.NewParser().Parse(strings.NewReader(strings.Join(quoted, " ")), "")
	if err != nil {
		return nil, fmt.Errorf("cannot parse command: %w", err)
	}

	var outBuf, errBuf bytes.Buffer
	opts := []interp.RunnerOption{
		interp.StdIO(r.stdin, io.MultiWriter(r.stdout, &outBuf), io.MultiWriter(r.stderr, &errBuf)),
		interp.Dir(r.dir),
		interp.Env(expand.ListEnviron(r.env...)),
	}
	if len(r.handlers) > 0 {
		opts = append(opts, interp.ExecHandlers(r.handlers...))
	}
	runner, err := interp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("cannot create interpreter: %w", err)
	}

	display := Display(argv)
	logging.Debug().Str("command", display).Str("dir", r.dir).Msg("running command")

	res := &Result{}
	runErr := runner.Run(ctx, file)
	res.Stdout = outBuf.String()
	res.Stderr = errBuf.String()

	if runErr != nil {
		if status, ok := interp.IsExitStatus(runErr); ok {
			logging.Debug().Str("command", display).Int("status", int(status)).Msg("command failed")
			return res, &ExitError{Command: display, Code: int(status), Stderr: res.Stderr}
		}
		return res, fmt.Errorf("failed to run `%s`: %w", display, runErr)
	}
	return res, nil
}
