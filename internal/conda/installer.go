package conda

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/afero"

	"github.com/jovian-ai/jovian-cli/internal/logging"
	"github.com/jovian-ai/jovian-cli/internal/shell"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

// MaxAttempts bounds how many times conda is re-run after dropping
// unresolvable packages.
const MaxAttempts = 3

// Runner runs external commands.
type Runner interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, argv ...string) (*shell.Result, error)
}

// Installer installs and activates environments for the project in Dir.
type Installer struct {
	FS       afero.Fs
	Dir      string
	GOOS     string
	Runner   Runner
	Printer  *ui.Printer
	Prompter ui.Prompter
}

// NewInstaller returns an installer for dir using the host filesystem.
func NewInstaller(dir string, runner Runner, printer *ui.Printer, prompter ui.Prompter) *Installer {
	return &Installer{
		FS:       afero.NewOsFs(),
		Dir:      dir,
		GOOS:     runtime.GOOS,
		Runner:   runner,
		Printer:  printer,
		Prompter: prompter,
	}
}

// Install creates or updates the conda environment from envFile, or from
// the discovered environment file when envFile is empty.
func (i *Installer) Install(ctx context.Context, envFile string) error {
	condaBin, err := i.Runner.LookPath("conda")
	if err != nil {
		return ErrCondaNotFound
	}

	path, err := FindEnvFile(i.FS, i.Dir, envFile, i.GOOS)
	if err != nil {
		return err
	}
	i.Printer.Log("Detected environment file: %s", filepath.Base(path))

	env, err := ReadEnvFile(i.FS, path)
	if err != nil {
		return err
	}

	name := env.Name()
	if name == "" {
		name, err = i.Prompter.Input("Please provide a name for the conda environment", defaultEnvName(i.Dir))
		if err != nil {
			return err
		}
	}
	if name == "" {
		return errors.New("a conda environment name is required")
	}

	current := path
	var removed []string
	for attempt := 1; ; attempt++ {
		argv := []string{condaBin, "env", "update", "--file", current, "--name", name}
		i.Printer.Log("Creating/updating environment %q", name)
		i.Printer.Hint("  %s", shell.Display(append([]string{"conda"}, argv[1:]...)))

		res, runErr := i.Runner.Run(ctx, argv...)
		if runErr == nil {
			break
		}

		var exitErr *shell.ExitError
		if !errors.As(runErr, &exitErr) || attempt >= MaxAttempts {
			return runErr
		}
		output := exitErr.Stderr
		if res != nil {
			output = res.Stdout + "\n" + res.Stderr
		}
		pkgs := UnresolvedPackages(output)
		if len(pkgs) == 0 {
			return runErr
		}

		removed = append(removed, pkgs...)
		i.Printer.Warn("Removing packages that could not be resolved: %s", strings.Join(pkgs, ", "))
		logging.Info().Strs("packages", pkgs).Int("attempt", attempt).Msg("retrying conda without unresolved packages")

		env = env.Without(pkgs)
		tmp, err := i.writeTemp(env)
		if err != nil {
			return err
		}
		defer i.FS.Remove(tmp)
		current = tmp
	}

	if len(removed) > 0 {
		i.Printer.Warn("These packages were skipped and may need to be installed manually: %s", strings.Join(removed, ", "))
	}
	i.Printer.Log("Environment %q is ready. Activate it with:", name)
	i.Printer.Hint("  conda activate %s", name)
	return nil
}

// Activate prints the command that activates the project's environment. A
// child process cannot change the calling shell's environment.
func (i *Installer) Activate(ctx context.Context) error {
	path, err := FindEnvFile(i.FS, i.Dir, "", i.GOOS)
	if err != nil {
		return err
	}
	env, err := ReadEnvFile(i.FS, path)
	if err != nil {
		return err
	}
	name := env.Name()
	if name == "" {
		return fmt.Errorf("environment file %s does not declare a name", filepath.Base(path))
	}

	i.Printer.Log("Copy and execute the following command to activate the environment:")
	i.Printer.Hint("  conda activate %s", name)
	return nil
}

func (i *Installer) writeTemp(env *EnvFile) (string, error) {
	data, err := env.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to encode environment: %w", err)
	}
	f, err := afero.TempFile(i.FS, i.Dir, ".jovian-environment-*.yml")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary environment file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", fmt.Errorf("failed to write temporary environment file: %w", err)
	}
	return f.Name(), nil
}

func defaultEnvName(dir string) string {
	base := filepath.Base(dir)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(base, " ", "-"))
}
