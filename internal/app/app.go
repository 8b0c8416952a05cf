// Package app wires the CLI's operations to their dependencies.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jovian-ai/jovian-cli/internal/account"
	"github.com/jovian-ai/jovian-cli/internal/api"
	"github.com/jovian-ai/jovian-cli/internal/conda"
	"github.com/jovian-ai/jovian-cli/internal/config"
	"github.com/jovian-ai/jovian-cli/internal/extension"
	"github.com/jovian-ai/jovian-cli/internal/logging"
	"github.com/jovian-ai/jovian-cli/internal/notebook"
	"github.com/jovian-ai/jovian-cli/internal/shell"
	"github.com/jovian-ai/jovian-cli/internal/slack"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

// App performs each CLI operation against the project in Dir.
type App struct {
	Dir       string
	UserAgent string
	Store     *config.Store
	Printer   *ui.Printer
	Prompter  ui.Prompter
	Shell     *shell.Runner
	APIOpts   []api.Option

	// dirErr is set when the working directory could not be determined.
	dirErr error
}

// New returns an App for the current working directory on the process's
// standard streams. An unreadable working directory is reported by the
// operations that need it.
func New(version string) *App {
	dir, err := os.Getwd()
	if err != nil {
		err = fmt.Errorf("failed to get working directory: %w", err)
		logging.Warn().Err(err).Msg("no working directory")
	} else if err := config.LoadDotEnv(dir); err != nil {
		logging.Warn().Err(err).Msg("failed to load .env")
	}

	return &App{
		Dir:       dir,
		UserAgent: "jovian-cli/" + version,
		Store:     config.NewStore(config.GetPaths()),
		Printer:   ui.Stdio(),
		Prompter:  ui.NewTerminal(),
		Shell:     shell.New(shell.WithDir(dir)),
		dirErr:    err,
	}
}

// workDir returns the project directory operations run against.
func (a *App) workDir() (string, error) {
	if a.dirErr != nil {
		return "", a.dirErr
	}
	return a.Dir, nil
}

// client returns an API client for the resolved settings. A guest key is
// created on first use.
func (a *App) client(ctx context.Context) (*api.Client, *config.Credentials, error) {
	creds, err := a.Store.Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}
	if creds.GuestKey == "" {
		if creds.GuestKey, err = a.Store.EnsureGuestKey(ctx); err != nil {
			return nil, nil, err
		}
	}

	opts := append([]api.Option{api.WithUserAgent(a.UserAgent)}, a.APIOpts...)
	auth := api.Auth{APIKey: creds.APIKey, GuestKey: creds.GuestKey, OrgID: creds.OrgID}
	client := api.New(creds.APIURL, auth, opts...)

	logging.Debug().
		Str("api", client.BaseURL()).
		Bool("authenticated", creds.HasAPIKey()).
		Str("org", creds.OrgID).
		Msg("api client")
	return client, creds, nil
}

func (a *App) accounts() *account.Manager {
	m := account.NewManager(a.Store, a.Prompter, a.Printer)
	if len(a.APIOpts) > 0 {
		m.NewClient = func(baseURL string, auth api.Auth) account.API {
			return api.New(baseURL, auth, a.APIOpts...)
		}
	}
	return m
}

// Configure saves credentials interactively.
func (a *App) Configure(ctx context.Context) error {
	return a.accounts().Configure(ctx)
}

// ResetConfig removes saved credentials.
func (a *App) ResetConfig(ctx context.Context) error {
	return a.accounts().ResetConfig(ctx)
}

// Install creates or updates the project's conda environment.
func (a *App) Install(ctx context.Context, envName string) error {
	dir, err := a.workDir()
	if err != nil {
		return err
	}
	return conda.NewInstaller(dir, a.Shell, a.Printer, a.Prompter).Install(ctx, envName)
}

// Activate prints how to activate the project's conda environment.
func (a *App) Activate(ctx context.Context) error {
	dir, err := a.workDir()
	if err != nil {
		return err
	}
	return conda.NewInstaller(dir, a.Shell, a.Printer, a.Prompter).Activate(ctx)
}

// Clone downloads a notebook project into a new directory.
func (a *App) Clone(ctx context.Context, id, version string) error {
	dir, err := a.workDir()
	if err != nil {
		return err
	}
	client, _, err := a.client(ctx)
	if err != nil {
		return err
	}
	return notebook.NewService(dir, client, a.Printer).Clone(ctx, id, version)
}

// Pull updates the working directory from a notebook project.
func (a *App) Pull(ctx context.Context, id, version string) error {
	dir, err := a.workDir()
	if err != nil {
		return err
	}
	client, _, err := a.client(ctx)
	if err != nil {
		return err
	}
	return notebook.NewService(dir, client, a.Printer).Pull(ctx, id, version)
}

// AddSlack reports or starts the Slack integration.
func (a *App) AddSlack(ctx context.Context) error {
	client, creds, err := a.client(ctx)
	if err != nil {
		return err
	}
	c := &slack.Connector{API: client, WebappURL: creds.WebappURL, Printer: a.Printer}
	return c.AddSlack(ctx)
}

// SetupExtension enables or disables the Jupyter extension.
func (a *App) SetupExtension(ctx context.Context, enable bool) error {
	i := &extension.Installer{Runner: a.Shell, Printer: a.Printer}
	return i.Setup(ctx, enable)
}
