// Package account saves and removes the credentials the CLI talks to Jovian
// with.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jovian-ai/jovian-cli/internal/api"
	"github.com/jovian-ai/jovian-cli/internal/config"
	"github.com/jovian-ai/jovian-cli/internal/logging"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

var (
	// ErrInvalidAPIKey is returned when the API rejects the entered key.
	ErrInvalidAPIKey = errors.New("the API key provided is invalid or expired")
	// ErrMissingInput is returned when a required prompt is left empty.
	ErrMissingInput = errors.New("no value entered")
)

// API is the subset of the Jovian API used while configuring.
type API interface {
	UserProfile(ctx context.Context) (*api.Profile, error)
	FetchOrgConfig(ctx context.Context, configURL string) (*api.OrgConfig, error)
}

// ClientFactory builds an API client for a base URL and identity.
type ClientFactory func(baseURL string, auth api.Auth) API

// DefaultClientFactory returns real API clients.
func DefaultClientFactory(baseURL string, auth api.Auth) API {
	return api.New(baseURL, auth)
}

// Manager runs the interactive configure and reset flows.
type Manager struct {
	Store        *config.Store
	Prompter     ui.Prompter
	Printer      *ui.Printer
	NewClient    ClientFactory
	OrgConfigURL func(orgID string) string
}

// NewManager returns a Manager using the real API.
func NewManager(store *config.Store, prompter ui.Prompter, printer *ui.Printer) *Manager {
	return &Manager{
		Store:        store,
		Prompter:     prompter,
		Printer:      printer,
		NewClient:    DefaultClientFactory,
		OrgConfigURL: api.OrgConfigURL,
	}
}

// Configure asks for an API key (and the organization for Pro users),
// validates it and saves the credentials.
func (m *Manager) Configure(ctx context.Context) error {
	existing, err := m.Store.Load(ctx)
	switch {
	case errors.Is(err, config.ErrNotConfigured):
		existing = &config.Credentials{}
	case err != nil:
		logging.Warn().Err(err).Str("path", m.Store.Path()).Msg("unreadable credentials, starting over")
		existing = &config.Credentials{}
	default:
		m.Printer.Log("It looks like Jovian is already configured (check %s).", m.Store.Path())
		overwrite, err := m.Prompter.Confirm("Do you want to overwrite the existing configuration?", false)
		if err != nil {
			return err
		}
		if !overwrite {
			m.Printer.Log("Skipping..")
			return nil
		}
	}

	creds := &config.Credentials{
		APIURL:    config.DefaultAPIURL,
		WebappURL: config.DefaultWebappURL,
		GuestKey:  existing.GuestKey,
	}
	if creds.GuestKey == "" {
		creds.GuestKey = uuid.NewString()
	}

	pro, err := m.Prompter.Confirm("Are you a Jovian Pro user?", false)
	if err != nil {
		return err
	}
	if pro {
		if err := m.configureOrg(ctx, creds); err != nil {
			return err
		}
	}

	m.Printer.Log("Please enter your API key ( from %s )", creds.WebappURL)
	key, err := m.Prompter.Secret("API KEY")
	if err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key: %w", ErrMissingInput)
	}
	creds.APIKey = key

	client := m.NewClient(creds.APIURL, api.Auth{APIKey: creds.APIKey, GuestKey: creds.GuestKey, OrgID: creds.OrgID})
	profile, err := client.UserProfile(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return ErrInvalidAPIKey
		}
		return fmt.Errorf("failed to validate API key: %w", err)
	}

	if err := m.Store.Save(ctx, creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	logging.Info().Str("user", profile.Username).Str("api", creds.APIURL).Msg("credentials saved")

	if profile.Username != "" {
		m.Printer.Log("Logged in as %s", profile.Username)
	}
	m.Printer.Log("Configuration complete!")
	return nil
}

func (m *Manager) configureOrg(ctx context.Context, creds *config.Credentials) error {
	orgID, err := m.Prompter.Input("Enter your organization's ID", "")
	if err != nil {
		return err
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return fmt.Errorf("organization ID: %w", ErrMissingInput)
	}

	client := m.NewClient(config.DefaultAPIURL, api.Auth{GuestKey: creds.GuestKey})
	org, err := client.FetchOrgConfig(ctx, m.OrgConfigURL(orgID))
	if err != nil {
		return fmt.Errorf("organization %q: %w", orgID, err)
	}

	creds.OrgID = orgID
	creds.APIURL = strings.TrimRight(org.APIURL, "/")
	if org.WebappURL != "" {
		creds.WebappURL = org.WebappURL
		if !strings.HasSuffix(creds.WebappURL, "/") {
			creds.WebappURL += "/"
		}
	}
	return nil
}

// ResetConfig removes the saved credentials.
func (m *Manager) ResetConfig(ctx context.Context) error {
	if err := m.Store.Purge(ctx); err != nil {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	m.Printer.Log("Removed saved credentials")
	return nil
}
