package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/jovian-ai/jovian-cli/internal/storage"
)

const (
	DefaultAPIURL    = "https://api.jovian.ai"
	DefaultWebappURL = "https://jovian.ai/"

	envPrefix = "JOVIAN"

	KeyAPIURL    = "API_URL"
	KeyWebappURL = "WEBAPP_URL"
	KeyAPIKey    = "API_KEY"
	KeyGuestKey  = "GUEST_KEY"
	KeyOrgID     = "ORG_ID"
)

// ErrNotConfigured is returned when an operation needs saved credentials and
// there are none.
var ErrNotConfigured = errors.New("jovian is not configured, run 'jovian configure' first")

// Credentials is the content of credentials.json. Key names match the files
// written by earlier releases of the client.
type Credentials struct {
	WebappURL string `json:"WEBAPP_URL,omitempty"`
	APIURL    string `json:"API_URL,omitempty"`
	APIKey    string `json:"API_KEY,omitempty"`
	GuestKey  string `json:"GUEST_KEY,omitempty"`
	OrgID     string `json:"ORG_ID,omitempty"`
}

// HasAPIKey reports whether an API key is present.
func (c *Credentials) HasAPIKey() bool {
	return c != nil && c.APIKey != ""
}

// Store reads and writes the credentials file.
type Store struct {
	doc *storage.Document
}

// NewStore returns a store for the credentials file under paths.
func NewStore(paths *Paths) *Store {
	return &Store{doc: storage.NewDocument(paths.CredentialsPath(), 0o600)}
}

// Path returns the credentials file path.
func (s *Store) Path() string {
	return s.doc.Path()
}

// Exists reports whether credentials have been saved.
func (s *Store) Exists() bool {
	return s.doc.Exists()
}

// Load returns the saved credentials, or ErrNotConfigured.
func (s *Store) Load(ctx context.Context) (*Credentials, error) {
	var creds Credentials
	if err := s.doc.Load(ctx, &creds); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, err
	}
	return &creds, nil
}

// Save replaces the saved credentials.
func (s *Store) Save(ctx context.Context, creds *Credentials) error {
	return s.doc.Save(ctx, creds)
}

// Purge removes the saved credentials.
func (s *Store) Purge(ctx context.Context) error {
	return s.doc.Remove(ctx)
}

// EnsureGuestKey returns the anonymous guest key, generating and saving one
// on first use.
func (s *Store) EnsureGuestKey(ctx context.Context) (string, error) {
	creds, err := s.Load(ctx)
	if errors.Is(err, ErrNotConfigured) {
		creds = &Credentials{}
	} else if err != nil {
		return "", err
	}
	if creds.GuestKey != "" {
		return creds.GuestKey, nil
	}

	creds.GuestKey = uuid.NewString()
	if err := s.Save(ctx, creds); err != nil {
		return "", fmt.Errorf("failed to save guest key: %w", err)
	}
	return creds.GuestKey, nil
}

// Resolve returns the effective settings: defaults, then the credentials
// file, then JOVIAN_* environment variables. A missing file is not an error.
func (s *Store) Resolve(ctx context.Context) (*Credentials, error) {
	creds, err := s.Load(ctx)
	if errors.Is(err, ErrNotConfigured) {
		creds = &Credentials{}
	} else if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault(KeyAPIURL, DefaultAPIURL)
	v.SetDefault(KeyWebappURL, DefaultWebappURL)

	fromFile := map[string]any{}
	for key, value := range map[string]string{
		KeyAPIURL:    creds.APIURL,
		KeyWebappURL: creds.WebappURL,
		KeyAPIKey:    creds.APIKey,
		KeyGuestKey:  creds.GuestKey,
		KeyOrgID:     creds.OrgID,
	} {
		if value != "" {
			fromFile[key] = value
		}
	}
	if err := v.MergeConfigMap(fromFile); err != nil {
		return nil, fmt.Errorf("failed to merge credentials: %w", err)
	}

	return &Credentials{
		APIURL:    strings.TrimRight(v.GetString(KeyAPIURL), "/"),
		WebappURL: withTrailingSlash(v.GetString(KeyWebappURL)),
		APIKey:    v.GetString(KeyAPIKey),
		GuestKey:  v.GetString(KeyGuestKey),
		OrgID:     v.GetString(KeyOrgID),
	}, nil
}

// LoadDotEnv loads JOVIAN_* overrides from a .env file in dir. Variables
// already set in the environment win. A missing file is ignored.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func withTrailingSlash(u string) string {
	if u == "" || strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}
