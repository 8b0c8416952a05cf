package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// File is one file of a hosted notebook project.
type File struct {
	Filename string
	RawURL   string
}

// Gist is the metadata of a hosted notebook project at one version.
type Gist struct {
	Slug    string
	Title   string
	Owner   string
	Version int
	Files   []File
}

// Notebooks returns the .ipynb files of the gist.
func (g *Gist) Notebooks() []File {
	var out []File
	for _, f := range g.Files {
		if strings.HasSuffix(strings.ToLower(f.Filename), ".ipynb") {
			out = append(out, f)
		}
	}
	return out
}

// GetGist fetches project metadata. A version of 0 means the latest.
func (c *Client) GetGist(ctx context.Context, slug string, version int) (*Gist, error) {
	query := url.Values{}
	if version > 0 {
		query.Set("gist_version", strconv.Itoa(version))
	}

	data, err := c.getData(ctx, "/gist/"+slug, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notebook %q: %w", slug, err)
	}
	if !data.Exists() {
		return nil, fmt.Errorf("failed to fetch notebook %q: empty response", slug)
	}

	gist := &Gist{
		Slug:    data.Get("slug").String(),
		Title:   data.Get("title").String(),
		Owner:   data.Get("owner.username").String(),
		Version: int(data.Get("version").Int()),
	}
	data.Get("files").ForEach(func(_, f gjson.Result) bool {
		gist.Files = append(gist.Files, File{
			Filename: f.Get("filename").String(),
			RawURL:   f.Get("rawUrl").String(),
		})
		return true
	})
	return gist, nil
}

// Profile is the authenticated user.
type Profile struct {
	Username string
	Name     string
}

// UserProfile returns the user owning the API key. It is how keys are
// validated.
func (c *Client) UserProfile(ctx context.Context) (*Profile, error) {
	data, err := c.getData(ctx, "/user/profile", nil)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Username: data.Get("username").String(),
		Name:     data.Get("name").String(),
	}, nil
}

// SlackIntegration describes the user's Slack connection.
type SlackIntegration struct {
	Connected      bool
	Workspace      string
	Channel        string
	IntegrationURL string
}

// SlackIntegration fetches the Slack connection details.
func (c *Client) SlackIntegration(ctx context.Context) (*SlackIntegration, error) {
	data, err := c.getData(ctx, "/slack/integration_details", nil)
	if err != nil {
		return nil, err
	}

	account := data.Get("slackAccount")
	return &SlackIntegration{
		Connected:      account.Exists() && account.Type != gjson.Null,
		Workspace:      account.Get("workspace").String(),
		Channel:        account.Get("channel").String(),
		IntegrationURL: data.Get("integrationUrl").String(),
	}, nil
}

// OrgConfig holds the endpoints of a Pro organization's deployment.
type OrgConfig struct {
	APIURL    string
	WebappURL string
}

// OrgConfigURL returns the config document URL for a Pro organization.
func OrgConfigURL(orgID string) string {
	return fmt.Sprintf("https://%s.jovian.ai/config.json", url.PathEscape(orgID))
}

// FetchOrgConfig reads a Pro organization's config document.
func (c *Client) FetchOrgConfig(ctx context.Context, configURL string) (*OrgConfig, error) {
	body, err := c.get(ctx, configURL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch organization config: %w", err)
	}

	cfg := &OrgConfig{
		APIURL:    gjson.GetBytes(body, "API_URL").String(),
		WebappURL: gjson.GetBytes(body, "WEBAPP_URL").String(),
	}
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("organization config at %s has no API_URL", configURL)
	}
	return cfg, nil
}
