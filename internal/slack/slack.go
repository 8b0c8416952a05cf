// Package slack connects a Jovian account to Slack notifications.
package slack

import (
	"context"
	"errors"
	"fmt"

	"github.com/jovian-ai/jovian-cli/internal/api"
	"github.com/jovian-ai/jovian-cli/internal/config"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

// API is the subset of the Jovian API used here.
type API interface {
	HasAPIKey() bool
	SlackIntegration(ctx context.Context) (*api.SlackIntegration, error)
}

// Connector reports or starts the Slack integration.
type Connector struct {
	API       API
	WebappURL string
	Printer   *ui.Printer
}

// AddSlack prints the connected workspace, or where to connect one.
func (c *Connector) AddSlack(ctx context.Context) error {
	if !c.API.HasAPIKey() {
		return config.ErrNotConfigured
	}

	details, err := c.API.SlackIntegration(ctx)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return fmt.Errorf("the saved API key was rejected, run 'jovian configure' again: %w", err)
		}
		return fmt.Errorf("failed to fetch slack integration: %w", err)
	}

	if details.Connected {
		c.Printer.Log("Slack already connected. Workspace: %s, Channel: %s", details.Workspace, details.Channel)
		return nil
	}

	link := details.IntegrationURL
	if link == "" {
		link = c.WebappURL + "settings/integrations"
	}
	c.Printer.Log("Connect your Slack workspace to receive notifications:")
	c.Printer.Hint("  %s", link)
	return nil
}
