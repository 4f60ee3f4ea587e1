package mailchimp

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pieces/internal/errmodel"
	"pieces/internal/httpclient"
)

const (
	// DefaultMetadataURL resolves the data center ("dc") of an OAuth token.
	DefaultMetadataURL = "https://login.mailchimp.com/oauth2/metadata"
	// DefaultAPIURL is the Marketing API root; {dc} is the server prefix.
	DefaultAPIURL = "https://{dc}.api.mailchimp.com"
)

// List is a Mailchimp audience.
type List struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Webhook is the create-webhook response.
type Webhook struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	ListID string `json:"list_id"`
}

// Client calls the Mailchimp Marketing API with an OAuth access token.
type Client struct {
	http        *httpclient.Client
	metadataURL string
	apiURL      string
}

// NewClient creates a client; empty URLs fall back to the public endpoints.
func NewClient(hc *httpclient.Client, metadataURL, apiURL string) *Client {
	if metadataURL == "" {
		metadataURL = DefaultMetadataURL
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{http: hc, metadataURL: metadataURL, apiURL: apiURL}
}

// ServerPrefix looks up the data center the token belongs to, e.g. "us6".
func (c *Client) ServerPrefix(ctx context.Context, token string) (string, error) {
	resp, err := c.http.Send(ctx, httpclient.Request{
		Method:         "GET",
		URL:            c.metadataURL,
		Authentication: httpclient.Authentication{Type: httpclient.AuthOAuth, Token: token},
	})
	if err != nil {
		return "", fmt.Errorf("resolving server prefix: %w", err)
	}
	dc := resp.Get("dc").String()
	if dc == "" {
		return "", errmodel.Network("missing_dc", "metadata response has no dc", nil, nil)
	}
	return dc, nil
}

func (c *Client) endpoint(server, format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(fmt.Sprint(a))
	}
	return strings.ReplaceAll(c.apiURL, "{dc}", server) + fmt.Sprintf(format, escaped...)
}

// CreateWebhook registers webhookURL for subscribe events of all sources on listID.
func (c *Client) CreateWebhook(ctx context.Context, server, token, listID, webhookURL string) (*Webhook, error) {
	resp, err := c.http.Send(ctx, httpclient.Request{
		Method:         "POST",
		URL:            c.endpoint(server, "/3.0/lists/%s/webhooks", listID),
		Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
		Body: map[string]any{
			"url": webhookURL,
			"events": map[string]bool{
				"subscribe": true,
			},
			"sources": map[string]bool{
				"user":  true,
				"admin": true,
				"api":   true,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating webhook on list %s: %w", listID, err)
	}

	var wh Webhook
	if err := resp.JSON(&wh); err != nil {
		return nil, err
	}
	return &wh, nil
}

// DeleteWebhook removes a webhook from listID.
func (c *Client) DeleteWebhook(ctx context.Context, server, token, listID, webhookID string) error {
	_, err := c.http.Send(ctx, httpclient.Request{
		Method:         "DELETE",
		URL:            c.endpoint(server, "/3.0/lists/%s/webhooks/%s", listID, webhookID),
		Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
	})
	if err != nil {
		return fmt.Errorf("deleting webhook %s on list %s: %w", webhookID, listID, err)
	}
	return nil
}

// ListLists returns the audiences of the account, up to 1000.
func (c *Client) ListLists(ctx context.Context, server, token string) ([]List, error) {
	resp, err := c.http.Send(ctx, httpclient.Request{
		Method:         "GET",
		URL:            c.endpoint(server, "/3.0/lists"),
		Query:          url.Values{"count": {"1000"}, "fields": {"lists.id,lists.name"}},
		Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
	})
	if err != nil {
		return nil, fmt.Errorf("listing audiences: %w", err)
	}

	lists := make([]List, 0)
	for _, l := range resp.Get("lists").Array() {
		lists = append(lists, List{ID: l.Get("id").String(), Name: l.Get("name").String()})
	}
	return lists, nil
}
