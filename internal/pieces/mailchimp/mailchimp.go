// Package mailchimp implements the Mailchimp piece.
package mailchimp

import (
	"context"

	"pieces/internal/httpclient"
	"pieces/internal/piece"
)

// Piece is the Mailchimp connector.
type Piece struct {
	triggers []piece.Trigger
}

// Option configures the piece.
type Option func(*config)

type config struct {
	metadataURL string
	apiURL      string
}

// WithMetadataURL overrides the OAuth metadata endpoint.
func WithMetadataURL(u string) Option {
	return func(c *config) { c.metadataURL = u }
}

// WithAPIURL overrides the API root. "{dc}" in u is replaced by the server prefix.
func WithAPIURL(u string) Option {
	return func(c *config) { c.apiURL = u }
}

// New creates the Mailchimp piece.
func New(hc *httpclient.Client, opts ...Option) *Piece {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	client := NewClient(hc, cfg.metadataURL, cfg.apiURL)
	return &Piece{triggers: []piece.Trigger{&SubscribeTrigger{client: client}}}
}

func (p *Piece) Name() string              { return "mailchimp" }
func (p *Piece) DisplayName() string       { return "Mailchimp" }
func (p *Piece) Triggers() []piece.Trigger { return p.triggers }

func authProp() piece.PropDef {
	return piece.PropDef{
		Name:        "authentication",
		DisplayName: "Authentication",
		Type:        piece.PropOAuth2,
		Required:    true,
	}
}

func listIDProp(c *Client) piece.PropDef {
	return piece.PropDef{
		Name:        "list_id",
		DisplayName: "Audience",
		Description: "Audience you want to watch",
		Type:        piece.PropDropdown,
		Required:    true,
		Options:     c.listOptions,
	}
}

func (c *Client) listOptions(ctx context.Context, props piece.Props) ([]piece.Option, error) {
	token, err := props.AccessToken("authentication")
	if err != nil {
		return nil, err
	}
	server, err := c.ServerPrefix(ctx, token)
	if err != nil {
		return nil, err
	}
	lists, err := c.ListLists(ctx, server, token)
	if err != nil {
		return nil, err
	}
	opts := make([]piece.Option, 0, len(lists))
	for _, l := range lists {
		opts = append(opts, piece.Option{Label: l.Name, Value: l.ID})
	}
	return opts, nil
}
