// Package airtable implements the Airtable piece: polling triggers over a table snapshot.
package airtable

import (
	"context"
	"fmt"

	"pieces/internal/errmodel"
	"pieces/internal/httpclient"
	"pieces/internal/piece"
)

// Piece is the Airtable connector.
type Piece struct {
	triggers []piece.Trigger
}

// Option configures the piece.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL points the piece at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// New creates the Airtable piece.
func New(hc *httpclient.Client, opts ...Option) *Piece {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	client := NewClient(hc, cfg.baseURL)
	return &Piece{triggers: []piece.Trigger{
		&NewRecordTrigger{client: client},
		&NewOrUpdatedRecordTrigger{client: client},
	}}
}

func (p *Piece) Name() string              { return "airtable" }
func (p *Piece) DisplayName() string       { return "Airtable" }
func (p *Piece) Triggers() []piece.Trigger { return p.triggers }

func commonProps(c *Client) []piece.PropDef {
	return []piece.PropDef{
		{
			Name:        "authentication",
			DisplayName: "Personal Access Token",
			Description: "Airtable personal access token with data.records:read and schema.bases:read scopes",
			Type:        piece.PropSecretText,
			Required:    true,
		},
		{
			Name:        "base",
			DisplayName: "Base",
			Type:        piece.PropDropdown,
			Required:    true,
			Options:     c.baseOptions,
		},
		{
			Name:        "table",
			DisplayName: "Table",
			Description: "Table id, or an object with an id field",
			Type:        piece.PropDropdown,
			Required:    true,
			Options:     c.tableOptions,
		},
	}
}

// tableRef is the resolved authentication/base/table triple every trigger needs.
type tableRef struct {
	token   string
	baseID  string
	tableID string
}

func resolveTable(props piece.Props) (tableRef, error) {
	token, ok := props.String("authentication")
	if !ok {
		return tableRef{}, piece.ErrInvalidBearerToken
	}
	baseID, ok := props.String("base")
	if !ok {
		return tableRef{}, errmodel.Validation("missing_prop", "base is required", nil)
	}
	tableID, ok := tableIDOf(props["table"])
	if !ok {
		return tableRef{}, errmodel.Validation("missing_prop", "table is required", nil)
	}
	return tableRef{token: token, baseID: baseID, tableID: tableID}, nil
}

// tableIDOf accepts a plain id or a dropdown object such as {"id": "tbl..."}.
func tableIDOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case map[string]any:
		id, _ := t["id"].(string)
		return id, id != ""
	default:
		return "", false
	}
}

func (c *Client) snapshot(ctx context.Context, props piece.Props) ([]Record, error) {
	ref, err := resolveTable(props)
	if err != nil {
		return nil, err
	}
	return c.GetTableSnapshot(ctx, ref.token, ref.baseID, ref.tableID)
}

func (c *Client) baseOptions(ctx context.Context, props piece.Props) ([]piece.Option, error) {
	token, ok := props.String("authentication")
	if !ok {
		return nil, piece.ErrInvalidBearerToken
	}
	bases, err := c.ListBases(ctx, token)
	if err != nil {
		return nil, err
	}
	opts := make([]piece.Option, 0, len(bases))
	for _, b := range bases {
		opts = append(opts, piece.Option{Label: b.Name, Value: b.ID})
	}
	return opts, nil
}

func (c *Client) tableOptions(ctx context.Context, props piece.Props) ([]piece.Option, error) {
	token, ok := props.String("authentication")
	if !ok {
		return nil, piece.ErrInvalidBearerToken
	}
	baseID, ok := props.String("base")
	if !ok {
		return nil, fmt.Errorf("select a base first")
	}
	tables, err := c.ListTables(ctx, token, baseID)
	if err != nil {
		return nil, err
	}
	opts := make([]piece.Option, 0, len(tables))
	for _, t := range tables {
		opts = append(opts, piece.Option{
			Label: t.Name,
			Value: map[string]any{"id": t.ID, "name": t.Name},
		})
	}
	return opts, nil
}
