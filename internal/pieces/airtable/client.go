package airtable

import (
	"context"
	"fmt"
	"net/url"

	"pieces/internal/errmodel"
	"pieces/internal/httpclient"
)

// DefaultBaseURL is the Airtable REST API root.
const DefaultBaseURL = "https://api.airtable.com"

// Record is one row of an Airtable table as returned by the list-records endpoint.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

// Base is an Airtable base visible to the token.
type Base struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel"`
}

// Table is a table of a base.
type Table struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client calls the Airtable API with a personal access token.
type Client struct {
	http    *httpclient.Client
	baseURL string
}

// NewClient creates a client against baseURL (DefaultBaseURL when empty).
func NewClient(hc *httpclient.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{http: hc, baseURL: baseURL}
}

type listRecordsResponse struct {
	Records []Record `json:"records"`
	Offset  string   `json:"offset"`
}

// GetTableSnapshot fetches every record of a table, following pagination until
// Airtable stops returning an offset. The result is never nil.
func (c *Client) GetTableSnapshot(ctx context.Context, token, baseID, tableID string) ([]Record, error) {
	records := make([]Record, 0)
	offset := ""
	for {
		q := url.Values{"pageSize": {"100"}}
		if offset != "" {
			q.Set("offset", offset)
		}
		resp, err := c.http.Send(ctx, httpclient.Request{
			Method:         "GET",
			URL:            fmt.Sprintf("%s/v0/%s/%s", c.baseURL, url.PathEscape(baseID), url.PathEscape(tableID)),
			Query:          q,
			Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
		})
		if err != nil {
			return nil, fmt.Errorf("listing records of %s/%s: %w", baseID, tableID, err)
		}

		var page listRecordsResponse
		if err := resp.JSON(&page); err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}
		if page.Offset == offset {
			return nil, errRepeatedOffset(baseID+"/"+tableID, offset)
		}
		offset = page.Offset
	}
}

// ListBases returns the bases the token can read.
func (c *Client) ListBases(ctx context.Context, token string) ([]Base, error) {
	var bases []Base
	offset := ""
	for {
		q := url.Values{}
		if offset != "" {
			q.Set("offset", offset)
		}
		resp, err := c.http.Send(ctx, httpclient.Request{
			Method:         "GET",
			URL:            c.baseURL + "/v0/meta/bases",
			Query:          q,
			Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
		})
		if err != nil {
			return nil, fmt.Errorf("listing bases: %w", err)
		}

		var page struct {
			Bases  []Base `json:"bases"`
			Offset string `json:"offset"`
		}
		if err := resp.JSON(&page); err != nil {
			return nil, err
		}
		bases = append(bases, page.Bases...)
		if page.Offset == "" {
			return bases, nil
		}
		if page.Offset == offset {
			return nil, errRepeatedOffset("bases", offset)
		}
		offset = page.Offset
	}
}

// ListTables returns the tables of a base.
func (c *Client) ListTables(ctx context.Context, token, baseID string) ([]Table, error) {
	resp, err := c.http.Send(ctx, httpclient.Request{
		Method:         "GET",
		URL:            fmt.Sprintf("%s/v0/meta/bases/%s/tables", c.baseURL, url.PathEscape(baseID)),
		Authentication: httpclient.Authentication{Type: httpclient.AuthBearer, Token: token},
	})
	if err != nil {
		return nil, fmt.Errorf("listing tables of %s: %w", baseID, err)
	}

	var body struct {
		Tables []Table `json:"tables"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}
	return body.Tables, nil
}

// errRepeatedOffset stops pagination when Airtable hands back the offset it was sent.
func errRepeatedOffset(what, offset string) error {
	return errmodel.Network("repeated_offset", fmt.Sprintf("airtable returned offset %q twice while listing %s", offset, what), nil, nil)
}
