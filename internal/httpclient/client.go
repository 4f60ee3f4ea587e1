// Package httpclient is the thin authenticated REST client pieces use to talk to vendor APIs.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pieces/internal/errmodel"
)

// AuthType selects how Authentication.Token is sent.
type AuthType string

const (
	AuthNone   AuthType = ""
	AuthBearer AuthType = "bearer"
	// AuthOAuth sends "Authorization: OAuth <token>", as Mailchimp's metadata endpoint expects.
	AuthOAuth AuthType = "oauth"
	AuthBasic AuthType = "basic"
)

// Authentication describes credentials attached to a request.
type Authentication struct {
	Type     AuthType
	Token    string
	Username string
	Password string
}

// Request is a single vendor call. Body is JSON-encoded when non-nil.
type Request struct {
	Method         string
	URL            string
	Query          url.Values
	Headers        map[string]string
	Authentication Authentication
	Body           any
}

// Response holds a fully read response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Get looks up a gjson path in the response body.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Method     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// ErrModel classifies the failure for the webhook server.
func (e *HTTPError) ErrModel() *errmodel.Error {
	return errmodel.New(errmodel.CategoryNetwork, "http_status", e.Error(), map[string]any{
		"status_code": e.StatusCode,
		"url":         e.URL,
	})
}

// Client sends requests. The zero value is not usable; call New.
type Client struct {
	http   *http.Client
	logger logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. Its transport is still traced.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for request tracing at debug level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client with a 30s timeout and an otelhttp transport.
func New(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.http
	hc.Transport = otelhttp.NewTransport(base)
	c.http = &hc
	return c
}

// Send performs the request. Non-2xx responses return *HTTPError; nothing is retried.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	target := r.URL
	if len(r.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + r.Query.Encode()
	}

	var bodyReader io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	switch r.Authentication.Type {
	case AuthNone:
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+r.Authentication.Token)
	case AuthOAuth:
		req.Header.Set("Authorization", "OAuth "+r.Authentication.Token)
	case AuthBasic:
		req.SetBasicAuth(r.Authentication.Username, r.Authentication.Password)
	default:
		return nil, fmt.Errorf("unknown authentication type %q", r.Authentication.Type)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errmodel.Network("request_failed", fmt.Sprintf("%s %s failed", method, r.URL), nil, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":      method,
		"url":         r.URL,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("vendor request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        r.URL,
			Body:       truncateBody(respBody),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

func truncateBody(b []byte) string {
	const max = 1024
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
