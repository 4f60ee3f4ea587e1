package errmodel

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation("missing", "field missing", map[string]any{"field": "list_id"})
	assert.Equal(t, CategoryValidation, e.Category)
	assert.Equal(t, "missing", e.Code)
	assert.Same(t, e, From(e))
	assert.Same(t, e, From(fmt.Errorf("wrapped: %w", e)), "From unwraps to the same instance")
}

func TestFromUnknownError(t *testing.T) {
	base := errors.New("boom")
	ce := From(base)
	require.NotNil(t, ce)
	assert.Equal(t, CategorySystem, ce.Category)
	assert.Equal(t, "internal", ce.Code)
	assert.ErrorIs(t, ce, base)
}

type classified struct{}

func (classified) Error() string    { return "upstream said no" }
func (classified) ErrModel() *Error { return Network("http_status", "upstream said no", nil, nil) }

func TestFromClassifier(t *testing.T) {
	ce := From(fmt.Errorf("calling vendor: %w", classified{}))
	require.NotNil(t, ce)
	assert.Equal(t, CategoryNetwork, ce.Category)
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(ce))
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), `"category":"validation"`)
	assert.Contains(t, rr.Body.String(), `"code":"bad_json"`)
}

func TestHTTPStatusByCode(t *testing.T) {
	tests := map[string]struct {
		err  *Error
		want int
	}{
		"auth":        {Auth("invalid_bearer_token", "Invalid bearer token", nil), http.StatusUnauthorized},
		"not enabled": {Validation("not_enabled", "x", nil), http.StatusConflict},
		"conflict":    {Validation("conflict", "x", nil), http.StatusConflict},
		"not found":   {Validation("not_found", "x", nil), http.StatusNotFound},
		"method":      {Policy("method_not_allowed", "x", nil), http.StatusMethodNotAllowed},
		"policy":      {Policy("denied", "x", nil), http.StatusForbidden},
		"network":     {Network("request_failed", "x", nil, nil), http.StatusBadGateway},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
