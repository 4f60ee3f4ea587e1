package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/types"
)

func testResolver() *Resolver {
	inst := &types.InstanceDef{
		Name:     "new-contacts",
		Piece:    "airtable",
		Trigger:  "new_record",
		Metadata: map[string]string{"team": "growth"},
	}
	rv := NewResolver(inst, map[string]string{
		"AIRTABLE_TOKEN": "patXYZ",
		"PADDED":         "  spaced  ",
	})
	rv.Env = map[string]string{"BASE_ID": "appX"}
	return rv
}

func TestResolveSecretsAndEnv(t *testing.T) {
	rv := testResolver()

	tests := []struct {
		input    string
		expected string
	}{
		{"${{ secrets.AIRTABLE_TOKEN }}", "patXYZ"},
		{"Bearer ${{ secrets.AIRTABLE_TOKEN }}", "Bearer patXYZ"},
		{"${{ env.BASE_ID }}", "appX"},
		{"${{ env.MISSING }}", ""},
		{"${{ instance.name }}", "new-contacts"},
		{"${{ instance.webhook_path }}", "/webhooks/new-contacts"},
		{"${{ instance.metadata.team }}", "growth"},
		{"no expressions", "no expressions"},
	}

	for _, tt := range tests {
		result, err := rv.resolveString(tt.input)
		if assert.NoError(t, err, tt.input) {
			assert.Equal(t, tt.expected, result, tt.input)
		}
	}
}

func TestResolvePipeFunctions(t *testing.T) {
	rv := testResolver()

	tests := []struct {
		input    string
		expected string
	}{
		{"${{ instance.name | upper }}", "NEW-CONTACTS"},
		{"${{ secrets.PADDED | trim }}", "spaced"},
		{"${{ env.BASE_ID | lower }}", "appx"},
		{"${{ secrets.PADDED | slugify }}", "spaced"},
	}

	for _, tt := range tests {
		result, err := rv.resolveString(tt.input)
		if assert.NoError(t, err, tt.input) {
			assert.Equal(t, tt.expected, result, tt.input)
		}
	}
}

func TestResolveErrors(t *testing.T) {
	rv := testResolver()

	tests := []struct {
		input string
		want  string
	}{
		{"${{ secrets.NOPE }}", "not defined"},
		{"${{ steps.x.output }}", "unknown variable root"},
		{"${{ instance.owner }}", "unknown instance field"},
		{"${{ instance.name | reverse }}", "unknown pipe function"},
	}

	for _, tt := range tests {
		_, err := rv.resolveString(tt.input)
		if assert.Error(t, err, tt.input) {
			assert.Contains(t, err.Error(), tt.want, tt.input)
		}
	}
}

func TestResolveMapNested(t *testing.T) {
	rv := testResolver()

	got, err := rv.ResolveMap(map[string]any{
		"authentication": map[string]any{"access_token": "${{ secrets.AIRTABLE_TOKEN }}"},
		"base":           "${{ env.BASE_ID }}",
		"tags":           []any{"${{ instance.piece }}", 3},
		"limit":          10,
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"authentication": map[string]any{"access_token": "patXYZ"},
		"base":           "appX",
		"tags":           []any{"airtable", 3},
		"limit":          10,
	}, got)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Acme Corp":        "acme-corp",
		"  Hello  World  ": "hello-world",
		"foo_bar--baz":     "foo-bar-baz",
		"Ünïcödé!":         "ünïcödé",
	}
	for input, want := range tests {
		assert.Equal(t, want, slugify(input), input)
	}
}
