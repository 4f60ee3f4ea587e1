package piece

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/errmodel"
)

var testDefs = []PropDef{
	{Name: "authentication", Type: PropOAuth2, Required: true},
	{Name: "list_id", Type: PropDropdown, Required: true},
	{Name: "label", Type: PropShortText},
}

func TestValidatePropsOK(t *testing.T) {
	err := ValidateProps(testDefs, Props{
		"authentication": map[string]any{"access_token": "tok"},
		"list_id":        "abc123",
	})
	assert.NoError(t, err)
}

func TestValidatePropsMissingRequired(t *testing.T) {
	err := ValidateProps(testDefs, Props{"authentication": map[string]any{}})
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation))
	assert.Contains(t, err.Error(), "list_id")
}

func TestValidatePropsWrongType(t *testing.T) {
	err := ValidateProps(testDefs, Props{
		"authentication": "not-an-object",
		"list_id":        "abc",
		"label":          3,
	})
	assert.Error(t, err)
}

func TestValidatePropsLeavesEmptySecretToPiece(t *testing.T) {
	defs := []PropDef{{Name: "authentication", Type: PropSecretText, Required: true}}
	assert.NoError(t, ValidateProps(defs, Props{"authentication": ""}))

	_, ok := Props{"authentication": ""}.String("authentication")
	assert.False(t, ok, "an empty secret reads as missing")
}

func TestAccessToken(t *testing.T) {
	tok, err := Props{"auth": map[string]any{"access_token": "secret"}}.AccessToken("auth")
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	for name, props := range map[string]Props{
		"absent":      {},
		"nil":         {"auth": nil},
		"no token":    {"auth": map[string]any{"refresh_token": "r"}},
		"empty token": {"auth": map[string]any{"access_token": ""}},
		"wrong shape": {"auth": "plain-string"},
	} {
		_, err := props.AccessToken("auth")
		assert.Truef(t, errors.Is(err, ErrInvalidBearerToken), "%s: got %v", name, err)
	}
}

func TestSchemaRequiredList(t *testing.T) {
	s := Schema(testDefs)
	assert.Equal(t, []any{"authentication", "list_id"}, s["required"])
	props := s["properties"].(map[string]any)
	assert.Contains(t, props, "label")
}
