package piece

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"pieces/internal/errmodel"
)

// PropType is the kind of value a property accepts.
type PropType string

const (
	PropShortText  PropType = "SHORT_TEXT"
	PropSecretText PropType = "SECRET_TEXT"
	PropOAuth2     PropType = "OAUTH2"
	PropDropdown   PropType = "DROPDOWN"
	PropNumber     PropType = "NUMBER"
	PropCheckbox   PropType = "CHECKBOX"
	PropObject     PropType = "OBJECT"
)

// ErrInvalidBearerToken is returned before any network call when an
// authentication property carries no usable token.
var ErrInvalidBearerToken = errmodel.Auth("invalid_bearer_token", "Invalid bearer token", nil)

// Option is one choice of a dropdown property.
type Option struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// OptionsFunc loads dropdown choices, usually from the vendor API, given the
// properties resolved so far (e.g. the authentication).
type OptionsFunc func(ctx context.Context, props Props) ([]Option, error)

// PropDef declares one configurable property of a trigger.
type PropDef struct {
	Name        string
	DisplayName string
	Description string
	Type        PropType
	Required    bool
	// Options is set for dropdowns whose choices come from the vendor.
	Options OptionsFunc
}

// Props holds resolved property values keyed by PropDef.Name.
type Props map[string]any

// String returns the value of name when it is a non-empty string.
func (p Props) String(name string) (string, bool) {
	s, ok := p[name].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// OAuth2Value is the resolved value of an OAUTH2 property.
type OAuth2Value struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token,omitempty"`
	TokenType    string         `json:"token_type,omitempty"`
	Scope        string         `json:"scope,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// OAuth2 decodes name as an OAuth2Value. It reports false when the property is absent.
func (p Props) OAuth2(name string) (OAuth2Value, bool, error) {
	var v OAuth2Value
	raw, ok := p[name]
	if !ok || raw == nil {
		return v, false, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return v, false, fmt.Errorf("encoding %q: %w", name, err)
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, false, fmt.Errorf("property %q is not an oauth2 value: %w", name, err)
	}
	return v, true, nil
}

// AccessToken returns the access token of the OAUTH2 property name or
// ErrInvalidBearerToken when there is none.
func (p Props) AccessToken(name string) (string, error) {
	v, ok, err := p.OAuth2(name)
	if err != nil || !ok || v.AccessToken == "" {
		return "", ErrInvalidBearerToken
	}
	return v.AccessToken, nil
}

// Schema renders the property definitions as a JSON Schema object.
func Schema(defs []PropDef) map[string]any {
	properties := make(map[string]any, len(defs))
	required := make([]any, 0)
	for _, d := range defs {
		prop := propSchema(d.Type)
		if d.Description != "" {
			prop["description"] = d.Description
		}
		if d.DisplayName != "" {
			prop["title"] = d.DisplayName
		}
		properties[d.Name] = prop
		if d.Required {
			required = append(required, d.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func propSchema(t PropType) map[string]any {
	switch t {
	case PropShortText, PropSecretText:
		return map[string]any{"type": "string"}
	case PropNumber:
		return map[string]any{"type": "number"}
	case PropCheckbox:
		return map[string]any{"type": "boolean"}
	case PropObject, PropOAuth2:
		return map[string]any{"type": "object"}
	case PropDropdown:
		return map[string]any{"type": []any{"string", "number", "object"}}
	default:
		return map[string]any{}
	}
}

// ValidateProps checks resolved values against the definitions.
func ValidateProps(defs []PropDef, props Props) error {
	schemaJSON, err := json.Marshal(Schema(defs))
	if err != nil {
		return fmt.Errorf("encoding props schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return err
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("mem://props.json", doc); err != nil {
		return err
	}
	sch, err := c.Compile("mem://props.json")
	if err != nil {
		return fmt.Errorf("compiling props schema: %w", err)
	}

	// Round-trip through JSON so YAML-decoded numbers and maps validate uniformly.
	b, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encoding props: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return errmodel.Validation("invalid_props", strings.TrimSpace(err.Error()), nil)
	}
	return nil
}
