package engine

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pieces/internal/errmodel"
	"pieces/internal/piece"
	"pieces/internal/types"
)

func testRegistry() *piece.Registry {
	r := piece.NewRegistry()
	r.Register(&stubPiece{triggers: []piece.Trigger{
		&stubTrigger{name: "poll", strategy: piece.StrategyPolling},
		&stubTrigger{name: "hook", strategy: piece.StrategyWebhook},
	}})
	return r
}

func TestValidateInstanceValid(t *testing.T) {
	assert.NoError(t, ValidateInstance(testInstance("contacts", "poll"), testRegistry()))

	hook := testInstance("subs", "hook")
	hook.Webhook = &types.WebhookDef{Path: "/mailchimp/subs"}
	assert.NoError(t, ValidateInstance(hook, testRegistry()))
}

func TestValidateInstanceMissingFields(t *testing.T) {
	err := ValidateInstance(&types.InstanceDef{}, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'name' is required")
	assert.Contains(t, err.Error(), "'piece' is required")
}

func TestValidateInstanceBadName(t *testing.T) {
	err := ValidateInstance(testInstance("has spaces", "poll"), testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "may only contain")
}

func TestValidateInstanceUnknownPiece(t *testing.T) {
	inst := testInstance("x", "poll")
	inst.Piece = "nonexistent"
	err := ValidateInstance(inst, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in registry")
}

func TestValidateInstanceUnknownTrigger(t *testing.T) {
	err := ValidateInstance(testInstance("x", "nope"), testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has no trigger "nope"`)
}

func TestValidateInstanceProps(t *testing.T) {
	inst := testInstance("x", "poll")
	delete(inst.Props, "authentication")
	inst.Props["colour"] = "blue"

	err := ValidateInstance(inst, testRegistry())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
	assert.Contains(t, err.Error(), `prop "authentication" is required`)
	assert.Contains(t, err.Error(), `prop "colour" is not declared`)
}

func TestValidateInstanceWebhookOnPollingTrigger(t *testing.T) {
	inst := testInstance("x", "poll")
	inst.Webhook = &types.WebhookDef{Path: "/x"}
	err := ValidateInstance(inst, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only applies to webhook triggers")
}

func TestValidateInstanceExpressionRoots(t *testing.T) {
	inst := testInstance("x", "poll")
	inst.Props["label"] = "${{ steps.fetch.output.name }}"
	err := ValidateInstance(inst, testRegistry())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown variable root "steps"`)
}

func TestValidationErrorModel(t *testing.T) {
	ve := &ValidationError{}
	ve.Add("one")
	ve.Add("two")

	ce := errmodel.From(ve)
	require.NotNil(t, ce)
	assert.Equal(t, errmodel.CategoryValidation, ce.Category)
	assert.Equal(t, http.StatusBadRequest, errmodel.HTTPStatus(ce))
}
