package engine

import (
	"fmt"
	"regexp"
	"strings"

	"pieces/internal/errmodel"
	"pieces/internal/piece"
	"pieces/internal/types"
)

var instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// ValidationError collects multiple validation issues.
type ValidationError struct {
	Errors []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(ve.Errors, "\n  - "))
}

func (ve *ValidationError) Add(msg string) {
	ve.Errors = append(ve.Errors, msg)
}

func (ve *ValidationError) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ErrModel reports the aggregate as one validation error.
func (ve *ValidationError) ErrModel() *errmodel.Error {
	return errmodel.Validation("invalid_instance", ve.Error(), map[string]any{"errors": ve.Errors})
}

// ValidateInstance checks an instance definition against the registry. Prop
// values that are still ${{ }} expressions are checked for known roots only;
// their resolved values are validated when a hook runs.
func ValidateInstance(inst *types.InstanceDef, registry *piece.Registry) error {
	ve := &ValidationError{}

	if inst.Name == "" {
		ve.Add("instance 'name' is required")
	} else if !instanceNameRegex.MatchString(inst.Name) {
		ve.Add(fmt.Sprintf("instance name %q may only contain letters, digits, '.', '_' and '-'", inst.Name))
	}

	var trigger piece.Trigger
	switch {
	case inst.Piece == "":
		ve.Add("instance 'piece' is required")
	case !registry.Has(inst.Piece):
		ve.Add(fmt.Sprintf("piece %q not found in registry", inst.Piece))
	case inst.Trigger == "":
		ve.Add("instance 'trigger' is required")
	default:
		t, err := registry.Trigger(inst.Piece, inst.Trigger)
		if err != nil {
			ve.Add(err.Error())
		} else {
			trigger = t
		}
	}

	if trigger != nil {
		meta := trigger.Meta()
		if inst.Webhook != nil && meta.Strategy != piece.StrategyWebhook {
			ve.Add(fmt.Sprintf("trigger %q is %s; 'webhook' only applies to webhook triggers", meta.Name, meta.Strategy))
		}

		declared := make(map[string]bool, len(meta.Props))
		for _, def := range meta.Props {
			declared[def.Name] = true
			if v, ok := inst.Props[def.Name]; def.Required && (!ok || v == nil) {
				ve.Add(fmt.Sprintf("prop %q is required by %s/%s", def.Name, inst.Piece, meta.Name))
			}
		}
		for name := range inst.Props {
			if !declared[name] {
				ve.Add(fmt.Sprintf("prop %q is not declared by %s/%s", name, inst.Piece, meta.Name))
			}
		}
	}

	validateRefs(inst.Props, ve)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateRefs(v any, ve *ValidationError) {
	switch val := v.(type) {
	case string:
		checkStringRefs(val, ve)
	case map[string]any:
		for _, item := range val {
			validateRefs(item, ve)
		}
	case []any:
		for _, item := range val {
			validateRefs(item, ve)
		}
	}
}

func checkStringRefs(s string, ve *ValidationError) {
	for _, match := range exprRegex.FindAllStringSubmatch(s, -1) {
		expr := strings.TrimSpace(match[1])
		path := strings.TrimSpace(strings.SplitN(expr, "|", 2)[0])
		root, _, _ := strings.Cut(path, ".")

		switch root {
		case "secrets", "env", "instance":
		default:
			ve.Add(fmt.Sprintf("expression %q: unknown variable root %q", match[0], root))
		}
	}
}
