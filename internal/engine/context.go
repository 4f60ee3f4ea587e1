package engine

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"pieces/internal/types"
)

var exprRegex = regexp.MustCompile(`\$\{\{\s*(.+?)\s*\}\}`)

// Resolver holds the values available to ${{ }} expressions in instance props.
type Resolver struct {
	Instance *types.InstanceDef
	Secrets  map[string]string
	Env      map[string]string
}

// NewResolver creates a Resolver over the process environment.
func NewResolver(inst *types.InstanceDef, secrets map[string]string) *Resolver {
	env := make(map[string]string)
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}
	if secrets == nil {
		secrets = map[string]string{}
	}
	return &Resolver{Instance: inst, Secrets: secrets, Env: env}
}

// ResolveMap recursively resolves all expressions in a map.
func (rv *Resolver) ResolveMap(m map[string]any) (map[string]any, error) {
	result := make(map[string]any, len(m))
	for k, v := range m {
		resolved, err := rv.resolveValue(v)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}

func (rv *Resolver) resolveValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return rv.resolveString(val)
	case map[string]any:
		return rv.ResolveMap(val)
	case []any:
		resolved := make([]any, len(val))
		for i, item := range val {
			r, err := rv.resolveValue(item)
			if err != nil {
				return nil, err
			}
			resolved[i] = r
		}
		return resolved, nil
	default:
		return v, nil
	}
}

// resolveString replaces all ${{ ... }} expressions in a string.
func (rv *Resolver) resolveString(s string) (any, error) {
	// A string that is exactly one expression keeps the value's type.
	if match := exprRegex.FindStringSubmatch(s); match != nil && match[0] == s {
		return rv.evaluateExpr(match[1])
	}

	var evalErr error
	result := exprRegex.ReplaceAllStringFunc(s, func(match string) string {
		sub := exprRegex.FindStringSubmatch(match)
		val, err := rv.evaluateExpr(sub[1])
		if err != nil {
			evalErr = err
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	return result, evalErr
}

// evaluateExpr evaluates a single expression like "secrets.AIRTABLE_TOKEN | trim".
func (rv *Resolver) evaluateExpr(expr string) (any, error) {
	parts := strings.SplitN(expr, "|", 2)
	path := strings.TrimSpace(parts[0])

	val, err := rv.resolvePath(path)
	if err != nil {
		return nil, err
	}

	if len(parts) == 2 {
		val, err = applyPipe(val, strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
	}
	return val, nil
}

func (rv *Resolver) resolvePath(path string) (any, error) {
	root, rest, _ := strings.Cut(path, ".")

	switch root {
	case "secrets":
		if rest == "" {
			return nil, fmt.Errorf("incomplete secrets reference: %q", path)
		}
		val, ok := rv.Secrets[rest]
		if !ok {
			return nil, fmt.Errorf("secret %q not defined", rest)
		}
		return val, nil

	case "env":
		if rest == "" {
			return nil, fmt.Errorf("incomplete env reference: %q", path)
		}
		// Unset variables resolve to "" so optional props can reference them.
		return rv.Env[rest], nil

	case "instance":
		if rv.Instance == nil {
			return nil, fmt.Errorf("no instance in scope for %q", path)
		}
		switch rest {
		case "name":
			return rv.Instance.Name, nil
		case "piece":
			return rv.Instance.Piece, nil
		case "trigger":
			return rv.Instance.Trigger, nil
		case "webhook_path":
			return rv.Instance.WebhookPath(), nil
		}
		if key, ok := strings.CutPrefix(rest, "metadata."); ok {
			return rv.Instance.Metadata[key], nil
		}
		return nil, fmt.Errorf("unknown instance field %q", rest)

	default:
		return nil, fmt.Errorf("unknown variable root %q in %q", root, path)
	}
}

func applyPipe(val any, fn string) (any, error) {
	s := fmt.Sprintf("%v", val)
	switch fn {
	case "slugify":
		return slugify(s), nil
	case "upper":
		return strings.ToUpper(s), nil
	case "lower":
		return strings.ToLower(s), nil
	case "trim":
		return strings.TrimSpace(s), nil
	default:
		return nil, fmt.Errorf("unknown pipe function %q", fn)
	}
}

func slugify(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else if r == ' ' || r == '-' || r == '_' {
			b.WriteRune('-')
		}
	}
	result := b.String()
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	return strings.Trim(result, "-")
}
