package server

import (
	"net/url"
	"sort"
	"strings"
)

// decodeForm turns bracketed form keys into nested maps, the shape Mailchimp
// webhooks are posted in:
//
//	type=subscribe&data[merges][EMAIL]=a@b.c  ->  {"type": "subscribe", "data": {"merges": {"EMAIL": "a@b.c"}}}
//
// A trailing "[]" or a repeated key yields a list. When a key is both a value
// and a parent, the nested form wins.
func decodeForm(values url.Values) map[string]any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any)
	for _, key := range keys {
		vals := values[key]
		path, list := splitFormKey(key)
		if len(path) == 0 {
			continue
		}

		var v any
		if list || len(vals) > 1 {
			items := make([]any, len(vals))
			for i, s := range vals {
				items[i] = s
			}
			v = items
		} else {
			v = vals[0]
		}
		setPath(out, path, v)
	}
	return out
}

// splitFormKey splits "data[merges][EMAIL]" into [data merges EMAIL]. list
// reports a trailing "[]".
func splitFormKey(key string) (path []string, list bool) {
	head, rest, found := strings.Cut(key, "[")
	if head != "" {
		path = append(path, head)
	}
	if !found {
		return path, false
	}
	rest = "[" + rest
	for strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			// Unbalanced bracket: keep the remainder as a literal segment.
			path = append(path, rest[1:])
			return path, false
		}
		seg := rest[1:end]
		rest = rest[end+1:]
		if seg == "" {
			list = true
			continue
		}
		path = append(path, seg)
	}
	return path, list
}

func setPath(m map[string]any, path []string, v any) {
	for _, seg := range path[:len(path)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[seg] = child
		}
		m = child
	}
	last := path[len(path)-1]
	if _, isMap := m[last].(map[string]any); isMap {
		return
	}
	m[last] = v
}
