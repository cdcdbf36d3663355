package contextstore

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// InterpolateString replaces every {{path.to.value}} placeholder in str
// with its resolved value from the snapshot's flattened view, the same
// path-segment resolution the teacher's resolver does with gjson over node
// output JSON. A placeholder whose path does not resolve is left as
// literal text — spec.md §4.A's missing-path rule — rather than erroring,
// since a workflow author's typo shouldn't fail an otherwise-successful run.
func (s *Snapshot) InterpolateString(str string) string {
	if !strings.Contains(str, "{{") {
		return str
	}
	view := s.view()
	viewJSON, err := json.Marshal(view)
	if err != nil {
		return str
	}

	return placeholderPattern.ReplaceAllStringFunc(str, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)
		if len(sub) < 2 {
			return match
		}
		path := strings.TrimSpace(sub[1])

		result := gjson.GetBytes(viewJSON, path)
		if !result.Exists() {
			return match
		}
		return scalarOrJSON(result)
	})
}

func scalarOrJSON(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.String()
	case gjson.Number, gjson.True, gjson.False, gjson.Null:
		return r.Raw
	default:
		return r.Raw
	}
}

// ResolvePath resolves a gjson path against the snapshot's flattened view
// and returns the matched value itself (not stringified), for callers that
// need a typed value — e.g. a loop's iterateOver collection — rather than
// template substitution.
func (s *Snapshot) ResolvePath(path string) (interface{}, bool) {
	view := s.view()
	viewJSON, err := json.Marshal(view)
	if err != nil {
		return nil, false
	}
	result := gjson.GetBytes(viewJSON, path)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

// InterpolateValue applies InterpolateString to every string leaf of an
// arbitrary JSON-shaped value (string, map, slice, scalar), mirroring the
// teacher's resolveValue/resolveMap/resolveArray recursion over node
// configs before a handler runs.
func (s *Snapshot) InterpolateValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return s.InterpolateString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, vv := range v {
			out[k] = s.InterpolateValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, vv := range v {
			out[i] = s.InterpolateValue(vv)
		}
		return out
	default:
		return value
	}
}

// InterpolateConfig resolves every value in a node config map, the
// config-wide entry point the teacher exposes as Resolver.ResolveConfig.
func (s *Snapshot) InterpolateConfig(config map[string]interface{}) map[string]interface{} {
	resolved, _ := s.InterpolateValue(config).(map[string]interface{})
	if resolved == nil {
		resolved = map[string]interface{}{}
	}
	return resolved
}
