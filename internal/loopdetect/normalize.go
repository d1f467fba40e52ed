package loopdetect

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var nonAlphaNum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeAction builds the hash key for one action: the tool name plus
// only its semantically-significant params, per the per-tool table. Two
// actions that differ only in key order or in null/undefined param values
// normalize to the same key.
func normalizeAction(tool string, params map[string]any) string {
	switch tool {
	case "navigate":
		return fmt.Sprintf("navigate|%v", stringParam(params, "url"))

	case "click-element":
		if v, ok := numericParam(params, "index"); ok {
			return fmt.Sprintf("click|%v", v)
		}
		if x, okX := numericParam(params, "x"); okX {
			if y, okY := numericParam(params, "y"); okY {
				return fmt.Sprintf("click|%v,%v", x, y)
			}
		}
		return fmt.Sprintf("click|%v", stringParam(params, "selector"))

	case "type-text":
		target := "focused"
		if v, ok := numericParam(params, "index"); ok {
			target = fmt.Sprintf("%v", v)
		} else if sel := stringParam(params, "selector"); sel != "" {
			target = sel
		}
		text := strings.ToLower(strings.TrimSpace(stringParam(params, "text")))
		return fmt.Sprintf("input|%s|%s", target, text)

	case "scroll":
		direction := stringParam(params, "direction")
		target := "page"
		if v, ok := numericParam(params, "index"); ok {
			target = fmt.Sprintf("%v", v)
		}
		return fmt.Sprintf("scroll|%s|%s", direction, target)

	case "search-page":
		query := stringParam(params, "query")
		tokens := nonAlphaNum.Split(strings.ToLower(query), -1)
		filtered := tokens[:0]
		for _, t := range tokens {
			if t != "" {
				filtered = append(filtered, t)
			}
		}
		sort.Strings(filtered)
		return fmt.Sprintf("search|%s", strings.Join(filtered, "|"))

	default:
		return fmt.Sprintf("%s|%s", tool, canonicalJSON(params))
	}
}

// canonicalJSON strips nil values and renders params as JSON with sorted
// keys (json.Marshal already sorts map[string]any keys alphabetically).
func canonicalJSON(params map[string]any) string {
	cleaned := make(map[string]any, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		cleaned[k] = v
	}
	b, err := json.Marshal(cleaned)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func numericParam(params map[string]any, key string) (any, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return n, true
	case json.Number:
		return n.String(), true
	default:
		return nil, false
	}
}
