package plan

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\[\]-]+)\s*\}\}`)

// GetPath resolves a dotted path like "search.results" inside nested maps.
func GetPath(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// RenderString substitutes {{ path }} references from the context. Missing
// references render empty so optional params do not fail template expansion.
func RenderString(value string, ctx map[string]any) string {
	return refPattern.ReplaceAllStringFunc(value, func(match string) string {
		key := refPattern.FindStringSubmatch(match)[1]
		found, ok := GetPath(ctx, key)
		if !ok || found == nil {
			return ""
		}
		return fmt.Sprintf("%v", found)
	})
}

var wholeRefPattern = regexp.MustCompile(`^\{\{\s*([a-zA-Z0-9_.\[\]-]+)\s*\}\}$`)

// ResolveValue walks a task input and substitutes template references in
// every string, recursing through lists and maps. Inputs are fully resolved
// before dispatch so executors never see template syntax. A string that is
// exactly one reference resolves to the referenced value itself, preserving
// lists and maps instead of stringifying them.
func ResolveValue(value any, ctx map[string]any) any {
	switch v := value.(type) {
	case string:
		if m := wholeRefPattern.FindStringSubmatch(v); m != nil {
			if found, ok := GetPath(ctx, m[1]); ok {
				return found
			}
			return nil
		}
		return RenderString(v, ctx)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = ResolveValue(item, ctx)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = ResolveValue(item, ctx)
		}
		return out
	default:
		return value
	}
}
