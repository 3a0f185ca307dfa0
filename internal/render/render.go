// internal/render/render.go

// Package render substitutes dotted-path placeholders in notification
// templates. It is a pure string engine with no knowledge of channels or
// triggers.
package render

import (
	"fmt"
	"regexp"
	"strconv"
)

// placeholderPattern matches both delimiter syntaxes. The double-brace
// alternative comes first so "{{a.b}}" is consumed whole and a later
// single-brace match cannot corrupt it.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}\}|\{\s*([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)\s*\}`)

var pathSplit = regexp.MustCompile(`\.`)

// Render replaces every placeholder whose path resolves into bindings.
// Placeholders may use "{{actor.firstName}}" or "{actor.firstName}"; both
// syntaxes are kept for templates written before the delimiter change.
//
// A path whose leading key is absent from bindings is left verbatim so a
// misconfigured template is visible rather than silently blanked. A path
// whose leading key exists but whose nested value is missing or null renders
// as the empty string, never as "null" or "undefined". Render never fails.
func Render(template string, bindings map[string]interface{}) string {
	if template == "" || len(bindings) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		path := groups[1]
		if path == "" {
			path = groups[2]
		}
		value, known := resolve(bindings, pathSplit.Split(path, -1))
		if !known {
			return match
		}
		return stringify(value)
	})
}

// resolve walks the dotted path. known is false only when the leading key is
// not in the bindings at all; a broken tail under a known key resolves to nil.
func resolve(bindings map[string]interface{}, path []string) (interface{}, bool) {
	head, ok := bindings[path[0]]
	if !ok {
		return nil, false
	}
	current := head
	for _, key := range path[1:] {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, true
		}
		current = m[key]
	}
	// A map is never a renderable value; a partial path under a known key
	// renders as empty, like any other missing nested value, rather than
	// printing Go's map syntax.
	if _, isMap := current.(map[string]interface{}); isMap {
		return nil, true
	}
	return current, true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; print integers without a fraction.
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
