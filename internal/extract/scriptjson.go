package extract

import (
	"encoding/json"
	"strings"
)

// Markers for the serialized front-end state AliExpress embeds in
// script content. The set tracks the storefront generations observed
// in the wild; order is newest first.
var aliexpressMarkers = []string{
	"window.runParams",
	"window.__DEFAULT_DATA__",
	"__AERENDER_DATA__",
	"runParams",
}

// extractScriptJSON locates a `marker = { ... }` assignment in page
// script content and decodes the object literal. The object is found
// by brace matching rather than a regex so nested braces and string
// escapes don't truncate it.
func extractScriptJSON(body []byte, markers []string) (map[string]any, bool) {
	text := string(body)

	for _, marker := range markers {
		from := 0
		for {
			idx := strings.Index(text[from:], marker)
			if idx < 0 {
				break
			}
			idx += from
			blob, ok := jsonObjectAfter(text, idx+len(marker))
			if ok {
				var data map[string]any
				if err := json.Unmarshal([]byte(blob), &data); err == nil && len(data) > 0 {
					return data, true
				}
			}
			from = idx + len(marker)
		}
	}
	return nil, false
}

// jsonObjectAfter scans past "= " and returns the balanced {...} that
// follows, honoring string literals and escapes.
func jsonObjectAfter(text string, pos int) (string, bool) {
	for pos < len(text) {
		c := text[pos]
		if c == '{' {
			break
		}
		if c != '=' && c != ' ' && c != '\t' && c != '\n' && c != '\r' {
			return "", false
		}
		pos++
	}
	if pos >= len(text) || text[pos] != '{' {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := pos; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString:
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[pos : i+1], true
			}
		}
	}
	return "", false
}

// walkString descends a decoded JSON tree along a key path and
// returns the string at the leaf.
func walkString(root map[string]any, path ...string) string {
	v := walk(root, path...)
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return anyToString(t)
	default:
		return ""
	}
}

// walkList descends to a list leaf.
func walkList(root map[string]any, path ...string) []any {
	if l, ok := walk(root, path...).([]any); ok {
		return l
	}
	return nil
}

func walk(root map[string]any, path ...string) any {
	var current any = root
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}
