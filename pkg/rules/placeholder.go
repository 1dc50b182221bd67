package rules

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/clockify/addon-sdk-go/pkg/payload"
)

// placeholderPattern matches {{dotted.path}} and {{dotted.path|urlencode}}.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*(\|\s*urlencode\s*)?\}\}`)

// Resolve substitutes payload values into a template string. Unknown paths
// resolve to the empty string; the urlencode modifier path-escapes the
// value so it can be spliced into a request path.
func Resolve(template string, p payload.Payload) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		value := p.String(groups[1])
		if strings.TrimSpace(groups[2]) != "" {
			return url.PathEscape(value)
		}
		return value
	})
}

// ResolveValue substitutes placeholders recursively through a decoded JSON
// value, so action params holding nested request bodies resolve too.
func ResolveValue(v any, p payload.Payload) any {
	switch t := v.(type) {
	case string:
		return Resolve(t, p)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = ResolveValue(val, p)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = ResolveValue(val, p)
		}
		return out
	default:
		return v
	}
}
