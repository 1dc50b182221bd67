package payload

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is a decoded webhook or lifecycle JSON body.
type Payload map[string]any

// Parse decodes a JSON object body. A blank body yields a nil payload and no
// error; callers decide whether a payload is required.
func Parse(raw []byte) (Payload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, nil
	}
	var p Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return nil, err
	}
	return p, nil
}

// Lookup walks a dotted path ("timeEntry.id") through nested objects and
// returns the value at the leaf.
func (p Payload) Lookup(path string) (any, bool) {
	if p == nil || path == "" {
		return nil, false
	}
	var current any = map[string]any(p)
	for _, part := range strings.Split(strings.TrimSpace(path), ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the scalar at path rendered as text. Numbers render without
// a trailing ".0" when integral, booleans as "true"/"false", and objects or
// arrays as their JSON encoding. Missing paths and nulls yield "".
func (p Payload) String(path string) string {
	v, ok := p.Lookup(path)
	if !ok || v == nil {
		return ""
	}
	return Stringify(v)
}

// Bool returns the boolean at path, false when absent or not a boolean.
func (p Payload) Bool(path string) bool {
	v, ok := p.Lookup(path)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// StringSlice returns the string elements of the array at path.
func (p Payload) StringSlice(path string) []string {
	v, ok := p.Lookup(path)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Object returns the nested object at path, nil when absent.
func (p Payload) Object(path string) Payload {
	v, ok := p.Lookup(path)
	if !ok {
		return nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return Payload(obj)
}

// Stringify renders a decoded JSON value as text using the same rules as
// String.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
