package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Options is a free-form option bag decoded from JSON (parser options etc).
// Accessors never fail: a missing or mistyped key yields the default.
type Options map[string]any

// Any returns the raw value for key, or def.
func (o Options) Any(key string, def any) any {
	if v, ok := o[key]; ok && v != nil {
		return v
	}
	return def
}

// String returns a string option.
func (o Options) String(key, def string) string {
	switch v := o[key].(type) {
	case string:
		return v
	case nil:
		return def
	default:
		return def
	}
}

// Bool returns a bool option. "true"/"false" strings are accepted.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Int returns an integer option. JSON numbers decode as float64, so integral
// floats are accepted; numeric strings too.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
		return def
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return def
		}
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Rune returns the first rune of a string option (e.g. a CSV delimiter).
// "\t" and "tab" both mean a tab character.
func (o Options) Rune(key string, def rune) rune {
	s, ok := o[key].(string)
	if !ok || s == "" {
		return def
	}
	if s == `\t` || strings.EqualFold(s, "tab") {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return def
	}
	return r
}

// StringMap returns a map[string]string option; non-string values are skipped.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch v := o[key].(type) {
	case map[string]any:
		for k, raw := range v {
			if s, ok := raw.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, s := range v {
			out[k] = s
		}
	}
	return out
}

// StringSlice returns a []string option; non-string elements are skipped.
func (o Options) StringSlice(key string) []string {
	var out []string
	switch v := o[key].(type) {
	case []any:
		for _, raw := range v {
			if s, ok := raw.(string); ok {
				out = append(out, s)
			}
		}
	case []string:
		out = append(out, v...)
	}
	return out
}
