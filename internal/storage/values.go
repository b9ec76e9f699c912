package storage

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Drivers hand scanned values back in different Go types (pgx returns int16 /
// int32 for small integer columns, database/sql drivers return int64 or
// []byte). The helpers below coerce them so callers never assume a backend.

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory index keys.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// AsInt64 coerces an integer-like scanned value. ok is false for nil and for
// values that are not integral.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int16:
		return int64(t), true
	case int8:
		return int64(t), true
	case int:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case float32:
		return AsInt64(float64(t))
	case []byte:
		return AsInt64(string(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// AsFloat64 coerces a numeric scanned value.
func AsFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case []byte:
		return AsFloat64(string(t))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case nil:
		return 0, false
	default:
		if n, ok := AsInt64(v); ok {
			return float64(n), true
		}
		return 0, false
	}
}

// AsString coerces a textual scanned value. ok is false for nil.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return fmt.Sprint(v), true
	}
}

// AsTime coerces a scanned timestamp. SQLite hands timestamps back as TEXT in
// whatever layout the writer used; the accepted layouts are:
//   - RFC3339Nano / RFC3339
//   - "2006-01-02 15:04:05Z07:00" (optionally with fractional seconds)
//   - "2006-01-02 15:04:05" (interpreted as UTC)
func AsTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case []byte:
		return AsTime(string(t))
	case string:
		ts, err := ParseTime(t)
		return ts, err == nil
	default:
		return time.Time{}, false
	}
}

// ParseTime parses the textual timestamp layouts listed on AsTime.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
