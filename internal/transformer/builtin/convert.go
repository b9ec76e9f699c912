// Package builtin contains the scalar converters used while staging raw
// listing exports.
package builtin

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmpty      = errors.New("empty value")
	ErrOutOfRange = errors.New("value out of range")
)

// ParseDecimal parses a float accepting either '.' or ',' as the decimal
// separator ("45,5" == 45.5). NaN and Inf are rejected.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse decimal %q: %w", s, ErrOutOfRange)
	}
	return f, nil
}

// ParseIntViaFloat parses s as a decimal and truncates toward zero, so
// exports that write "1764615.0" still yield an integer.
func ParseIntViaFloat(s string) (int64, error) {
	f, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return 0, fmt.Errorf("parse int %q: %w", s, ErrOutOfRange)
	}
	return int64(t), nil
}

// ParseTinyInt is ParseIntViaFloat restricted to 0..255.
func ParseTinyInt(s string) (int64, error) {
	n, err := ParseIntViaFloat(s)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("parse tinyint %q: %w", s, ErrOutOfRange)
	}
	return n, nil
}

// TruncateRunes cuts s to at most n runes without splitting a code point.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// HasEdgeSpace reports whether s starts or ends with whitespace.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	return unicode.IsSpace(first) || unicode.IsSpace(last)
}
