// Package json streams JSON listing exports into pooled rows.
package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"olxwarehouse/internal/config"
	"olxwarehouse/internal/transformer"
)

// StreamJSONRows decodes records from r and emits one *transformer.Row per
// record, aligned to columns. Scalars are emitted as strings so the coerce
// stage treats JSON and CSV sources alike.
//
// Accepted shapes, which may repeat (JSON Lines):
//   - an array of objects: each element is a record, null elements skipped
//   - an object whose first array field holds objects: that array is the
//     record stream (envelope) and the remaining fields are skipped
//   - any other object: one record
//
// Options:
//   - header_map: source key -> target column
//   - array_join_separator (default ","): joins arrays of strings
func StreamJSONRows(
	ctx context.Context,
	r io.Reader,
	columns []string,
	opt config.Options,
	out chan<- *transformer.Row,
	onErr func(line int, err error),
) error {
	s := &streamer{
		ctx:     ctx,
		dec:     json.NewDecoder(r),
		columns: columns,
		keyOf:   sourceKeys(columns, opt.StringMap("header_map")),
		sep:     opt.String("array_join_separator", ","),
		out:     out,
	}
	s.dec.UseNumber()
	if s.sep == "" {
		s.sep = ","
	}

	err := s.run()
	if err != nil && !errors.Is(err, ctx.Err()) && onErr != nil {
		onErr(s.line+1, err)
	}
	return err
}

type streamer struct {
	ctx     context.Context
	dec     *json.Decoder
	columns []string
	keyOf   [][]string // per column: candidate source keys
	sep     string
	out     chan<- *transformer.Row
	line    int
}

func (s *streamer) run() error {
	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("json: read token: %w", err)
		}

		switch tok {
		case json.Delim('['):
			if _, err := s.streamArray(); err != nil {
				return err
			}
		case json.Delim('{'):
			if err := s.streamObject(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("json: unsupported root token %v (want object or array)", tok)
		}
	}
}

// streamArray consumes the elements and closing ']' of an array whose '['
// was already read. Object elements are emitted as records; string elements
// are collected and returned. Mixing the two is an error.
func (s *streamer) streamArray() (scalars []string, _ error) {
	emitted := false
	for s.dec.More() {
		var v any
		if err := s.dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("json: decode array element: %w", err)
		}
		switch e := v.(type) {
		case nil:
			continue
		case map[string]any:
			if len(scalars) > 0 {
				return nil, errors.New("json: array mixes objects and scalars")
			}
			emitted = true
			if err := s.emit(e); err != nil {
				return nil, err
			}
		default:
			if emitted {
				return nil, fmt.Errorf("json: array element not an object (got %T)", v)
			}
			scalars = append(scalars, scalarString(e, s.sep))
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read array end: %w", err)
	}
	return scalars, nil
}

// streamObject consumes an object whose '{' was already read.
func (s *streamer) streamObject() error {
	single := make(map[string]any)
	envelope := false

	for s.dec.More() {
		keyTok, err := s.dec.Token()
		if err != nil {
			return fmt.Errorf("json: read object key: %w", err)
		}
		key, _ := keyTok.(string)

		if envelope {
			if err := skipValue(s.dec); err != nil {
				return err
			}
			continue
		}

		valTok, err := s.dec.Token()
		if err != nil {
			return fmt.Errorf("json: read value of %q: %w", key, err)
		}
		switch valTok {
		case json.Delim('['):
			before := s.line
			scalars, err := s.streamArray()
			if err != nil {
				return err
			}
			if s.line > before {
				envelope = true
				continue
			}
			single[key] = strings.Join(scalars, s.sep)
		case json.Delim('{'):
			if err := skipContainer(s.dec); err != nil {
				return err
			}
		default:
			single[key] = valTok
		}
	}
	if _, err := s.dec.Token(); err != nil {
		return fmt.Errorf("json: read object end: %w", err)
	}

	if envelope {
		return nil
	}
	return s.emit(single)
}

func (s *streamer) emit(obj map[string]any) error {
	s.line++
	row := transformer.GetRow(len(s.columns))
	row.Line = s.line
	for i, keys := range s.keyOf {
		for _, k := range keys {
			if v, ok := obj[k]; ok {
				row.V[i] = scalarValue(v, s.sep)
				break
			}
		}
	}

	select {
	case s.out <- row:
		return nil
	case <-s.ctx.Done():
		row.Drop()
		return s.ctx.Err()
	}
}

// sourceKeys lists, per column, the keys that may carry its value: the
// column name itself, then any header_map entries pointing at it.
func sourceKeys(columns []string, hm map[string]string) [][]string {
	out := make([][]string, len(columns))
	for i, c := range columns {
		out[i] = []string{c}
		for src, dst := range hm {
			if dst == c && src != c {
				out[i] = append(out[i], src)
			}
		}
	}
	return out
}

// scalarValue returns nil for null, nested objects and mixed arrays, and a
// string for everything else.
func scalarValue(v any, sep string) any {
	switch t := v.(type) {
	case nil, map[string]any:
		return nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, sep)
	default:
		return scalarString(v, sep)
	}
}

func scalarString(v any, sep string) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		if s, ok := scalarValue(t, sep).(string); ok {
			return s
		}
	}
	return fmt.Sprint(v)
}

func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: skip value: %w", err)
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		return skipContainer(dec)
	}
	return nil
}

// skipContainer consumes the rest of an object or array whose opening
// delimiter was already read.
func skipContainer(dec *json.Decoder) error {
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: skip container: %w", err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	return nil
}
