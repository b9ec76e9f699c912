package transformer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"olxwarehouse/internal/transformer/builtin"
)

// Coercion kinds understood by CoerceSpec.Types.
const (
	KindText    = "text"
	KindFloat   = "float"
	KindTinyInt = "tinyint"
	KindInt     = "int"
	KindBigInt  = "bigint"
)

// CoerceSpec maps column name -> kind. Columns without an entry stay as the
// parser produced them.
type CoerceSpec struct {
	Types map[string]string

	// MaxTextLen truncates text columns to this many runes; 0 disables it.
	MaxTextLen int
}

// BuildCoerceSpecFromTypes normalizes kind names (case, surrounding space)
// into a CoerceSpec.
func BuildCoerceSpecFromTypes(types map[string]string, maxTextLen int) CoerceSpec {
	out := make(map[string]string, len(types))
	for col, kind := range types {
		out[col] = strings.ToLower(strings.TrimSpace(kind))
	}
	return CoerceSpec{Types: out, MaxTextLen: maxTextLen}
}

// ValidateSpecSanity rejects specs that name unknown columns or kinds.
func ValidateSpecSanity(columns []string, spec CoerceSpec) error {
	known := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		known[c] = struct{}{}
	}

	var problems []string
	for col, kind := range spec.Types {
		if _, ok := known[col]; !ok {
			problems = append(problems, fmt.Sprintf("column %q not in target columns", col))
		}
		switch kind {
		case KindText, KindFloat, KindTinyInt, KindInt, KindBigInt:
		default:
			problems = append(problems, fmt.Sprintf("column %q: unknown kind %q", col, kind))
		}
	}
	if spec.MaxTextLen < 0 {
		problems = append(problems, "max text length must be >= 0")
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("coerce spec: %s", strings.Join(problems, "; "))
}

type coerceFunc func(dst *any, raw string) bool

type planColumn struct {
	name   string
	coerce coerceFunc // nil: pass through
}

type plan struct {
	cols []planColumn
}

// compilePlan resolves the spec once per column so the row loop does no map
// lookups.
func compilePlan(columns []string, spec CoerceSpec) plan {
	p := plan{cols: make([]planColumn, len(columns))}
	for i, col := range columns {
		p.cols[i].name = col
		switch spec.Types[col] {
		case KindText:
			maxLen := spec.MaxTextLen
			p.cols[i].coerce = func(dst *any, raw string) bool {
				if maxLen > 0 {
					raw = builtin.TruncateRunes(raw, maxLen)
				}
				*dst = raw
				return true
			}
		case KindFloat:
			p.cols[i].coerce = func(dst *any, raw string) bool {
				f, err := builtin.ParseDecimal(raw)
				if err != nil {
					return false
				}
				*dst = f
				return true
			}
		case KindTinyInt:
			p.cols[i].coerce = func(dst *any, raw string) bool {
				n, err := builtin.ParseTinyInt(raw)
				if err != nil {
					return false
				}
				*dst = n
				return true
			}
		case KindInt, KindBigInt:
			p.cols[i].coerce = func(dst *any, raw string) bool {
				n, err := builtin.ParseIntViaFloat(raw)
				if err != nil {
					return false
				}
				*dst = n
				return true
			}
		}
	}
	return p
}

// apply coerces r in place. A value that fails conversion becomes nil and its
// column name is returned; whether that rejects the row is decided by the
// validator.
func (p plan) apply(r *Row) (failed []string) {
	for i := range p.cols {
		c := p.cols[i].coerce
		if c == nil || i >= len(r.V) {
			continue
		}
		s, ok := r.V[i].(string)
		if !ok {
			continue
		}
		if builtin.HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			r.V[i] = nil
			continue
		}
		if !c(&r.V[i], s) {
			r.V[i] = nil
			failed = append(failed, p.cols[i].name)
		}
	}
	return failed
}

// TransformLoopRows coerces rows from in and forwards them to out. Conversion
// failures are reported through onReject but the row still flows on with the
// offending value set to nil.
func TransformLoopRows(
	ctx context.Context,
	columns []string,
	in <-chan *Row,
	out chan<- *Row,
	spec CoerceSpec,
	onReject func(line int, reason string),
) {
	p := compilePlan(columns, spec)

	for r := range in {
		select {
		case <-ctx.Done():
			if r != nil {
				r.Drop()
			}
			continue
		default:
		}

		if r == nil {
			continue
		}
		if len(r.V) != len(columns) {
			if onReject != nil {
				onReject(r.Line, fmt.Sprintf("coerce: row has %d values, want %d", len(r.V), len(columns)))
			}
			r.Free()
			continue
		}

		if failed := p.apply(r); len(failed) > 0 && onReject != nil {
			onReject(r.Line, "coerce: unparseable "+strings.Join(failed, ","))
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}
