package transformer

import (
	"context"
	"fmt"
)

// ValidateLoopRows forwards rows whose required columns are all non-nil and
// frees the rest, reporting each drop via onReject.
func ValidateLoopRows(
	ctx context.Context,
	columns []string,
	required []string,
	in <-chan *Row,
	out chan<- *Row,
	onReject func(line int, reason string),
) {
	reqIdx := make([]int, 0, len(required))
	for _, name := range required {
		reqIdx = append(reqIdx, indexOf(columns, name))
	}

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

		if missing := firstMissing(r, reqIdx, required); missing != "" {
			if onReject != nil {
				onReject(r.Line, fmt.Sprintf("missing required field %q", missing))
			}
			r.Free()
			continue
		}

		select {
		case out <- r:
		case <-ctx.Done():
			r.Drop()
		}
	}
}

func firstMissing(r *Row, reqIdx []int, names []string) string {
	for i, idx := range reqIdx {
		if idx < 0 || idx >= len(r.V) || r.V[idx] == nil {
			return names[i]
		}
	}
	return ""
}

func indexOf(cols []string, name string) int {
	if name == "" {
		return -1
	}
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
