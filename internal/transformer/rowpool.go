// Package transformer holds the streaming stages between a source parser and
// the staging writer: pooled rows, per-column coercion and required-field
// validation.
package transformer

import "sync"

// Row carries one export record through the ingest pipeline, one value per
// staging column. Rows are recycled, so a stage must not touch a Row after
// sending it downstream.
//
// The staging writer ends a Row's life with Release. Stages that abandon a
// Row because the ingest was canceled call Drop: another stage may still be
// reading it, so it must not go back into circulation.
type Row struct {
	V    []any
	Line int // record number in the export, 1-based
}

var rows = sync.Pool{New: func() any { return new(Row) }}

// GetRow hands out a Row sized for width staging columns, every value nil.
func GetRow(width int) *Row {
	r := rows.Get().(*Row)
	if cap(r.V) < width {
		r.V = make([]any, width)
	} else {
		r.V = r.V[:width]
		clear(r.V)
	}
	r.Line = 0
	return r
}

// Free recycles r. Only for rows that nothing else references.
func (r *Row) Free() { rows.Put(r) }

// Drop abandons r without recycling it.
func (r *Row) Drop() {
	r.V, r.Line = nil, 0
}

// Release copies the staging values out of r and recycles it.
func (r *Row) Release() []any {
	vals := append([]any(nil), r.V...)
	r.Free()
	return vals
}
