package pipeline

import (
	"context"
	"fmt"

	"dataresource/internal/resource"
)

// ── Table ──────────────────────────────────────────────────
// The in-memory form steps operate on: labels plus typed rows, each row
// aligned with the labels.

type Table struct {
	Labels []string
	Rows   [][]any
}

// Index returns the position of a label, or -1.
func (t *Table) Index(label string) int {
	for i, l := range t.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// mustIndex is Index with an error for unknown labels.
func (t *Table) mustIndex(label string) (int, error) {
	i := t.Index(label)
	if i < 0 {
		return -1, fmt.Errorf("field %q not found", label)
	}
	return i, nil
}

// Records returns the rows keyed by label.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]any, len(t.Labels))
		for j, l := range t.Labels {
			if j < len(row) {
				m[l] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Grid returns the header followed by the rows.
func (t *Table) Grid() [][]any {
	grid := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Labels))
	for i, l := range t.Labels {
		header[i] = l
	}
	grid = append(grid, header)
	return append(grid, t.Rows...)
}

// ReadTable materializes a resource's typed rows.
func ReadTable(ctx context.Context, r *resource.Resource) (*Table, error) {
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	defer r.Close()

	rs, err := r.RowStream()
	if err != nil {
		return nil, err
	}
	t := &Table{}
	for rs.Next() {
		row := rs.Row()
		if t.Labels == nil {
			t.Labels = append([]string(nil), row.Fields()...)
		}
		t.Rows = append(t.Rows, row.Values)
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	if t.Labels == nil {
		t.Labels = r.Header()
	}
	return t, nil
}
