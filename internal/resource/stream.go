package resource

import (
	"fmt"

	"dataresource/internal/schema"
)

// Row is one typed data row. Values align with the schema fields.
type Row struct {
	Number int                `json:"rowNumber"`
	Cells  []any              `json:"cells"`
	Values []any              `json:"values"`
	Errors []schema.CellError `json:"errors,omitempty"`

	fields []string
}

// Valid reports whether every cell cast cleanly.
func (r *Row) Valid() bool { return len(r.Errors) == 0 }

// Fields returns the field names the values align with.
func (r *Row) Fields() []string { return r.fields }

// Get returns the value of a field by name.
func (r *Row) Get(name string) (any, bool) {
	for i, f := range r.fields {
		if f == name && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map returns the row keyed by field name.
func (r *Row) Map() map[string]any {
	m := make(map[string]any, len(r.fields))
	for i, f := range r.fields {
		if i < len(r.Values) {
			m[f] = r.Values[i]
		}
	}
	return m
}

// CellStream walks raw cell rows. The first rows are the header unless a row
// stream already consumed them.
type CellStream struct {
	s     *session
	cells []any
	err   error
	done  bool
}

// Next advances to the next row. It returns false at the end or on error.
func (c *CellStream) Next() bool {
	if c.done {
		return false
	}
	row, err := c.s.nextRaw()
	if err != nil {
		c.done = true
		if !isEOF(err) {
			c.err = err
		}
		return false
	}
	c.cells = row.cells
	return true
}

func (c *CellStream) Cells() []any { return c.cells }
func (c *CellStream) Err() error   { return c.err }

// RowStream walks typed rows after the header.
type RowStream struct {
	s    *session
	row  *Row
	err  error
	done bool
}

func (rs *RowStream) Next() bool {
	if rs.done {
		return false
	}
	row, err := rs.s.nextRow()
	if err != nil {
		rs.done = true
		if !isEOF(err) {
			rs.err = err
		}
		return false
	}
	rs.row = row
	return true
}

func (rs *RowStream) Row() *Row  { return rs.row }
func (rs *RowStream) Err() error { return rs.err }

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
