package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"dataresource/internal/schema"
)

// ── Step ───────────────────────────────────────────────────
// Steps are composable table transforms applied in order. Row steps walk
// the rows once; table steps (sort, transpose) need the whole table anyway.

type Step interface {
	Apply(*Table) error
}

// StepFunc adapts a plain function to the Step interface.
type StepFunc func(*Table) error

func (f StepFunc) Apply(t *Table) error { return f(t) }

// ── Row steps ──────────────────────────────────────────────

// RowFilter keeps rows where Field compares to Value under Op.
type RowFilter struct {
	Field string
	Op    string // "eq" | "neq" | "gt" | "gte" | "lt" | "lte" | "contains"
	Value any
}

func (s *RowFilter) Apply(t *Table) error {
	idx, err := t.mustIndex(s.Field)
	if err != nil {
		return fmt.Errorf("row-filter: %w", err)
	}
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		var v any
		if idx < len(row) {
			v = row[idx]
		}
		ok, err := s.match(v)
		if err != nil {
			return fmt.Errorf("row-filter: %w", err)
		}
		if ok {
			kept = append(kept, row)
		}
	}
	t.Rows = kept
	return nil
}

func (s *RowFilter) match(v any) (bool, error) {
	switch s.Op {
	case "eq", "":
		return compareValues(v, s.Value) == 0, nil
	case "neq":
		return compareValues(v, s.Value) != 0, nil
	case "gt":
		return v != nil && compareValues(v, s.Value) > 0, nil
	case "gte":
		return v != nil && compareValues(v, s.Value) >= 0, nil
	case "lt":
		return v != nil && compareValues(v, s.Value) < 0, nil
	case "lte":
		return v != nil && compareValues(v, s.Value) <= 0, nil
	case "contains":
		return v != nil && strings.Contains(fmt.Sprint(v), fmt.Sprint(s.Value)), nil
	default:
		return false, fmt.Errorf("unknown operator %q", s.Op)
	}
}

// RowLimit keeps the first Count rows.
type RowLimit struct {
	Count int
}

func (s *RowLimit) Apply(t *Table) error {
	if s.Count < 0 {
		return fmt.Errorf("row-limit: negative count %d", s.Count)
	}
	if len(t.Rows) > s.Count {
		t.Rows = t.Rows[:s.Count]
	}
	return nil
}

// RowDedupe drops rows whose values for Fields were already seen. No fields
// means the whole row.
type RowDedupe struct {
	Fields []string
}

func (s *RowDedupe) Apply(t *Table) error {
	idx := make([]int, 0, len(s.Fields))
	for _, f := range s.Fields {
		i, err := t.mustIndex(f)
		if err != nil {
			return fmt.Errorf("row-dedupe: %w", err)
		}
		idx = append(idx, i)
	}
	seen := make(map[string]bool)
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		key := rowKey(row, idx)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, row)
	}
	t.Rows = kept
	return nil
}

func rowKey(row []any, idx []int) string {
	var b strings.Builder
	if len(idx) == 0 {
		for _, v := range row {
			fmt.Fprintf(&b, "%v\x1f", v)
		}
		return b.String()
	}
	for _, i := range idx {
		if i < len(row) {
			fmt.Fprintf(&b, "%v", row[i])
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}

// RowSort orders rows by Field. Nil values sort first.
type RowSort struct {
	Field     string
	Direction string // "asc" | "desc"
}

func (s *RowSort) Apply(t *Table) error {
	idx, err := t.mustIndex(s.Field)
	if err != nil {
		return fmt.Errorf("row-sort: %w", err)
	}
	dir := 1
	if s.Direction == "desc" {
		dir = -1
	}
	at := func(row []any) any {
		if idx < len(row) {
			return row[idx]
		}
		return nil
	}
	sort.SliceStable(t.Rows, func(i, j int) bool {
		return compareValues(at(t.Rows[i]), at(t.Rows[j]))*dir < 0
	})
	return nil
}

// ── Field steps ────────────────────────────────────────────

// FieldRename renames labels; unknown names are an error.
type FieldRename struct {
	Mapping map[string]string // old → new
}

func (s *FieldRename) Apply(t *Table) error {
	for old, name := range s.Mapping {
		i, err := t.mustIndex(old)
		if err != nil {
			return fmt.Errorf("field-rename: %w", err)
		}
		t.Labels[i] = name
	}
	return nil
}

// FieldSelect keeps the listed fields in the listed order.
type FieldSelect struct {
	Fields []string
}

func (s *FieldSelect) Apply(t *Table) error {
	idx := make([]int, len(s.Fields))
	for n, f := range s.Fields {
		i, err := t.mustIndex(f)
		if err != nil {
			return fmt.Errorf("field-select: %w", err)
		}
		idx[n] = i
	}
	for r, row := range t.Rows {
		out := make([]any, len(idx))
		for n, i := range idx {
			if i < len(row) {
				out[n] = row[i]
			}
		}
		t.Rows[r] = out
	}
	t.Labels = append([]string(nil), s.Fields...)
	return nil
}

// FieldCast converts a field's values to a schema type.
type FieldCast struct {
	Field  string
	Type   string
	Format string
}

func (s *FieldCast) Apply(t *Table) error {
	idx, err := t.mustIndex(s.Field)
	if err != nil {
		return fmt.Errorf("field-cast: %w", err)
	}
	if !schema.KnownType(s.Type) {
		return fmt.Errorf("field-cast: unknown type %q", s.Type)
	}
	f := schema.Field{Name: s.Field, Type: s.Type, Format: s.Format}
	for r, row := range t.Rows {
		if idx >= len(row) || row[idx] == nil {
			continue
		}
		v, err := f.Cast(castable(row[idx]))
		if err != nil {
			return fmt.Errorf("field-cast: row %d: %w", r+1, err)
		}
		row[idx] = v
	}
	return nil
}

// castable renders typed values back to text so any type can be re-cast.
func castable(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339)
	case int, int64, float64, bool:
		return cast.ToString(x)
	}
	return v
}

// FieldUnpack spreads an object or array field into new fields.
type FieldUnpack struct {
	Field    string
	To       []string
	Preserve bool
}

func (s *FieldUnpack) Apply(t *Table) error {
	idx, err := t.mustIndex(s.Field)
	if err != nil {
		return fmt.Errorf("field-unpack: %w", err)
	}
	if len(s.To) == 0 {
		return fmt.Errorf("field-unpack: no target fields")
	}
	for r, row := range t.Rows {
		var v any
		if idx < len(row) {
			v = row[idx]
		}
		parts := make([]any, len(s.To))
		switch x := v.(type) {
		case nil:
		case []any:
			copy(parts, x)
		case map[string]any:
			for n, name := range s.To {
				parts[n] = x[name]
			}
		default:
			return fmt.Errorf("field-unpack: row %d: %q is %T, not an object or array", r+1, s.Field, v)
		}
		if !s.Preserve && idx < len(row) {
			row = append(row[:idx:idx], row[idx+1:]...)
		}
		t.Rows[r] = append(row, parts...)
	}
	if !s.Preserve {
		t.Labels = append(t.Labels[:idx:idx], t.Labels[idx+1:]...)
	}
	t.Labels = append(t.Labels, s.To...)
	return nil
}

// ── Table steps ────────────────────────────────────────────

// TableTranspose swaps rows and columns. The first column becomes the new
// header.
type TableTranspose struct{}

func (TableTranspose) Apply(t *Table) error {
	grid := t.Grid()
	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	out := make([][]any, width)
	for j := 0; j < width; j++ {
		col := make([]any, len(grid))
		for i, row := range grid {
			if j < len(row) {
				col[i] = row[j]
			}
		}
		out[j] = col
	}
	if width == 0 {
		t.Labels, t.Rows = nil, nil
		return nil
	}
	labels := make([]string, len(out[0]))
	for i, v := range out[0] {
		labels[i] = cast.ToString(v)
	}
	t.Labels, t.Rows = labels, out[1:]
	return nil
}

// ── Helpers ────────────────────────────────────────────────

// compareValues orders numbers numerically, times chronologically and
// everything else by text. Nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if ta, ok := a.(time.Time); ok {
		if tb, err := cast.ToTimeE(b); err == nil {
			return ta.Compare(tb)
		}
	}
	fa, errA := cast.ToFloat64E(a)
	fb, errB := cast.ToFloat64E(b)
	if errA == nil && errB == nil && !isBool(a) && !isBool(b) {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}
