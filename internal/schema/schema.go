package schema

import (
	"errors"
	"fmt"
)

// Field types understood by Cast and Infer.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeNumber   = "number"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeTime     = "time"
	TypeDatetime = "datetime"
	TypeYear     = "year"
	TypeObject   = "object"
	TypeArray    = "array"
	TypeAny      = "any"
)

var knownTypes = map[string]bool{
	TypeString: true, TypeInteger: true, TypeNumber: true, TypeBoolean: true,
	TypeDate: true, TypeTime: true, TypeDatetime: true, TypeYear: true,
	TypeObject: true, TypeArray: true, TypeAny: true,
}

// KnownType reports whether typ is a supported field type.
func KnownType(typ string) bool { return knownTypes[typ] }

// Constraints restrict the values of a field.
type Constraints struct {
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// Field describes one column.
type Field struct {
	Name        string       `json:"name" yaml:"name"`
	Type        string       `json:"type,omitempty" yaml:"type,omitempty"`
	Format      string       `json:"format,omitempty" yaml:"format,omitempty"`
	Title       string       `json:"title,omitempty" yaml:"title,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	TrueValues  []string     `json:"trueValues,omitempty" yaml:"trueValues,omitempty"`
	FalseValues []string     `json:"falseValues,omitempty" yaml:"falseValues,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// Required reports whether the field carries a required constraint.
func (f *Field) Required() bool {
	return f.Constraints != nil && f.Constraints.Required
}

// Schema is a Table Schema: ordered fields plus table-level settings.
type Schema struct {
	Fields        []Field  `json:"fields" yaml:"fields"`
	MissingValues []string `json:"missingValues,omitempty" yaml:"missingValues,omitempty"`
	PrimaryKey    []string `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// GetField returns the field with the given name.
func (s *Schema) GetField(name string) (*Field, bool) {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i], true
		}
	}
	return nil, false
}

// GetMissingValues returns the values treated as missing; default [""].
func (s *Schema) GetMissingValues() []string {
	if s == nil || s.MissingValues == nil {
		return []string{""}
	}
	return s.MissingValues
}

// IsMissing reports whether a raw cell counts as missing.
func (s *Schema) IsMissing(cell any) bool {
	if cell == nil {
		return true
	}
	str, ok := cell.(string)
	if !ok {
		return false
	}
	for _, mv := range s.GetMissingValues() {
		if str == mv {
			return true
		}
	}
	return false
}

// Validate checks field names and types.
func (s *Schema) Validate() error {
	if s == nil {
		return nil
	}
	var errs []error
	seen := map[string]bool{}
	for i, f := range s.Fields {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("field %d: name is required", i+1))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("field %q: duplicate name", f.Name))
		}
		seen[f.Name] = true
		if f.Type != "" && !knownTypes[f.Type] {
			errs = append(errs, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type))
		}
	}
	for _, pk := range s.PrimaryKey {
		if !seen[pk] {
			errs = append(errs, fmt.Errorf("primaryKey %q: no such field", pk))
		}
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	c := &Schema{
		Fields:        make([]Field, len(s.Fields)),
		MissingValues: cloneStrings(s.MissingValues),
		PrimaryKey:    cloneStrings(s.PrimaryKey),
	}
	for i, f := range s.Fields {
		f.TrueValues = cloneStrings(f.TrueValues)
		f.FalseValues = cloneStrings(f.FalseValues)
		if f.Constraints != nil {
			cc := *f.Constraints
			f.Constraints = &cc
		}
		c.Fields[i] = f
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// ── Row casting ────────────────────────────────────────────

// CellError is a cast or constraint failure for one cell.
type CellError struct {
	FieldName   string `json:"fieldName"`
	FieldNumber int    `json:"fieldNumber"`
	Cell        any    `json:"cell"`
	Note        string `json:"note"`
}

func (e CellError) Error() string {
	return fmt.Sprintf("field %q (%d): %s", e.FieldName, e.FieldNumber, e.Note)
}

// CastRow converts raw cells into typed values, one per field. Cells beyond
// the fields are dropped; missing cells become nil. Failures are reported per
// cell, and the failing cell's value is nil.
func (s *Schema) CastRow(cells []any) ([]any, []CellError) {
	values := make([]any, len(s.Fields))
	var errs []CellError
	for i := range s.Fields {
		f := &s.Fields[i]
		var cell any
		if i < len(cells) {
			cell = cells[i]
		}
		if s.IsMissing(cell) {
			if f.Required() {
				errs = append(errs, CellError{FieldName: f.Name, FieldNumber: i + 1, Cell: cell, Note: "constraint required"})
			}
			continue
		}
		v, err := f.Cast(cell)
		if err != nil {
			errs = append(errs, CellError{FieldName: f.Name, FieldNumber: i + 1, Cell: cell, Note: err.Error()})
			continue
		}
		values[i] = v
	}
	return values, errs
}
