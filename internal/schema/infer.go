package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// DefaultConfidence is the share of non-missing sample values a type must
// match to be chosen.
const DefaultConfidence = 0.9

// DefaultSampleSize is the number of data rows inspected by inference.
const DefaultSampleSize = 100

// InferOptions tunes Infer.
type InferOptions struct {
	Confidence    float64
	MissingValues []string
}

// candidate types, most specific first
var candidates = []Field{
	{Type: TypeBoolean, TrueValues: []string{"true", "True", "TRUE"}, FalseValues: []string{"false", "False", "FALSE"}},
	{Type: TypeInteger},
	{Type: TypeNumber},
	{Type: TypeDate},
	{Type: TypeTime},
	{Type: TypeDatetime},
	{Type: TypeObject},
	{Type: TypeArray},
	{Type: TypeString},
}

// Infer builds a schema from header labels and a sample of raw rows.
// Columns with no non-missing values are typed "any".
func Infer(labels []string, sample [][]any, opts InferOptions) *Schema {
	confidence := opts.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = DefaultConfidence
	}
	s := &Schema{MissingValues: opts.MissingValues}

	width := len(labels)
	for _, row := range sample {
		if len(row) > width {
			width = len(row)
		}
	}

	seen := map[string]int{}
	for col := 0; col < width; col++ {
		name := ""
		if col < len(labels) {
			name = strings.TrimSpace(labels[col])
		}
		if name == "" {
			name = fmt.Sprintf("field%d", col+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s%d", name, n+1)
		} else {
			seen[name] = 1
		}
		s.Fields = append(s.Fields, Field{Name: name, Type: inferColumn(s, sample, col, confidence)})
	}
	return s
}

func inferColumn(s *Schema, sample [][]any, col int, confidence float64) string {
	var values []any
	for _, row := range sample {
		if col >= len(row) || s.IsMissing(row[col]) {
			continue
		}
		values = append(values, row[col])
	}
	if len(values) == 0 {
		return TypeAny
	}

	if typ, ok := nativeType(values); ok {
		return typ
	}

	threshold := confidence * float64(len(values))
	for i := range candidates {
		c := candidates[i]
		matched := 0
		for _, v := range values {
			if _, err := c.Cast(v); err == nil {
				matched++
			}
		}
		if float64(matched) >= threshold {
			return c.Type
		}
	}
	return TypeString
}

// nativeType types a column whose values were decoded into Go types (JSON,
// databases) and all share one kind.
func nativeType(values []any) (string, bool) {
	typ := ""
	for _, v := range values {
		t := ""
		switch v.(type) {
		case string:
			return "", false
		case bool:
			t = TypeBoolean
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			t = TypeInteger
		case float32, float64:
			t = TypeNumber
		case time.Time:
			t = TypeDatetime
		case map[string]any:
			t = TypeObject
		default:
			if reflect.ValueOf(v).Kind() == reflect.Slice {
				t = TypeArray
			} else {
				t = TypeAny
			}
		}
		switch {
		case typ == "":
			typ = t
		case typ == TypeInteger && t == TypeNumber, typ == TypeNumber && t == TypeInteger:
			typ = TypeNumber
		case typ != t:
			return TypeAny, true
		}
	}
	return typ, true
}
