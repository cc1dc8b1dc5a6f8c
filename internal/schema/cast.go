package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var (
	defaultTrueValues  = []string{"true", "True", "TRUE", "1"}
	defaultFalseValues = []string{"false", "False", "FALSE", "0"}
)

// Cast converts one non-missing cell to the field's type.
func (f *Field) Cast(cell any) (any, error) {
	switch f.Type {
	case "", TypeAny:
		return cell, nil
	case TypeString:
		return castString(cell)
	case TypeInteger:
		return castInteger(cell)
	case TypeNumber:
		return castNumber(cell)
	case TypeBoolean:
		return f.castBoolean(cell)
	case TypeDate:
		return castTemporal(cell, f.Format, []string{"2006-01-02"}, true)
	case TypeTime:
		return castTemporal(cell, f.Format, []string{"15:04:05", "15:04:05Z07:00", "15:04"}, false)
	case TypeDatetime:
		return castTemporal(cell, f.Format, []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}, false)
	case TypeYear:
		return castYear(cell)
	case TypeObject:
		return castObject(cell)
	case TypeArray:
		return castArray(cell)
	default:
		return nil, fmt.Errorf("unknown type %q", f.Type)
	}
}

func castString(cell any) (any, error) {
	if s, ok := cell.(string); ok {
		return s, nil
	}
	s, err := cast.ToStringE(cell)
	if err != nil {
		return nil, fmt.Errorf("type is %q but value is %T", TypeString, cell)
	}
	return s, nil
}

func castInteger(cell any) (any, error) {
	switch v := cell.(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("type is %q but value is %q", TypeInteger, v)
		}
		return i, nil
	case bool:
		return nil, fmt.Errorf("type is %q but value is a boolean", TypeInteger)
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("type is %q but value is %v", TypeInteger, v)
		}
		return int64(v), nil
	case float32:
		return castInteger(float64(v))
	}
	i, err := cast.ToInt64E(cell)
	if err != nil {
		return nil, fmt.Errorf("type is %q but value is %T", TypeInteger, cell)
	}
	return i, nil
}

func castNumber(cell any) (any, error) {
	switch v := cell.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("type is %q but value is %q", TypeNumber, v)
		}
		return f, nil
	case bool:
		return nil, fmt.Errorf("type is %q but value is a boolean", TypeNumber)
	}
	f, err := cast.ToFloat64E(cell)
	if err != nil {
		return nil, fmt.Errorf("type is %q but value is %T", TypeNumber, cell)
	}
	return f, nil
}

func (f *Field) castBoolean(cell any) (any, error) {
	if b, ok := cell.(bool); ok {
		return b, nil
	}
	s, ok := cell.(string)
	if !ok {
		b, err := cast.ToBoolE(cell)
		if err != nil {
			return nil, fmt.Errorf("type is %q but value is %T", TypeBoolean, cell)
		}
		return b, nil
	}
	trueValues, falseValues := f.TrueValues, f.FalseValues
	if trueValues == nil {
		trueValues = defaultTrueValues
	}
	if falseValues == nil {
		falseValues = defaultFalseValues
	}
	for _, tv := range trueValues {
		if s == tv {
			return true, nil
		}
	}
	for _, fv := range falseValues {
		if s == fv {
			return false, nil
		}
	}
	return nil, fmt.Errorf("type is %q but value is %q", TypeBoolean, s)
}

// castTemporal parses with the field format ("default", "any" or a strftime
// pattern) or the given default layouts.
func castTemporal(cell any, format string, layouts []string, dateOnly bool) (any, error) {
	if t, ok := cell.(time.Time); ok {
		if dateOnly {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
		return t, nil
	}
	s, ok := cell.(string)
	if !ok {
		return nil, fmt.Errorf("value %T is not a temporal value", cell)
	}
	s = strings.TrimSpace(s)
	switch format {
	case "", "default":
	case "any":
		t, err := cast.ToTimeE(s)
		if err != nil {
			return nil, fmt.Errorf("value %q does not parse as a date/time", s)
		}
		return t, nil
	default:
		layouts = []string{StrftimeToLayout(format)}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("value %q does not match format %q", s, layoutName(format, layouts))
}

func layoutName(format string, layouts []string) string {
	if format != "" && format != "default" {
		return format
	}
	return layouts[0]
}

var strftime = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "01", "%d", "02", "%H", "15", "%I", "03",
	"%M", "04", "%S", "05", "%f", "000000", "%p", "PM", "%b", "Jan", "%B", "January",
	"%a", "Mon", "%A", "Monday", "%z", "-0700", "%Z", "MST", "%%", "%",
)

// StrftimeToLayout converts a strftime pattern ("%d/%m/%Y") to a Go layout.
func StrftimeToLayout(format string) string {
	return strftime.Replace(format)
}

func castYear(cell any) (any, error) {
	v, err := castInteger(cell)
	if err != nil {
		return nil, fmt.Errorf("type is %q but value is %v", TypeYear, cell)
	}
	y := v.(int64)
	if y < 0 || y > 9999 {
		return nil, fmt.Errorf("year %d out of range", y)
	}
	return y, nil
}

func castObject(cell any) (any, error) {
	if m, ok := cell.(map[string]any); ok {
		return m, nil
	}
	s, ok := cell.(string)
	if !ok {
		return nil, fmt.Errorf("type is %q but value is %T", TypeObject, cell)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, fmt.Errorf("type is %q but value is not a JSON object", TypeObject)
	}
	return m, nil
}

func castArray(cell any) (any, error) {
	if a, ok := cell.([]any); ok {
		return a, nil
	}
	if s, ok := cell.(string); ok {
		var a []any
		if err := json.Unmarshal([]byte(s), &a); err != nil || a == nil {
			return nil, fmt.Errorf("type is %q but value is not a JSON array", TypeArray)
		}
		return a, nil
	}
	rv := reflect.ValueOf(cell)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("type is %q but value is %T", TypeArray, cell)
}
