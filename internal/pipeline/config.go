package pipeline

import (
	"fmt"

	"github.com/spf13/cast"
)

// StepConfig is a declarative step definition, as stored in JSON or YAML.
type StepConfig struct {
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config" yaml:"config"`
}

// StepTypes lists the step names Build accepts.
var StepTypes = []string{
	"row-filter", "row-limit", "row-dedupe", "row-sort",
	"field-rename", "field-select", "field-cast", "field-unpack",
	"table-transpose",
}

// Build converts declarative configs into steps.
func Build(configs []StepConfig) ([]Step, error) {
	steps := make([]Step, 0, len(configs))
	for i, sc := range configs {
		step, err := buildStep(sc)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, sc.Type, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func buildStep(sc StepConfig) (Step, error) {
	c := sc.Config
	str := func(key string) string { return cast.ToString(c[key]) }
	required := func(key string) (string, error) {
		v := str(key)
		if v == "" {
			return "", fmt.Errorf("%q is required", key)
		}
		return v, nil
	}

	switch sc.Type {
	case "row-filter":
		field, err := required("field")
		if err != nil {
			return nil, err
		}
		return &RowFilter{Field: field, Op: str("op"), Value: c["value"]}, nil

	case "row-limit":
		count, err := cast.ToIntE(c["count"])
		if err != nil {
			return nil, fmt.Errorf("count: %w", err)
		}
		return &RowLimit{Count: count}, nil

	case "row-dedupe":
		var fields []string
		if v, ok := c["fields"]; ok {
			f, err := cast.ToStringSliceE(v)
			if err != nil {
				return nil, fmt.Errorf("fields: %w", err)
			}
			fields = f
		}
		return &RowDedupe{Fields: fields}, nil

	case "row-sort":
		field, err := required("field")
		if err != nil {
			return nil, err
		}
		dir := str("direction")
		if dir == "" {
			dir = "asc"
		}
		if dir != "asc" && dir != "desc" {
			return nil, fmt.Errorf("direction must be asc or desc, got %q", dir)
		}
		return &RowSort{Field: field, Direction: dir}, nil

	case "field-rename":
		mapping, err := cast.ToStringMapStringE(c["mapping"])
		if err != nil || len(mapping) == 0 {
			return nil, fmt.Errorf("mapping must be a non-empty object")
		}
		return &FieldRename{Mapping: mapping}, nil

	case "field-select":
		fields, err := cast.ToStringSliceE(c["fields"])
		if err != nil || len(fields) == 0 {
			return nil, fmt.Errorf("fields must be a non-empty list")
		}
		return &FieldSelect{Fields: fields}, nil

	case "field-cast":
		field, err := required("field")
		if err != nil {
			return nil, err
		}
		typ, err := required("type")
		if err != nil {
			return nil, err
		}
		return &FieldCast{Field: field, Type: typ, Format: str("format")}, nil

	case "field-unpack":
		field, err := required("field")
		if err != nil {
			return nil, err
		}
		to, err := cast.ToStringSliceE(c["to"])
		if err != nil || len(to) == 0 {
			return nil, fmt.Errorf("to must be a non-empty list")
		}
		return &FieldUnpack{Field: field, To: to, Preserve: cast.ToBool(c["preserve"])}, nil

	case "table-transpose":
		return TableTranspose{}, nil

	default:
		return nil, fmt.Errorf("unknown step type")
	}
}
