package formats

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// object is a JSON object that remembers key order.
type object struct {
	keys   []string
	values map[string]any
}

// decodeOrdered reads one JSON value from dec. Objects become *object so the
// header can follow document order; numbers become int64 or float64.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &object{values: map[string]any{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", kt)
				}
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				if _, dup := obj.values[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.values[key] = v
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		return convertNumber(t), nil
	default:
		return t, nil
	}
}

func convertNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return s
}

// plain converts decoded values into map/slice form for cells that hold
// nested structures.
func plain(v any) any {
	switch val := v.(type) {
	case *object:
		m := make(map[string]any, len(val.keys))
		for _, k := range val.keys {
			m[k] = plain(val.values[k])
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// navigatePath follows a dot-separated property path through nested objects.
func navigatePath(v any, path string) (any, error) {
	if path == "" {
		return v, nil
	}
	current := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(*object)
		if !ok {
			return nil, fmt.Errorf("invalid property path: %q is not an object", part)
		}
		next, ok := obj.values[part]
		if !ok {
			return nil, fmt.Errorf("invalid property path: %q not found", part)
		}
		current = next
	}
	return current, nil
}

// keyedTable turns a list of JSON values into a header plus rows. Object items
// are keyed by keys, or by the union of their keys in first-seen order; array
// items are taken as rows.
func keyedTable(items []any, keys []string) ([][]any, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if _, keyed := items[0].(*object); !keyed {
		rows := make([][]any, 0, len(items))
		for i, item := range items {
			arr, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("row %d: expected an array, got %T", i+1, plain(item))
			}
			rows = append(rows, plain(arr).([]any))
		}
		return rows, nil
	}

	header := keys
	if len(header) == 0 {
		seen := map[string]bool{}
		for _, item := range items {
			obj, ok := item.(*object)
			if !ok {
				continue
			}
			for _, k := range obj.keys {
				if !seen[k] {
					seen[k] = true
					header = append(header, k)
				}
			}
		}
	}

	rows := make([][]any, 0, len(items)+1)
	labels := make([]any, len(header))
	for i, h := range header {
		labels[i] = h
	}
	rows = append(rows, labels)
	for i, item := range items {
		obj, ok := item.(*object)
		if !ok {
			return nil, fmt.Errorf("row %d: expected an object, got %T", i+1, plain(item))
		}
		rows = append(rows, objectRow(obj, header))
	}
	return rows, nil
}

func objectRow(obj *object, header []string) []any {
	row := make([]any, len(header))
	for j, k := range header {
		row[j] = plain(obj.values[k])
	}
	return row
}

// newDecoder returns a decoder that keeps numbers as json.Number.
func newDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}
