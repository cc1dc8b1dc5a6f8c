package formats

import (
	"context"
	"fmt"
	"sort"

	"dataresource/internal/parser"
)

// ── Inline ──────────────────────────────────────────────────
// In-memory data: a grid of cells, or a list of keyed records.

type inlineParser struct{}

func init() { parser.Register(&inlineParser{}) }

func (p *inlineParser) Spec() parser.Spec {
	return parser.Spec{Format: "inline", Label: "Inline Data", Kind: parser.KindInline}
}

func (p *inlineParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	rows, err := InlineRows(in.Data, in.Dialect.JSONOptions().Keys)
	if err != nil {
		return nil, err
	}
	return &parser.SliceCursor{Rows: rows}, nil
}

// InlineRows normalizes supported in-memory shapes into a cell grid. Keyed
// records get a header row built from keys, or their sorted key union.
func InlineRows(data any, keys []string) ([][]any, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case [][]any:
		return copyGrid(v), nil
	case [][]string:
		rows := make([][]any, len(v))
		for i, r := range v {
			row := make([]any, len(r))
			for j, c := range r {
				row[j] = c
			}
			rows[i] = row
		}
		return rows, nil
	case []map[string]any:
		return recordRows(v, keys), nil
	case []any:
		if len(v) == 0 {
			return nil, nil
		}
		if _, keyed := v[0].(map[string]any); keyed {
			recs := make([]map[string]any, len(v))
			for i, item := range v {
				m, ok := item.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("inline: row %d: expected an object, got %T", i+1, item)
				}
				recs[i] = m
			}
			return recordRows(recs, keys), nil
		}
		rows := make([][]any, len(v))
		for i, item := range v {
			r, ok := item.([]any)
			if !ok {
				return nil, fmt.Errorf("inline: row %d: expected an array, got %T", i+1, item)
			}
			rows[i] = append([]any(nil), r...)
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("inline: unsupported data type %T", data)
	}
}

func copyGrid(g [][]any) [][]any {
	out := make([][]any, len(g))
	for i, r := range g {
		out[i] = append([]any(nil), r...)
	}
	return out
}

func recordRows(recs []map[string]any, keys []string) [][]any {
	header := keys
	if len(header) == 0 {
		seen := map[string]bool{}
		for _, m := range recs {
			for k := range m {
				if !seen[k] {
					seen[k] = true
					header = append(header, k)
				}
			}
		}
		sort.Strings(header)
	}
	labels := make([]any, len(header))
	for i, h := range header {
		labels[i] = h
	}
	rows := [][]any{labels}
	for _, m := range recs {
		row := make([]any, len(header))
		for j, k := range header {
			row[j] = m[k]
		}
		rows = append(rows, row)
	}
	return rows
}
