package formats

import (
	"context"
	"errors"
	"fmt"
	"io"

	"dataresource/internal/parser"
)

// ── JSON ────────────────────────────────────────────────────
// A JSON document holding an array of arrays or an array of objects,
// optionally nested under a dot-separated property path.

type jsonParser struct{}

func init() { parser.Register(&jsonParser{}) }

func (p *jsonParser) Spec() parser.Spec {
	return parser.Spec{
		Format:     "json",
		Label:      "JSON",
		Kind:       parser.KindText,
		Extensions: []string{"json"},
		MediaType:  "application/json",
	}
}

func (p *jsonParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	if in.Text == nil {
		return nil, fmt.Errorf("json: no text input")
	}
	ctl := in.Dialect.JSONOptions()

	dec := newDecoder(in.Text)
	doc, err := decodeOrdered(dec)
	if errors.Is(err, io.EOF) {
		return &parser.SliceCursor{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse json: unexpected data after top-level value")
	}

	data, err := navigatePath(doc, ctl.Property)
	if err != nil {
		return nil, err
	}
	items, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("json: expected an array of rows, got %T", plain(data))
	}

	rows, err := keyedTable(items, ctl.Keys)
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	return &parser.SliceCursor{Rows: rows}, nil
}
