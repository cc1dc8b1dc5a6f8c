package formats

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"dataresource/internal/parser"
)

// ── JSON Lines ──────────────────────────────────────────────
// One JSON array or object per line. Keyed lines produce a header row taken
// from the dialect keys or the first object.

const maxLineSize = 16 * 1024 * 1024

type jsonlParser struct {
	format string
	exts   []string
	mt     string
}

func init() {
	parser.Register(&jsonlParser{format: "jsonl", exts: []string{"jsonl"}, mt: "application/jsonl"})
	parser.Register(&jsonlParser{format: "ndjson", exts: []string{"ndjson"}, mt: "application/x-ndjson"})
}

func (p *jsonlParser) Spec() parser.Spec {
	return parser.Spec{
		Format:     p.format,
		Label:      "JSON Lines",
		Kind:       parser.KindText,
		Extensions: p.exts,
		MediaType:  p.mt,
	}
}

func (p *jsonlParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	if in.Text == nil {
		return nil, fmt.Errorf("%s: no text input", p.format)
	}
	sc := bufio.NewScanner(in.Text)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &jsonlCursor{ctx: ctx, scanner: sc, keys: in.Dialect.JSONOptions().Keys}, nil
}

type jsonlCursor struct {
	ctx     context.Context
	scanner *bufio.Scanner
	keys    []string
	line    int
	pending []any // first data row, held back while the header is emitted
	started bool
}

func (c *jsonlCursor) Next() ([]any, error) {
	if c.pending != nil {
		row := c.pending
		c.pending = nil
		return row, nil
	}
	for {
		if err := c.ctx.Err(); err != nil {
			return nil, err
		}
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return nil, fmt.Errorf("read line %d: %w", c.line+1, err)
			}
			return nil, io.EOF
		}
		c.line++
		raw := bytes.TrimSpace(c.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		v, err := decodeOrdered(newDecoder(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("parse line %d: %w", c.line, err)
		}

		switch item := v.(type) {
		case []any:
			c.started = true
			return plain(item).([]any), nil
		case *object:
			if !c.started {
				c.started = true
				if len(c.keys) == 0 {
					c.keys = append([]string(nil), item.keys...)
				}
				labels := make([]any, len(c.keys))
				for i, k := range c.keys {
					labels[i] = k
				}
				c.pending = objectRow(item, c.keys)
				return labels, nil
			}
			return objectRow(item, c.keys), nil
		default:
			return nil, fmt.Errorf("line %d: expected an array or object, got %T", c.line, item)
		}
	}
}

func (c *jsonlCursor) Close() error { return nil }
