package formats

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"dataresource/internal/parser"
)

// ── CSV / TSV ───────────────────────────────────────────────
// Delimiter-separated text. The csv dialect control configures the reader.

type csvParser struct {
	format    string
	label     string
	delimiter rune
	exts      []string
	mediaType string
}

func init() {
	parser.Register(&csvParser{format: "csv", label: "CSV", delimiter: ',', exts: []string{"csv"}, mediaType: "text/csv"})
	parser.Register(&csvParser{format: "tsv", label: "TSV", delimiter: '\t', exts: []string{"tsv", "tab"}, mediaType: "text/tab-separated-values"})
}

func (p *csvParser) Spec() parser.Spec {
	return parser.Spec{
		Format:     p.format,
		Label:      p.label,
		Kind:       parser.KindText,
		Extensions: p.exts,
		MediaType:  p.mediaType,
	}
}

func (p *csvParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	if in.Text == nil {
		return nil, fmt.Errorf("%s: no text input", p.format)
	}
	ctl := in.Dialect.CSVOptions()

	reader := csv.NewReader(in.Text)
	reader.Comma = p.delimiter
	if ctl.Delimiter != "" {
		r, _ := utf8.DecodeRuneInString(ctl.Delimiter)
		reader.Comma = r
	}
	if ctl.QuoteChar != "" && ctl.QuoteChar != `"` {
		return nil, fmt.Errorf("%s: quoteChar %q is not supported", p.format, ctl.QuoteChar)
	}
	if ctl.EscapeChar != "" {
		return nil, fmt.Errorf("%s: escapeChar is not supported", p.format)
	}
	if ctl.DoubleQuote != nil && !*ctl.DoubleQuote {
		return nil, fmt.Errorf("%s: doubleQuote=false is not supported", p.format)
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = ctl.SkipInitialSpace
	reader.ReuseRecord = false

	return &csvCursor{ctx: ctx, reader: reader, null: ctl.NullSequence}, nil
}

type csvCursor struct {
	ctx    context.Context
	reader *csv.Reader
	null   string
}

func (c *csvCursor) Next() ([]any, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, err
	}
	record, err := c.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	cells := make([]any, len(record))
	for i, v := range record {
		if c.null != "" && v == c.null {
			cells[i] = nil
			continue
		}
		cells[i] = v
	}
	return cells, nil
}

func (c *csvCursor) Close() error { return nil }
