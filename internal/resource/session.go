package resource

import (
	"bufio"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"hash"
	"io"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"dataresource/internal/compression"
	"dataresource/internal/loader"
	"dataresource/internal/loader/schemes"
	"dataresource/internal/parser"
	"dataresource/internal/schema"
)

// sampleBytes is both the read buffer size and the detection window.
const sampleBytes = 64 * 1024

// session is the state of one Open. Byte, text, cell and row readers are
// layered on the same buffered stream, so consuming one advances the others.
type session struct {
	ctx     context.Context
	closers []io.Closer

	hasher *hashReader
	bytes  *bufio.Reader
	text   io.Reader

	format    string
	encoding  string
	innerpath string
	dialect   *parser.Dialect

	parser    parser.Parser
	cursor    parser.Cursor
	rowNumber int
	pending   []numbered
	table     *table
	rowsRead  int
	closed    bool
}

type numbered struct {
	n     int
	cells []any
}

// table is the header and schema resolved from the first rows.
type table struct {
	labels []string
	schema *schema.Schema
	names  []string
}

// hashReader counts and hashes the decompressed bytes flowing through it.
type hashReader struct {
	r   io.Reader
	md5 hash.Hash
	sha hash.Hash
	n   int64
}

func newHashReader(r io.Reader) *hashReader {
	return &hashReader{r: r, md5: md5.New(), sha: sha256.New()}
}

func (h *hashReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.md5.Write(p[:n])
		h.sha.Write(p[:n])
		h.n += int64(n)
	}
	return n, err
}

func isEOF(err error) bool { return errors.Is(err, io.EOF) }

// ── Opening ────────────────────────────────────────────────

func (r *Resource) openSession(ctx context.Context) (*session, error) {
	s := &session{
		ctx:       ctx,
		format:    r.format,
		encoding:  r.encoding,
		innerpath: r.innerpath,
		dialect:   r.dialect.Clone(),
	}
	if err := r.dialect.Validate(); err != nil {
		return nil, newError(KindOpen, "open", err, "invalid dialect")
	}

	var p parser.Parser
	if s.format != "" {
		var err error
		if p, err = parser.Get(s.format); err != nil {
			return nil, newError(KindOpen, "open", err, "format %q", s.format)
		}
	}

	if p != nil && p.Spec().Kind != parser.KindText {
		in := parser.Input{Dialect: s.dialect, Trusted: r.trusted}
		if p.Spec().Kind == parser.KindInline {
			in.Data = r.data
		} else {
			// location parsers record defaults they pick, like the table
			if s.dialect == nil {
				s.dialect = &parser.Dialect{}
				in.Dialect = s.dialect
			}
			in.Path = r.locationDSN()
		}
		cur, err := p.Open(ctx, in)
		if err != nil {
			return nil, newError(KindOpen, "open", err, "format %q", s.format)
		}
		s.parser, s.cursor = p, cur
		return s, nil
	}
	if r.data != nil {
		return nil, newError(KindOpen, "open", nil, "inline data cannot be read as %q", s.format)
	}

	if err := r.openBytes(ctx, s); err != nil {
		s.close()
		return nil, err
	}

	if s.format != "" && p == nil {
		var err error
		if p, err = parser.Get(s.format); err != nil {
			s.close()
			return nil, newError(KindOpen, "open", err, "format %q", s.format)
		}
	}
	if p != nil {
		if p.Spec().Kind != parser.KindText {
			s.close()
			return nil, newError(KindOpen, "open", nil, "format %q cannot be read from an archive entry", s.format)
		}
		s.parser = p
		s.sniffDialect()
	}
	return s, nil
}

// openBytes sets up loader → decompressor → hashing buffer and resolves the
// text encoding.
func (r *Resource) openBytes(ctx context.Context, s *session) error {
	l, err := loader.Get(r.scheme)
	if err != nil {
		return newError(KindOpen, "open", err, "scheme %q", r.scheme)
	}
	rc, err := l.Open(ctx, loader.Request{
		Path:     r.path,
		Basepath: r.basepath,
		Data:     r.buffer,
		Stream:   r.stream,
	})
	if err != nil {
		return newError(KindOpen, "open", err, "source %q is unreachable", r.displayPath())
	}
	s.closers = append(s.closers, rc)

	var src io.Reader = rc
	if r.innerpath != "" && !compression.IsArchive(r.compression) {
		return newError(KindOpen, "open", nil, "innerpath %q needs an archive compression, got %q", r.innerpath, r.compression)
	}
	if r.compression != "" {
		res, err := compression.Open(r.compression, rc, r.innerpath)
		if err != nil {
			return newError(KindOpen, "open", err, "compression %q", r.compression)
		}
		s.closers = append(s.closers, res.Reader)
		src = res.Reader
		if res.Innerpath != "" {
			s.innerpath = res.Innerpath
			if s.format == "" {
				s.format, _ = formatFromName(path.Base(res.Innerpath))
			}
		}
	}

	s.hasher = newHashReader(src)
	s.bytes = bufio.NewReaderSize(s.hasher, sampleBytes)

	if s.encoding != "" {
		name, err := normalizeEncoding(s.encoding)
		if err != nil {
			return newError(KindOpen, "open", err, "encoding")
		}
		s.encoding = name
		return nil
	}
	enc, err := detectEncoding(s.bytes)
	if err != nil {
		return newError(KindOpen, "open", err, "detect encoding")
	}
	s.encoding = enc
	return nil
}

// sniffDialect picks a csv delimiter from the head of the stream when none
// was given.
func (s *session) sniffDialect() {
	if s.format != "csv" || s.dialect.CSVOptions().Delimiter != "" || s.bytes == nil {
		return
	}
	head, _ := s.bytes.Peek(sampleBytes)
	d := parser.SniffDelimiter(string(head))
	if d == "" || d == "," {
		return
	}
	if s.dialect == nil {
		s.dialect = &parser.Dialect{}
	}
	if s.dialect.CSV == nil {
		s.dialect.CSV = &parser.CSVControl{}
	}
	s.dialect.CSV.Delimiter = d
}

// locationDSN turns a local database file into a sqlite URL.
func (r *Resource) locationDSN() string {
	if r.scheme != "" && r.scheme != "file" {
		return r.path
	}
	p := schemes.FilePath(r.path, r.basepath)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return "sqlite://" + filepath.ToSlash(p)
}

func (r *Resource) displayPath() string {
	switch {
	case r.scheme == "text":
		return "text://…"
	case r.path != "":
		return r.path
	default:
		return r.scheme
	}
}

// ── Layers ─────────────────────────────────────────────────

func (s *session) byteReader(op string) (io.Reader, error) {
	if s.bytes == nil {
		return nil, newError(KindRead, op, nil, "resource has no byte stream")
	}
	return s.bytes, nil
}

func (s *session) textReader(op string) (io.Reader, error) {
	if s.text != nil {
		return s.text, nil
	}
	br, err := s.byteReader(op)
	if err != nil {
		return nil, err
	}
	dec, err := textDecoder(s.encoding)
	if err != nil {
		return nil, newError(KindRead, op, err, "encoding")
	}
	s.text = transform.NewReader(br, dec)
	return s.text, nil
}

// textDecoder strips BOMs and rejects invalid UTF-8 instead of replacing it.
func textDecoder(name string) (transform.Transformer, error) {
	if name == "" || name == "utf-8" {
		return unicode.BOMOverride(encoding.UTF8Validator), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, err
	}
	return unicode.BOMOverride(enc.NewDecoder()), nil
}

func (s *session) ensureCursor() error {
	if s.cursor != nil {
		return nil
	}
	if s.parser == nil {
		if s.format == "" {
			return newError(KindOpen, "read", nil, "format is unknown")
		}
		return newError(KindOpen, "read", parser.ErrUnsupported, "format %q", s.format)
	}
	text, err := s.textReader("read")
	if err != nil {
		return err
	}
	cur, err := s.parser.Open(s.ctx, parser.Input{Text: text, Dialect: s.dialect})
	if err != nil {
		return readError("read", err)
	}
	s.cursor = cur
	return nil
}

// pull reads the next raw row from the parser.
func (s *session) pull() (numbered, error) {
	if s.closed {
		return numbered{}, newError(KindRead, "read", ErrClosed, "")
	}
	if err := s.ensureCursor(); err != nil {
		return numbered{}, err
	}
	cells, err := s.cursor.Next()
	if isEOF(err) {
		return numbered{}, io.EOF
	}
	if err != nil {
		return numbered{}, readError("read", err)
	}
	s.rowNumber++
	return numbered{n: s.rowNumber, cells: cells}, nil
}

// nextRaw serves rows held back by the table layer before pulling new ones.
func (s *session) nextRaw() (numbered, error) {
	if len(s.pending) > 0 {
		row := s.pending[0]
		s.pending = s.pending[1:]
		return row, nil
	}
	return s.pull()
}

// initTable reads the header rows and a sample, then settles on a schema:
// the resource's own, or one inferred from the sample.
func (s *session) initTable(own *schema.Schema) error {
	if s.table != nil {
		return nil
	}
	headerRows := s.dialect.GetHeaderRows()
	last := 0
	isHeader := map[int]bool{}
	for _, n := range headerRows {
		isHeader[n] = true
		if n > last {
			last = n
		}
	}

	var headers [][]any
	for s.rowNumber < last {
		row, err := s.nextRaw()
		if isEOF(err) {
			break
		}
		if err != nil {
			return err
		}
		if isHeader[row.n] {
			headers = append(headers, row.cells)
		}
	}

	var sample [][]any
	for len(s.pending) < schema.DefaultSampleSize {
		row, err := s.pull()
		if isEOF(err) {
			break
		}
		if err != nil {
			return err
		}
		s.pending = append(s.pending, row)
		if !s.dialect.IsComment(row.n, row.cells) {
			sample = append(sample, row.cells)
		}
	}

	t := &table{labels: joinHeaders(headers, s.dialect.GetHeaderJoin())}
	switch {
	case own != nil && len(own.Fields) > 0:
		t.schema = own
	case own != nil:
		t.schema = schema.Infer(t.labels, sample, schema.InferOptions{MissingValues: own.MissingValues})
	default:
		t.schema = schema.Infer(t.labels, sample, schema.InferOptions{})
	}
	t.names = t.schema.FieldNames()
	if len(headers) == 0 {
		t.labels = t.names
	}
	s.table = t
	return nil
}

func joinHeaders(rows [][]any, join string) []string {
	if len(rows) == 0 {
		return nil
	}
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	labels := make([]string, width)
	for i := 0; i < width; i++ {
		var parts []string
		for _, r := range rows {
			if i < len(r) && r[i] != nil {
				if p := strings.TrimSpace(toString(r[i])); p != "" {
					parts = append(parts, p)
				}
			}
		}
		labels[i] = strings.Join(parts, join)
	}
	return labels
}

// nextRow returns the next data row, skipping comment rows.
func (s *session) nextRow() (*Row, error) {
	for {
		raw, err := s.nextRaw()
		if err != nil {
			return nil, err
		}
		if s.dialect.IsComment(raw.n, raw.cells) {
			continue
		}
		values, errs := s.table.schema.CastRow(raw.cells)
		s.rowsRead++
		return &Row{
			Number: raw.n,
			Cells:  raw.cells,
			Values: values,
			Errors: errs,
			fields: s.table.names,
		}, nil
	}
}

func (s *session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.cursor != nil {
		errs = append(errs, s.cursor.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

func (s *session) bytesRead() int64 {
	if s.hasher == nil {
		return 0
	}
	return s.hasher.n
}
