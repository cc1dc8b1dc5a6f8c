package parser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// ── Parser ──────────────────────────────────────────────────
// A Parser turns a resource's content into a grid of raw cells.
// Implementations live in parser/formats/, one file per format.

// Kind tells the resource layer what a parser consumes.
type Kind int

const (
	// KindText parsers read decoded UTF-8 text produced by a loader.
	KindText Kind = iota
	// KindLocation parsers read from the resource path itself (databases).
	KindLocation
	// KindInline parsers read in-memory data.
	KindInline
)

// Spec describes a format: its name, how it reads, and how it is detected.
type Spec struct {
	Format     string   `json:"format"`
	Label      string   `json:"label"`
	Kind       Kind     `json:"kind"`
	Extensions []string `json:"extensions,omitempty"`
	MediaType  string   `json:"mediatype,omitempty"`
}

// Input is everything a parser may need to open a cursor.
// Only the member matching the parser's Kind is set.
type Input struct {
	Text    io.Reader
	Path    string
	Data    any
	Dialect *Dialect
	// Trusted allows raw query fragments from the dialect.
	Trusted bool
}

// Cursor yields one row of raw cells per call and io.EOF at the end.
type Cursor interface {
	Next() ([]any, error)
	Close() error
}

// Parser is the interface every format must implement.
type Parser interface {
	Spec() Spec
	Open(ctx context.Context, in Input) (Cursor, error)
}

// ErrUnsupported is returned for formats with no registered parser.
var ErrUnsupported = errors.New("unsupported format")

// ── Parser Registry ────────────────────────────────────────
// Compile-time registration via init() in each format file.

var (
	registryMu sync.RWMutex
	registry   = map[string]Parser{}
)

// Register registers a parser by its spec format.
func Register(p Parser) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[p.Spec().Format] = p
}

// Get returns a registered parser by format.
func Get(format string) (Parser, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	p, ok := registry[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
	return p, nil
}

// List returns the specs of all registered parsers, sorted by format.
func List() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, p := range registry {
		specs = append(specs, p.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Format < specs[j].Format })
	return specs
}

// ForExtension finds the format registered for a file extension (without dot).
func ForExtension(ext string) (Spec, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return Spec{}, false
	}
	for _, s := range List() {
		for _, e := range s.Extensions {
			if e == ext {
				return s, true
			}
		}
	}
	return Spec{}, false
}

// ForMediaType finds the format registered for a media type.
func ForMediaType(mt string) (Spec, bool) {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, s := range List() {
		if s.MediaType != "" && s.MediaType == mt {
			return s, true
		}
	}
	return Spec{}, false
}

// ReadAll drains a cursor. The cursor is not closed.
func ReadAll(c Cursor) ([][]any, error) {
	var rows [][]any
	for {
		cells, err := c.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, cells)
	}
}

// SliceCursor serves rows from memory. Parsers that must materialize their
// input (JSON documents, inline data) return one.
type SliceCursor struct {
	Rows [][]any
	pos  int
}

func (c *SliceCursor) Next() ([]any, error) {
	if c.pos >= len(c.Rows) {
		return nil, io.EOF
	}
	row := c.Rows[c.pos]
	c.pos++
	return row, nil
}

func (c *SliceCursor) Close() error { return nil }
