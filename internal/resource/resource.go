package resource

import (
	"fmt"
	"regexp"

	"golang.org/x/text/encoding/htmlindex"

	"dataresource/internal/compression"
	"dataresource/internal/loader"
	"dataresource/internal/parser"
	"dataresource/internal/schema"

	// scheme and format implementations
	_ "dataresource/internal/loader/schemes"
	_ "dataresource/internal/parser/formats"
)

// Resource describes a data source and reads it as bytes, text, cells or rows.
// A Resource is not safe for concurrent use.
type Resource struct {
	kind SourceKind

	name        string
	title       string
	description string
	homepage    string
	licenses    []map[string]any
	sources     []map[string]any
	custom      map[string]any

	path   string
	data   any
	buffer []byte
	stream *loader.Stream

	scheme      string
	format      string
	mediatype   string
	encoding    string
	compression string
	innerpath   string
	dialect     *parser.Dialect
	schema      *schema.Schema
	stats       *Stats

	basepath string
	trusted  bool

	session *session
}

// Stats are computed by Infer with stats enabled.
type Stats struct {
	MD5    string `json:"md5,omitempty" yaml:"md5,omitempty"`
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	Bytes  int64  `json:"bytes" yaml:"bytes"`
	Fields int    `json:"fields" yaml:"fields"`
	Rows   int    `json:"rows" yaml:"rows"`
}

// New builds a Resource from a path, a descriptor path, a descriptor map,
// a byte buffer, inline data, an io.Reader, or nil with WithPath/WithData.
func New(source any, opts ...Option) (*Resource, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	src, err := classify(source, o)
	if err != nil {
		return nil, err
	}

	r := &Resource{kind: src.kind, trusted: true}
	if err := r.resolve(src, o); err != nil {
		return nil, err
	}
	return r, nil
}

// ── Metadata accessors ─────────────────────────────────────

var namePattern = regexp.MustCompile(`^([-a-z0-9._/])+$`)

func (r *Resource) Kind() SourceKind { return r.kind }
func (r *Resource) Name() string { return r.name }
func (r *Resource) Title() string { return r.title }
func (r *Resource) Description() string { return r.description }
func (r *Resource) Homepage() string { return r.homepage }
func (r *Resource) Path() string { return r.path }
func (r *Resource) Data() any { return r.data }
func (r *Resource) Basepath() string { return r.basepath }
func (r *Resource) Trusted() bool { return r.trusted }
func (r *Resource) Scheme() string { return r.scheme }
func (r *Resource) Format() string { return r.format }
func (r *Resource) Mediatype() string { return r.mediatype }
func (r *Resource) Encoding() string { return r.encoding }
func (r *Resource) Compression() string { return r.compression }
func (r *Resource) Innerpath() string { return r.innerpath }
func (r *Resource) Dialect() *parser.Dialect { return r.dialect.Clone() }
func (r *Resource) Schema() *schema.Schema { return r.schema.Clone() }

// Stats returns a copy of the computed stats, or nil before Infer.
func (r *Resource) Stats() *Stats {
	if r.stats == nil {
		return nil
	}
	s := *r.stats
	return &s
}

// Custom returns a custom descriptor property.
func (r *Resource) Custom(key string) (any, bool) {
	v, ok := r.custom[key]
	return v, ok
}

// SetName validates name against the lowercase name pattern.
func (r *Resource) SetName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid name %q: must match %s", name, namePattern)
	}
	r.name = name
	return nil
}

func (r *Resource) SetTitle(title string) { r.title = title }
func (r *Resource) SetDescription(description string) { r.description = description }
func (r *Resource) SetHomepage(homepage string) { r.homepage = homepage }

// SetCustom stores a custom descriptor property. Standard keys are rejected.
func (r *Resource) SetCustom(key string, value any) error {
	if standardKeys[key] {
		return fmt.Errorf("%q is a standard property", key)
	}
	if r.custom == nil {
		r.custom = map[string]any{}
	}
	r.custom[key] = value
	return nil
}

// SetScheme accepts registered loader schemes and database schemes.
func (r *Resource) SetScheme(scheme string) error {
	if scheme != "" && !knownScheme(scheme) {
		return fmt.Errorf("unknown scheme %q", scheme)
	}
	r.scheme = scheme
	return nil
}

// SetFormat accepts formats with a registered parser.
func (r *Resource) SetFormat(format string) error {
	if format != "" {
		p, err := parser.Get(format)
		if err != nil {
			return err
		}
		r.mediatype = p.Spec().MediaType
	}
	r.format = format
	return nil
}

// SetEncoding accepts WHATWG encoding labels.
func (r *Resource) SetEncoding(encoding string) error {
	if encoding != "" {
		name, err := normalizeEncoding(encoding)
		if err != nil {
			return err
		}
		encoding = name
	}
	r.encoding = encoding
	return nil
}

func (r *Resource) SetCompression(name string) error {
	if name == "" {
		r.compression = ""
		return nil
	}
	c := compression.Normalize(name)
	if c == "" {
		return fmt.Errorf("%w: %q", compression.ErrUnsupported, name)
	}
	r.compression = c
	return nil
}

func (r *Resource) SetInnerpath(innerpath string) { r.innerpath = innerpath }

func (r *Resource) SetDialect(d *parser.Dialect) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.dialect = d.Clone()
	return nil
}

func (r *Resource) SetSchema(s *schema.Schema) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	r.schema = s.Clone()
	return nil
}

// Tabular reports whether the resource's format has a parser.
func (r *Resource) Tabular() bool {
	if r.format == "" {
		return false
	}
	_, err := parser.Get(r.format)
	return err == nil
}

func normalizeEncoding(label string) (string, error) {
	if label == "utf-8-sig" {
		return "utf-8", nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q", label)
	}
	name, err := htmlindex.Name(enc)
	if err != nil {
		return "", fmt.Errorf("unknown encoding %q", label)
	}
	return name, nil
}

// clone copies metadata and source; the session is not shared.
func (r *Resource) clone() *Resource {
	c := *r
	c.session = nil
	c.dialect = r.dialect.Clone()
	c.schema = r.schema.Clone()
	if r.stats != nil {
		s := *r.stats
		c.stats = &s
	}
	c.custom = copyMap(r.custom)
	return &c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
