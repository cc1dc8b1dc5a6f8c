package resource

import (
	"dataresource/internal/parser"
	"dataresource/internal/schema"
)

// Option sets an explicit property at construction. Explicit options always
// override values from descriptors and detection.
type Option func(*options)

type options struct {
	path        *string
	data        any
	hasData     bool
	name        *string
	title       *string
	description *string
	scheme      *string
	format      *string
	encoding    *string
	compression *string
	innerpath   *string
	dialect     *parser.Dialect
	schema      *schema.Schema
	basepath    *string
	trusted     *bool
}

func WithPath(path string) Option { return func(o *options) { o.path = &path } }

// WithData sets inline data ([][]any, []map[string]any, [][]string).
func WithData(data any) Option {
	return func(o *options) { o.data, o.hasData = data, true }
}

func WithName(name string) Option { return func(o *options) { o.name = &name } }
func WithTitle(title string) Option { return func(o *options) { o.title = &title } }
func WithDescription(desc string) Option { return func(o *options) { o.description = &desc } }
func WithScheme(scheme string) Option { return func(o *options) { o.scheme = &scheme } }
func WithFormat(format string) Option { return func(o *options) { o.format = &format } }
func WithEncoding(encoding string) Option { return func(o *options) { o.encoding = &encoding } }
func WithCompression(compression string) Option { return func(o *options) { o.compression = &compression } }
func WithInnerpath(innerpath string) Option { return func(o *options) { o.innerpath = &innerpath } }
func WithDialect(d *parser.Dialect) Option { return func(o *options) { o.dialect = d.Clone() } }
func WithSchema(s *schema.Schema) Option { return func(o *options) { o.schema = s.Clone() } }

// WithBasepath resolves relative local paths against dir.
func WithBasepath(dir string) Option { return func(o *options) { o.basepath = &dir } }

// WithTrusted controls whether absolute or parent-escaping local paths are
// allowed. Descriptors read from files are untrusted unless set otherwise.
func WithTrusted(trusted bool) Option { return func(o *options) { o.trusted = &trusted } }
