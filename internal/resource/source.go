package resource

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"dataresource/internal/loader"
)

// SourceKind is the resolved shape of the value passed to New.
type SourceKind int

const (
	SourcePath SourceKind = iota + 1
	SourceDescriptorPath
	SourceDescriptor
	SourceBuffer
	SourceInline
	SourceStream
	SourceOptions
)

func (k SourceKind) String() string {
	switch k {
	case SourcePath:
		return "path"
	case SourceDescriptorPath:
		return "descriptor-path"
	case SourceDescriptor:
		return "descriptor"
	case SourceBuffer:
		return "buffer"
	case SourceInline:
		return "inline"
	case SourceStream:
		return "stream"
	case SourceOptions:
		return "options"
	default:
		return "unknown"
	}
}

type classified struct {
	kind       SourceKind
	path       string
	descriptor map[string]any
	buffer     []byte
	inline     any
	stream     io.Reader
}

var descriptorName = regexp.MustCompile(`(?i)(^|\.)resource\.(json|ya?ml)$`)

// classify resolves the source once. Strings are data paths unless they
// name a descriptor file.
func classify(source any, o *options) (*classified, error) {
	switch s := source.(type) {
	case nil:
		if o.path != nil || o.hasData {
			return &classified{kind: SourceOptions}, nil
		}
		return nil, newError(KindSourceResolution, "new", nil, "no source given")
	case string:
		if strings.TrimSpace(s) == "" {
			return nil, newError(KindSourceResolution, "new", nil, "empty path")
		}
		if o.format == nil && isDescriptorPath(s, o) {
			return &classified{kind: SourceDescriptorPath, path: s}, nil
		}
		return &classified{kind: SourcePath, path: s}, nil
	case map[string]any:
		return &classified{kind: SourceDescriptor, descriptor: s}, nil
	case Descriptor:
		return &classified{kind: SourceDescriptor, descriptor: s.Map()}, nil
	case *Descriptor:
		if s == nil {
			return nil, newError(KindSourceResolution, "new", nil, "nil descriptor")
		}
		return &classified{kind: SourceDescriptor, descriptor: s.Map()}, nil
	case []byte:
		return &classified{kind: SourceBuffer, buffer: s}, nil
	case [][]any, [][]string, []map[string]any, []any:
		return &classified{kind: SourceInline, inline: s}, nil
	case io.Reader:
		return &classified{kind: SourceStream, stream: s}, nil
	default:
		return nil, newError(KindSourceResolution, "new", nil, "unsupported source type %T", source)
	}
}

// isDescriptorPath reports whether a local json/yaml path holds a resource
// descriptor rather than data.
func isDescriptorPath(path string, o *options) bool {
	if strings.Contains(path, "://") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return false
	}
	if descriptorName.MatchString(filepath.Base(path)) {
		return true
	}
	full := path
	if o.basepath != nil && !filepath.IsAbs(path) {
		full = filepath.Join(*o.basepath, path)
	}
	m, err := readDescriptorFile(full)
	if err != nil {
		return false
	}
	_, hasPath := m["path"]
	_, hasData := m["data"]
	return hasPath || hasData
}

// readDescriptorFile decodes a JSON or YAML object.
func readDescriptorFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	default:
		err = json.Unmarshal(b, &m)
	}
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("descriptor is not an object")
	}
	return m, nil
}

// resolve fills the resource from the classified source, then explicit
// options, then detection for whatever is still unset.
func (r *Resource) resolve(src *classified, o *options) error {
	if o.basepath != nil {
		r.basepath = *o.basepath
	}
	if o.trusted != nil {
		r.trusted = *o.trusted
	}
	switch src.kind {
	case SourcePath:
		r.path = src.path
	case SourceDescriptorPath:
		full := src.path
		if o.basepath != nil && !filepath.IsAbs(full) {
			full = filepath.Join(*o.basepath, full)
		}
		m, err := readDescriptorFile(full)
		if err != nil {
			return newError(KindSourceResolution, "new", err, "read descriptor %s", src.path)
		}
		r.basepath = filepath.Dir(full)
		r.trusted = o.trusted != nil && *o.trusted
		if err := r.applyDescriptor(m); err != nil {
			return err
		}
	case SourceDescriptor:
		if err := r.applyDescriptor(src.descriptor); err != nil {
			return err
		}
	case SourceBuffer:
		r.buffer = src.buffer
	case SourceInline:
		r.data = src.inline
	case SourceStream:
		r.stream = loader.NewStream(src.stream)
	}

	r.applyOptions(o)

	if r.path == "" && r.data == nil && r.buffer == nil && r.stream == nil {
		return newError(KindSourceResolution, "new", nil, "descriptor has neither path nor data")
	}
	if r.path != "" && r.data != nil {
		return newError(KindSourceResolution, "new", nil, "path and data are mutually exclusive")
	}
	if !r.trusted {
		if err := checkSafePath(r.path); err != nil {
			return newError(KindSourceResolution, "new", err, "untrusted path")
		}
	}

	r.detect()
	return nil
}

func (r *Resource) applyOptions(o *options) {
	if o.path != nil {
		r.path = *o.path
		if r.data != nil && !o.hasData {
			r.data = nil
		}
	}
	if o.hasData {
		r.data = o.data
		if o.path == nil {
			r.path = ""
		}
	}
	if o.basepath != nil && r.kind != SourceDescriptorPath {
		r.basepath = *o.basepath
	}
	if o.trusted != nil {
		r.trusted = *o.trusted
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&r.name, o.name)
	set(&r.title, o.title)
	set(&r.description, o.description)
	set(&r.scheme, o.scheme)
	set(&r.format, o.format)
	set(&r.encoding, o.encoding)
	set(&r.compression, o.compression)
	set(&r.innerpath, o.innerpath)
	if o.dialect != nil {
		r.dialect = o.dialect
	}
	if o.schema != nil {
		r.schema = o.schema
	}
	if o.format != nil || o.scheme != nil {
		// an explicit format invalidates a mediatype taken from a descriptor
		r.mediatype = ""
	}
}

// checkSafePath rejects local paths that are absolute or climb out of the
// basepath.
func checkSafePath(path string) error {
	if path == "" || strings.Contains(path, "://") {
		return nil
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") || strings.HasPrefix(path, "~") {
		return fmt.Errorf("path %q is absolute", path)
	}
	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path %q escapes the base directory", path)
	}
	return nil
}

// IsSafePath reports whether a path may be read from an untrusted descriptor.
func IsSafePath(path string) bool { return checkSafePath(path) == nil }
