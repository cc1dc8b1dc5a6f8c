package resource

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"dataresource/internal/parser"
	"dataresource/internal/schema"
)

// standardKeys are descriptor properties with a dedicated field.
var standardKeys = map[string]bool{
	"name": true, "type": true, "title": true, "description": true,
	"homepage": true, "licenses": true, "sources": true,
	"path": true, "data": true, "scheme": true, "format": true,
	"mediatype": true, "encoding": true, "compression": true,
	"innerpath": true, "dialect": true, "schema": true, "stats": true,
}

// Descriptor is the serialized form of a Resource. Extra holds custom
// properties and is written after the standard ones.
type Descriptor struct {
	Name        string           `json:"name,omitempty" yaml:"name,omitempty"`
	Type        string           `json:"type,omitempty" yaml:"type,omitempty"`
	Title       string           `json:"title,omitempty" yaml:"title,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage    string           `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Licenses    []map[string]any `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	Sources     []map[string]any `json:"sources,omitempty" yaml:"sources,omitempty"`
	Path        string           `json:"path,omitempty" yaml:"path,omitempty"`
	Data        any              `json:"data,omitempty" yaml:"data,omitempty"`
	Scheme      string           `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Format      string           `json:"format,omitempty" yaml:"format,omitempty"`
	Mediatype   string           `json:"mediatype,omitempty" yaml:"mediatype,omitempty"`
	Encoding    string           `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Compression string           `json:"compression,omitempty" yaml:"compression,omitempty"`
	Innerpath   string           `json:"innerpath,omitempty" yaml:"innerpath,omitempty"`
	Dialect     *parser.Dialect  `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Schema      *schema.Schema   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Stats       *Stats           `json:"stats,omitempty" yaml:"stats,omitempty"`

	Extra map[string]any `json:"-" yaml:",inline"`
}

type descriptorFields Descriptor

// MarshalJSON writes standard properties in declaration order followed by
// custom ones sorted by key.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(descriptorFields(d))
	if err != nil {
		return nil, err
	}
	if len(d.Extra) == 0 {
		return b, nil
	}
	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		if !standardKeys[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := b[:len(b)-1]
	for _, k := range keys {
		kb, _ := json.Marshal(k)
		vb, err := json.Marshal(d.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("custom property %q: %w", k, err)
		}
		if len(out) > 1 {
			out = append(out, ',')
		}
		out = append(out, kb...)
		out = append(out, ':')
		out = append(out, vb...)
	}
	return append(out, '}'), nil
}

// Map returns the descriptor as a plain property map.
func (d Descriptor) Map() map[string]any {
	m := map[string]any{}
	for k, v := range d.Extra {
		m[k] = v
	}
	put := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	put("name", d.Name)
	put("type", d.Type)
	put("title", d.Title)
	put("description", d.Description)
	put("homepage", d.Homepage)
	put("path", d.Path)
	put("scheme", d.Scheme)
	put("format", d.Format)
	put("mediatype", d.Mediatype)
	put("encoding", d.Encoding)
	put("compression", d.Compression)
	put("innerpath", d.Innerpath)
	if d.Licenses != nil {
		m["licenses"] = d.Licenses
	}
	if d.Sources != nil {
		m["sources"] = d.Sources
	}
	if d.Data != nil {
		m["data"] = d.Data
	}
	if d.Dialect != nil {
		m["dialect"] = d.Dialect
	}
	if d.Schema != nil {
		m["schema"] = d.Schema
	}
	if d.Stats != nil {
		m["stats"] = d.Stats
	}
	return m
}

// ── Loading ────────────────────────────────────────────────

func (r *Resource) applyDescriptor(m map[string]any) error {
	bad := func(key string, v any) error {
		return newError(KindSourceResolution, "new", nil, "descriptor property %q has unexpected type %T", key, v)
	}
	for key, v := range m {
		if v == nil {
			continue
		}
		switch key {
		case "name", "title", "description", "homepage", "scheme", "format",
			"mediatype", "encoding", "compression", "innerpath":
			s, ok := v.(string)
			if !ok {
				return bad(key, v)
			}
			*r.stringField(key) = s
		case "path":
			switch p := v.(type) {
			case string:
				r.path = p
			case []any, []string:
				return newError(KindSourceResolution, "new", nil, "multipart paths are not supported")
			default:
				return bad(key, v)
			}
		case "data":
			r.data = v
		case "licenses", "sources":
			list, err := mapList(v)
			if err != nil {
				return bad(key, v)
			}
			if key == "licenses" {
				r.licenses = list
			} else {
				r.sources = list
			}
		case "dialect":
			d := &parser.Dialect{}
			if err := decodeInto(v, d); err != nil {
				return newError(KindSourceResolution, "new", err, "descriptor dialect")
			}
			r.dialect = d
		case "schema":
			sc, err := r.loadSchema(v)
			if err != nil {
				return newError(KindSourceResolution, "new", err, "descriptor schema")
			}
			r.schema = sc
		case "stats":
			st := &Stats{}
			if err := decodeInto(v, st); err != nil {
				return newError(KindSourceResolution, "new", err, "descriptor stats")
			}
			r.stats = st
		case "type":
		default:
			if r.custom == nil {
				r.custom = map[string]any{}
			}
			r.custom[key] = v
		}
	}
	return nil
}

func (r *Resource) stringField(key string) *string {
	switch key {
	case "name":
		return &r.name
	case "title":
		return &r.title
	case "description":
		return &r.description
	case "homepage":
		return &r.homepage
	case "scheme":
		return &r.scheme
	case "format":
		return &r.format
	case "mediatype":
		return &r.mediatype
	case "encoding":
		return &r.encoding
	case "compression":
		return &r.compression
	default:
		return &r.innerpath
	}
}

// loadSchema accepts an inline schema or a path to a schema file relative to
// the basepath.
func (r *Resource) loadSchema(v any) (*schema.Schema, error) {
	if p, ok := v.(string); ok {
		if !r.trusted {
			if err := checkSafePath(p); err != nil {
				return nil, err
			}
		}
		full := p
		if r.basepath != "" && !filepath.IsAbs(p) {
			full = filepath.Join(r.basepath, p)
		}
		m, err := readDescriptorFile(full)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", p, err)
		}
		v = m
	}
	sc := &schema.Schema{}
	if err := decodeInto(v, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// decodeInto converts a generic value into a typed struct through JSON.
func decodeInto(v, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func mapList(v any) ([]map[string]any, error) {
	switch l := v.(type) {
	case []map[string]any:
		return l, nil
	case []any:
		out := make([]map[string]any, 0, len(l))
		for _, item := range l {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expected object, got %T", item)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list, got %T", v)
}

// ── Serialization ──────────────────────────────────────────

// ToDescriptor snapshots the current metadata. Runtime state (session,
// basepath, byte buffers and streams) is not part of it.
func (r *Resource) ToDescriptor() Descriptor {
	d := Descriptor{
		Name:        r.name,
		Title:       r.title,
		Description: r.description,
		Homepage:    r.homepage,
		Licenses:    r.licenses,
		Sources:     r.sources,
		Path:        r.path,
		Data:        r.data,
		Scheme:      r.scheme,
		Format:      r.format,
		Mediatype:   r.mediatype,
		Encoding:    r.encoding,
		Compression: r.compression,
		Innerpath:   r.innerpath,
		Dialect:     r.dialect.Clone(),
		Schema:      r.schema.Clone(),
		Stats:       r.Stats(),
		Extra:       copyMap(r.custom),
	}
	if r.Tabular() {
		d.Type = "table"
	}
	return d
}

func (r *Resource) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ToDescriptor())
}

// savable rejects sources whose descriptor could not be loaded back: byte
// buffers and streams live only in memory.
func (r *Resource) savable(op string) error {
	if r.path == "" && r.data == nil {
		return report(op, newError(KindSerialization, op, nil, "%s source has neither path nor data to save", r.kind))
	}
	return nil
}

// ToJSON writes the descriptor as indented JSON.
func (r *Resource) ToJSON(path string) error {
	if err := r.savable("to json"); err != nil {
		return err
	}
	b, err := json.MarshalIndent(r.ToDescriptor(), "", "  ")
	if err != nil {
		return report("to json", newError(KindSerialization, "to json", err, "encode"))
	}
	if err := writeAtomic(path, append(b, '\n')); err != nil {
		return report("to json", newError(KindSerialization, "to json", err, "write %s", path))
	}
	return nil
}

// ToYAML writes the descriptor as YAML.
func (r *Resource) ToYAML(path string) error {
	if err := r.savable("to yaml"); err != nil {
		return err
	}
	b, err := yaml.Marshal(r.ToDescriptor())
	if err != nil {
		return report("to yaml", newError(KindSerialization, "to yaml", err, "encode"))
	}
	if err := writeAtomic(path, b); err != nil {
		return report("to yaml", newError(KindSerialization, "to yaml", err, "write %s", path))
	}
	return nil
}

// writeAtomic writes to a temp file in the destination directory and renames
// it into place.
func writeAtomic(path string, b []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	if _, err = w.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err = w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
