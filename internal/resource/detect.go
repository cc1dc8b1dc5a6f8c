package resource

import (
	"bufio"
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"dataresource/internal/compression"
	"dataresource/internal/dbclient"
	"dataresource/internal/loader"
	"dataresource/internal/parser"
)

// ── Detection ───────────────────────────────────────────────
// Fills scheme, format, compression, mediatype and name from the source.
// Only unset properties are touched.

// Tabular formats recognized by extension that have no parser. Open fails
// for them with an OpenError.
var unsupportedFormats = map[string]bool{
	"xlsx": true, "xls": true, "ods": true, "parquet": true, "sav": true, "dta": true,
}

func (r *Resource) detect() {
	switch {
	case r.data != nil:
		if r.format == "" {
			r.format = "inline"
		}
	case r.buffer != nil:
		if r.scheme == "" {
			r.scheme = "buffer"
		}
		if r.format == "" || r.compression == "" {
			format, comp := sniffBuffer(r.buffer)
			if r.format == "" {
				r.format = format
			}
			if r.compression == "" {
				r.compression = comp
			}
		}
	case r.stream != nil:
		if r.scheme == "" {
			r.scheme = "stream"
		}
	case r.path != "":
		scheme, format, comp := detectPath(r.path)
		if r.scheme == "" {
			r.scheme = scheme
		}
		if r.format == "" {
			r.format = format
		}
		if r.compression == "" {
			r.compression = comp
		}
	}

	if c := compression.Normalize(r.compression); c != "" {
		r.compression = c
	}
	r.format = strings.ToLower(r.format)
	if r.mediatype == "" && r.format != "" {
		if p, err := parser.Get(r.format); err == nil {
			r.mediatype = p.Spec().MediaType
		}
	}
	if r.name == "" {
		r.name = r.deriveName()
	}
}

// detectPath splits a location into scheme, format and compression:
// "data/table.csv.gz" → file, csv, gz; "postgres://host/db" → postgres, sql.
func detectPath(p string) (scheme, format, comp string) {
	if strings.HasPrefix(p, "text://") {
		return "text", "", ""
	}
	local := p
	if i := strings.Index(p, "://"); i > 1 {
		u, err := url.Parse(p)
		if err == nil && u.Scheme != "" {
			scheme = strings.ToLower(u.Scheme)
			switch dbclient.DriverFor(scheme) {
			case "":
			case dbclient.DriverMongoDB:
				return scheme, "mongo", ""
			default:
				return scheme, "sql", ""
			}
			local = u.Path
		}
	} else {
		scheme = "file"
	}

	format, comp = formatFromName(path.Base(strings.ReplaceAll(local, `\`, "/")))
	return scheme, format, comp
}

// formatFromName reads "table.csv.zip" as format csv, compression zip.
func formatFromName(base string) (format, comp string) {
	parts := strings.Split(strings.ToLower(base), ".")
	if len(parts) < 2 {
		return "", ""
	}
	if c := compression.Normalize(parts[len(parts)-1]); c != "" {
		comp = c
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return "", comp
	}
	return formatForExtension(parts[len(parts)-1]), comp
}

func formatForExtension(ext string) string {
	if spec, ok := parser.ForExtension(ext); ok {
		return spec.Format
	}
	if unsupportedFormats[ext] {
		return ext
	}
	return ""
}

// sniffBuffer detects format and compression from content.
func sniffBuffer(b []byte) (format, comp string) {
	m := mimetype.Detect(b)
	if c := compression.Normalize(m.Extension()); c != "" {
		return "", c
	}
	for mt := m; mt != nil; mt = mt.Parent() {
		if spec, ok := parser.ForMediaType(mt.String()); ok {
			return spec.Format, ""
		}
	}
	return "", ""
}

var nameInvalid = regexp.MustCompile(`[^-a-z0-9._/]+`)

func (r *Resource) deriveName() string {
	switch {
	case r.path == "" || r.scheme == "text":
		return "memory"
	case r.format == "sql" || r.format == "mongo":
		if t := r.dialect.SQLOptions().Table; t != "" {
			return slug(t)
		}
		if c := r.dialect.MongoOptions().Collection; c != "" {
			return slug(c)
		}
	}
	local := r.path
	if u, err := url.Parse(r.path); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		local = u.Path
	}
	base := path.Base(strings.ReplaceAll(local, `\`, "/"))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	if n := slug(base); n != "" {
		return n
	}
	return "memory"
}

func slug(s string) string {
	s = nameInvalid.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

func knownScheme(s string) bool {
	if _, err := loader.Get(s); err == nil {
		return true
	}
	return dbclient.DriverFor(s) != ""
}

// ── Encoding detection ─────────────────────────────────────

// detectEncoding inspects the head of a stream without consuming it.
func detectEncoding(br *bufio.Reader) (string, error) {
	head, err := br.Peek(sampleBytes)
	if err != nil && !errors.Is(err, bufio.ErrBufferFull) && len(head) == 0 && !isEOF(err) {
		return "", err
	}
	switch {
	case len(head) >= 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF:
		return "utf-8", nil
	case len(head) >= 2 && head[0] == 0xFF && head[1] == 0xFE:
		return "utf-16le", nil
	case len(head) >= 2 && head[0] == 0xFE && head[1] == 0xFF:
		return "utf-16be", nil
	}
	if validUTF8Prefix(head, err == nil || errors.Is(err, bufio.ErrBufferFull)) {
		return "utf-8", nil
	}
	return "windows-1252", nil
}

// validUTF8Prefix allows a truncated trailing rune when the sample was cut.
func validUTF8Prefix(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for k := 1; k <= 3 && k < len(b); k++ {
		if utf8.Valid(b[:len(b)-k]) {
			return true
		}
	}
	return false
}
