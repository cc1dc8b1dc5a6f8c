package compression

import (
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/gobwas/glob"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/nwaples/rardecode/v2"
	"github.com/ulikunitz/xz"
)

// ── Decompression ───────────────────────────────────────────
// Single-stream codecs wrap the reader; archives pick one entry (innerpath).

// ErrUnsupported is returned for unknown compression names.
var ErrUnsupported = errors.New("unsupported compression")

// ErrEntryNotFound is returned when innerpath matches no archive entry.
var ErrEntryNotFound = errors.New("archive entry not found")

// Result is a decompressed stream and the archive entry it came from.
type Result struct {
	Reader    io.ReadCloser
	Innerpath string
}

type opener func(r io.Reader, innerpath string) (*Result, error)

var codecs = map[string]opener{
	"zip": openZip,
	"7z":  open7z,
	"rar": openRar,
	"gz":  openGzip,
	"zst": openZstd,
	"xz":  openXZ,
	"bz2": openBzip2,
	"sz":  openSnappy,
}

var aliases = map[string]string{
	"gzip":  "gz",
	"zstd":  "zst",
	"bzip2": "bz2",
	"tgz":   "gz",
}

// Normalize maps a compression name or file extension to its canonical name,
// or "" if unknown.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, "."))
	if a, ok := aliases[name]; ok {
		name = a
	}
	if _, ok := codecs[name]; ok {
		return name
	}
	return ""
}

// IsArchive reports whether the compression holds multiple entries.
func IsArchive(name string) bool {
	switch Normalize(name) {
	case "zip", "7z", "rar":
		return true
	}
	return false
}

// Supported lists canonical compression names.
func Supported() []string {
	names := make([]string, 0, len(codecs))
	for n := range codecs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open decompresses r. For archives, innerpath selects the entry by exact
// name or glob pattern; empty means the first regular file.
func Open(name string, r io.Reader, innerpath string) (*Result, error) {
	canonical := Normalize(name)
	fn, ok := codecs[canonical]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, name)
	}
	return fn(r, innerpath)
}

// ── Entry selection ────────────────────────────────────────

type entryMatcher struct {
	exact string
	glob  glob.Glob
}

func newMatcher(innerpath string) (*entryMatcher, error) {
	if innerpath == "" {
		return nil, nil
	}
	m := &entryMatcher{exact: innerpath}
	if strings.ContainsAny(innerpath, "*?[{") {
		g, err := glob.Compile(innerpath, '/')
		if err != nil {
			return nil, fmt.Errorf("innerpath pattern: %w", err)
		}
		m.glob = g
	}
	return m, nil
}

func (m *entryMatcher) match(name string) bool {
	if m == nil {
		return true
	}
	if name == m.exact || strings.TrimPrefix(name, "./") == m.exact {
		return true
	}
	return m.glob != nil && m.glob.Match(name)
}

func notFound(innerpath string) error {
	if innerpath == "" {
		return fmt.Errorf("%w: archive has no regular files", ErrEntryNotFound)
	}
	return fmt.Errorf("%w: %q", ErrEntryNotFound, innerpath)
}

// readerAt returns random access over r, buffering it in memory unless it is
// already a file.
func readerAt(r io.Reader) (io.ReaderAt, int64, error) {
	if f, ok := r.(*os.File); ok {
		st, err := f.Stat()
		if err == nil {
			return f, st.Size(), nil
		}
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read archive: %w", err)
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// ── Archives ────────────────────────────────────────────────

func openZip(r io.Reader, innerpath string) (*Result, error) {
	m, err := newMatcher(innerpath)
	if err != nil {
		return nil, err
	}
	ra, size, err := readerAt(r)
	if err != nil {
		return nil, err
	}
	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !m.match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
		}
		return &Result{Reader: rc, Innerpath: f.Name}, nil
	}
	return nil, notFound(innerpath)
}

func open7z(r io.Reader, innerpath string) (*Result, error) {
	m, err := newMatcher(innerpath)
	if err != nil {
		return nil, err
	}
	ra, size, err := readerAt(r)
	if err != nil {
		return nil, err
	}
	sr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}
	for _, f := range sr.File {
		if f.FileInfo().IsDir() || !m.match(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open 7z entry %s: %w", f.Name, err)
		}
		return &Result{Reader: rc, Innerpath: f.Name}, nil
	}
	return nil, notFound(innerpath)
}

func openRar(r io.Reader, innerpath string) (*Result, error) {
	m, err := newMatcher(innerpath)
	if err != nil {
		return nil, err
	}
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open rar: %w", err)
	}
	for {
		h, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil, notFound(innerpath)
		}
		if err != nil {
			return nil, fmt.Errorf("read rar: %w", err)
		}
		if h.IsDir || !m.match(h.Name) {
			continue
		}
		return &Result{Reader: io.NopCloser(rr), Innerpath: h.Name}, nil
	}
}

// ── Single-stream codecs ───────────────────────────────────

func openGzip(r io.Reader, _ string) (*Result, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip: %w", err)
	}
	return &Result{Reader: gr}, nil
}

func openZstd(r io.Reader, _ string) (*Result, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open zstd: %w", err)
	}
	return &Result{Reader: d.IOReadCloser()}, nil
}

func openXZ(r io.Reader, _ string) (*Result, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xz: %w", err)
	}
	return &Result{Reader: io.NopCloser(xr)}, nil
}

func openBzip2(r io.Reader, _ string) (*Result, error) {
	return &Result{Reader: io.NopCloser(bzip2.NewReader(r))}, nil
}

func openSnappy(r io.Reader, _ string) (*Result, error) {
	return &Result{Reader: io.NopCloser(snappy.NewReader(r))}, nil
}
