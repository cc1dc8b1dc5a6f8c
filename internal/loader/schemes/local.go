package schemes

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"dataresource/internal/loader"
)

// ── Local Schemes ───────────────────────────────────────────
// file, text, buffer and stream: sources that never leave the process.

type fileLoader struct{}
type textLoader struct{}
type bufferLoader struct{}
type streamLoader struct{}

func init() {
	loader.Register(&fileLoader{})
	loader.Register(&textLoader{})
	loader.Register(&bufferLoader{})
	loader.Register(&streamLoader{})
}

func (l *fileLoader) Spec() loader.Spec {
	return loader.Spec{Scheme: "file", Label: "Local File"}
}

func (l *fileLoader) Open(ctx context.Context, req loader.Request) (io.ReadCloser, error) {
	path := FilePath(req.Path, req.Basepath)
	if path == "" {
		return nil, fmt.Errorf("file: path is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	if st, err := f.Stat(); err == nil && st.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open file: %s is a directory", path)
	}
	return f, nil
}

// FilePath strips a file:// prefix and joins relative paths onto basepath.
func FilePath(path, basepath string) string {
	path = strings.TrimPrefix(path, "file://")
	if path == "" {
		return ""
	}
	if basepath != "" && !filepath.IsAbs(path) {
		return filepath.Join(basepath, path)
	}
	return path
}

func (l *textLoader) Spec() loader.Spec {
	return loader.Spec{Scheme: "text", Label: "Inline Text"}
}

func (l *textLoader) Open(ctx context.Context, req loader.Request) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(strings.TrimPrefix(req.Path, "text://"))), nil
}

func (l *bufferLoader) Spec() loader.Spec {
	return loader.Spec{Scheme: "buffer", Label: "Byte Buffer"}
}

func (l *bufferLoader) Open(ctx context.Context, req loader.Request) (io.ReadCloser, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("buffer: no data")
	}
	return io.NopCloser(bytes.NewReader(req.Data)), nil
}

func (l *streamLoader) Spec() loader.Spec {
	return loader.Spec{Scheme: "stream", Label: "Reader Stream"}
}

func (l *streamLoader) Open(ctx context.Context, req loader.Request) (io.ReadCloser, error) {
	if req.Stream == nil {
		return nil, fmt.Errorf("stream: no reader")
	}
	r, err := req.Stream.Take()
	if err != nil {
		return nil, err
	}
	if rc, ok := r.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(r), nil
}
