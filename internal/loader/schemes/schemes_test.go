package schemes_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/loader"
	"dataresource/internal/loader/schemes"
)

func open(t *testing.T, scheme string, req loader.Request) (string, error) {
	t.Helper()
	l, err := loader.Get(scheme)
	require.NoError(t, err)
	rc, err := l.Open(context.Background(), req)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b), nil
}

func TestFile_Basepath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "table.csv"), []byte("id\n1\n"), 0o644))

	got, err := open(t, "file", loader.Request{Path: "table.csv", Basepath: dir})
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", got)

	_, err = open(t, "file", loader.Request{Path: "missing.csv", Basepath: dir})
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	got, err := open(t, "text", loader.Request{Path: "text://a,b\n1,2"})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", got)
}

func TestBuffer(t *testing.T) {
	got, err := open(t, "buffer", loader.Request{Data: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestStream_SingleUse(t *testing.T) {
	s := loader.NewStream(strings.NewReader("once"))
	got, err := open(t, "stream", loader.Request{Stream: s})
	require.NoError(t, err)
	assert.Equal(t, "once", got)

	_, err = open(t, "stream", loader.Request{Stream: s})
	assert.ErrorIs(t, err, loader.ErrStreamConsumed)
}

func TestHTTP_StatusAndCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte("id\n1\n"))
	}))
	defer srv.Close()

	schemes.ConfigureHTTP(schemes.HTTPOptions{Timeout: 5 * time.Second, CacheTTL: time.Minute})
	defer schemes.ConfigureHTTP(schemes.HTTPOptions{})

	for i := 0; i < 2; i++ {
		got, err := open(t, "http", loader.Request{Path: srv.URL + "/table.csv"})
		require.NoError(t, err)
		assert.Equal(t, "id\n1\n", got)
	}
	assert.Equal(t, int32(1), hits.Load(), "second fetch should be served from cache")

	_, err := open(t, "http", loader.Request{Path: srv.URL + "/missing.csv"})
	assert.Error(t, err)
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := loader.Get("s3")
	assert.ErrorIs(t, err, loader.ErrUnsupported)
}
