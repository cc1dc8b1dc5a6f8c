package compression_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"dataresource/internal/compression"
)

const payload = "id,name\n1,english\n2,中国人\n"

func readResult(t *testing.T, res *compression.Result) string {
	t.Helper()
	defer res.Reader.Close()
	b, err := io.ReadAll(res.Reader)
	require.NoError(t, err)
	return string(b)
}

func zipArchive(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestZip_FirstEntryAndInnerpath(t *testing.T) {
	data := zipArchive(t, map[string]string{
		"docs/":          "",
		"docs/readme.md": "# hi",
		"table.csv":      payload,
		"other.csv":      "a\n1\n",
	}, []string{"docs/", "docs/readme.md", "table.csv", "other.csv"})

	res, err := compression.Open("zip", bytes.NewReader(data), "")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.md", res.Innerpath)
	res.Reader.Close()

	res, err = compression.Open("zip", bytes.NewReader(data), "other.csv")
	require.NoError(t, err)
	assert.Equal(t, "other.csv", res.Innerpath)
	assert.Equal(t, "a\n1\n", readResult(t, res))

	res, err = compression.Open("zip", bytes.NewReader(data), "*.csv")
	require.NoError(t, err)
	assert.Equal(t, "table.csv", res.Innerpath)
	assert.Equal(t, payload, readResult(t, res))

	_, err = compression.Open("zip", bytes.NewReader(data), "missing.csv")
	assert.ErrorIs(t, err, compression.ErrEntryNotFound)
}

func TestSingleStreamCodecs(t *testing.T) {
	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	_, _ = gw.Write([]byte(payload))
	require.NoError(t, gw.Close())

	var zs bytes.Buffer
	zw, err := zstd.NewWriter(&zs)
	require.NoError(t, err)
	_, _ = zw.Write([]byte(payload))
	require.NoError(t, zw.Close())

	var xzb bytes.Buffer
	xw, err := xz.NewWriter(&xzb)
	require.NoError(t, err)
	_, _ = xw.Write([]byte(payload))
	require.NoError(t, xw.Close())

	var sz bytes.Buffer
	sw := snappy.NewBufferedWriter(&sz)
	_, _ = sw.Write([]byte(payload))
	require.NoError(t, sw.Close())

	cases := map[string][]byte{
		"gz":   gz.Bytes(),
		"gzip": gz.Bytes(),
		"zst":  zs.Bytes(),
		"xz":   xzb.Bytes(),
		"sz":   sz.Bytes(),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			res, err := compression.Open(name, bytes.NewReader(data), "")
			require.NoError(t, err)
			assert.Empty(t, res.Innerpath)
			assert.Equal(t, payload, readResult(t, res))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "gz", compression.Normalize(".GZ"))
	assert.Equal(t, "bz2", compression.Normalize("bzip2"))
	assert.Equal(t, "", compression.Normalize("lz4"))
	assert.True(t, compression.IsArchive("7z"))
	assert.False(t, compression.IsArchive("gz"))
}

func TestUnsupported(t *testing.T) {
	_, err := compression.Open("lz4", bytes.NewReader(nil), "")
	assert.ErrorIs(t, err, compression.ErrUnsupported)
}
