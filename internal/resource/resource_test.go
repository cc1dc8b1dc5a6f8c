package resource_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/parser"
	"dataresource/internal/resource"
	"dataresource/internal/schema"
)

// ── Helpers ─────────────────────────────────────────────────

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func values(rows []*resource.Row) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values
	}
	return out
}

const tableCSV = "id,name\n1,english\n2,中国人\n"

// ── Construction ───────────────────────────────────────────

func TestBufferScenario(t *testing.T) {
	ctx := context.Background()
	r, err := resource.New([]byte("header1,header2\nvalue1,value2"), resource.WithFormat("csv"))
	require.NoError(t, err)
	assert.Equal(t, resource.SourceBuffer, r.Kind())
	assert.Equal(t, "buffer", r.Scheme())
	assert.Equal(t, "csv", r.Format())

	require.NoError(t, r.Open(ctx))
	defer r.Close()
	cells, err := r.ReadCells(ctx)
	require.NoError(t, err)
	require.Len(t, cells, 2)
	assert.Equal(t, []any{"header1", "header2"}, cells[0])
	assert.Equal(t, []any{"value1", "value2"}, cells[1])

	require.NoError(t, r.Open(ctx))
	rows, err := r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"header1", "header2"}, r.Header())
	require.Len(t, rows, 1)
	assert.Equal(t, []any{"value1", "value2"}, rows[0].Values)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, map[string]any{"header1": "value1", "header2": "value2"}, rows[0].Map())
}

func TestEquivalentSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "table.csv", tableCSV)
	descPath := writeFile(t, dir, "resource.json", `{"path": "table.csv"}`)

	fromPath, err := resource.New("table.csv", resource.WithBasepath(dir))
	require.NoError(t, err)
	fromMap, err := resource.New(map[string]any{"path": "table.csv"}, resource.WithBasepath(dir))
	require.NoError(t, err)
	fromOptions, err := resource.New(nil, resource.WithPath("table.csv"), resource.WithBasepath(dir))
	require.NoError(t, err)
	fromDescriptor, err := resource.New(descPath)
	require.NoError(t, err)

	assert.Equal(t, resource.SourcePath, fromPath.Kind())
	assert.Equal(t, resource.SourceDescriptor, fromMap.Kind())
	assert.Equal(t, resource.SourceOptions, fromOptions.Kind())
	assert.Equal(t, resource.SourceDescriptorPath, fromDescriptor.Kind())

	want := fromPath.ToDescriptor()
	assert.Equal(t, "table", want.Name)
	assert.Equal(t, "file", want.Scheme)
	assert.Equal(t, "csv", want.Format)
	assert.Equal(t, "text/csv", want.Mediatype)
	for _, r := range []*resource.Resource{fromMap, fromOptions, fromDescriptor} {
		assert.Equal(t, want, r.ToDescriptor())
		assert.Equal(t, dir, r.Basepath())
	}

	rows, err := fromDescriptor.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "english"}, {int64(2), "中国人"}}, values(rows))
}

func TestExplicitOptionsOverrideDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "table.txt", "a;b\n1;2\n")

	r, err := resource.New("table.txt",
		resource.WithBasepath(dir),
		resource.WithFormat("csv"),
		resource.WithName("semicolons"),
		resource.WithDialect(&parser.Dialect{CSV: &parser.CSVControl{Delimiter: ";"}}),
	)
	require.NoError(t, err)
	assert.Equal(t, "csv", r.Format())
	assert.Equal(t, "semicolons", r.Name())

	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), int64(2)}}, values(rows))
}

func TestSourceResolutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		source any
		opts   []resource.Option
	}{
		{name: "unsupported type", source: 42},
		{name: "empty path", source: "  "},
		{name: "nothing", source: nil},
		{name: "descriptor without source", source: map[string]any{"name": "x"}},
		{name: "path and data", source: map[string]any{"path": "a.csv", "data": []any{}}},
		{name: "multipart path", source: map[string]any{"path": []any{"a.csv", "b.csv"}}},
		{name: "bad property type", source: map[string]any{"path": "a.csv", "format": 3}},
		{name: "untrusted absolute", source: map[string]any{"path": "/etc/passwd"}, opts: []resource.Option{resource.WithTrusted(false)}},
		{name: "untrusted parent", source: map[string]any{"path": "../secret.csv"}, opts: []resource.Option{resource.WithTrusted(false)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resource.New(tt.source, tt.opts...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, resource.ErrSourceResolution), err.Error())
			assert.Equal(t, resource.KindSourceResolution, resource.KindOf(err))
		})
	}
}

func TestDescriptorFileIsUntrusted(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "resource.json", `{"path": "/etc/hosts"}`)

	_, err := resource.New(p)
	assert.ErrorIs(t, err, resource.ErrSourceResolution)

	r, err := resource.New(p, resource.WithTrusted(true))
	require.NoError(t, err)
	assert.Equal(t, "/etc/hosts", r.Path())

	assert.True(t, resource.IsSafePath("data/table.csv"))
	assert.False(t, resource.IsSafePath("data/../../table.csv"))
	assert.False(t, resource.IsSafePath("~/table.csv"))
}

// ── Lifecycle ──────────────────────────────────────────────

func TestCloseIsIdempotent(t *testing.T) {
	r, err := resource.New("text://a,b\n1,2", resource.WithFormat("csv"))
	require.NoError(t, err)
	assert.True(t, r.Closed())
	require.NoError(t, r.Close())

	require.NoError(t, r.Open(context.Background()))
	assert.False(t, r.Closed())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
}

func TestReadRowsExhaustsSession(t *testing.T) {
	ctx := context.Background()
	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)

	require.NoError(t, r.Open(ctx))
	defer r.Close()
	rows, err := r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, r.Open(ctx))
	rows, err = r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestOneShotReadsLeaveResourceClosed(t *testing.T) {
	ctx := context.Background()
	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)

	b, err := r.ReadBytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, tableCSV, string(b))
	assert.True(t, r.Closed())

	text, err := r.ReadText(ctx)
	require.NoError(t, err)
	assert.Equal(t, tableCSV, text)

	rows, err := r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.True(t, r.Closed())
}

func TestLazyStreams(t *testing.T) {
	ctx := context.Background()
	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)

	_, err = r.CellStream()
	assert.ErrorIs(t, err, resource.ErrClosed)
	assert.ErrorIs(t, err, resource.ErrRead)

	require.NoError(t, r.Open(ctx))
	defer r.Close()
	cs, err := r.CellStream()
	require.NoError(t, err)
	n := 0
	for cs.Next() {
		n++
	}
	require.NoError(t, cs.Err())
	assert.Equal(t, 3, n)

	rs, err := r.RowStream()
	require.NoError(t, err)
	assert.False(t, rs.Next())
	assert.NoError(t, rs.Err())

	require.NoError(t, r.Open(ctx))
	rs, err = r.RowStream()
	require.NoError(t, err)
	var names []any
	for rs.Next() {
		v, ok := rs.Row().Get("name")
		require.True(t, ok)
		names = append(names, v)
	}
	assert.Equal(t, []any{"english", "中国人"}, names)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "book.xlsx", "not really")

	tests := []struct {
		name string
		src  any
		opts []resource.Option
	}{
		{name: "missing file", src: "missing.csv", opts: []resource.Option{resource.WithBasepath(dir)}},
		{name: "unsupported format", src: "book.xlsx", opts: []resource.Option{resource.WithBasepath(dir)}},
		{name: "unknown encoding", src: []byte("a\n1\n"), opts: []resource.Option{resource.WithFormat("csv"), resource.WithEncoding("klingon")}},
		{name: "s3", src: "s3://bucket/table.csv"},
		{name: "innerpath without archive", src: []byte("a\n1\n"), opts: []resource.Option{resource.WithFormat("csv"), resource.WithInnerpath("a.csv")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := resource.New(tt.src, tt.opts...)
			require.NoError(t, err)
			err = r.Open(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, resource.ErrOpen)
			assert.True(t, r.Closed())
		})
	}
}

func TestInvalidTextIsReadError(t *testing.T) {
	r, err := resource.New([]byte("a\n\xff\n"), resource.WithFormat("csv"), resource.WithEncoding("utf-8"))
	require.NoError(t, err)
	_, err = r.ReadText(context.Background())
	assert.ErrorIs(t, err, resource.ErrRead)
}

// ── Formats, compression, encoding ─────────────────────────

func TestCompressedFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("a,b\n1,2\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "table.csv.gz"), buf.Bytes(), 0644))

	r, err := resource.New("table.csv.gz", resource.WithBasepath(dir))
	require.NoError(t, err)
	assert.Equal(t, "csv", r.Format())
	assert.Equal(t, "gz", r.Compression())
	assert.Equal(t, "table", r.Name())

	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), int64(2)}}, values(rows))
}

func TestEncodingDetection(t *testing.T) {
	r, err := resource.New([]byte("name\ncaf\xe9\n"), resource.WithFormat("csv"))
	require.NoError(t, err)
	require.NoError(t, r.Infer(context.Background(), resource.InferOptions{}))
	assert.Equal(t, "windows-1252", r.Encoding())

	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"café"}}, values(rows))
}

func TestInlineData(t *testing.T) {
	r, err := resource.New([][]any{{"id", "name"}, {1, "a"}, {2, "b"}})
	require.NoError(t, err)
	assert.Equal(t, resource.SourceInline, r.Kind())
	assert.Equal(t, "inline", r.Format())
	assert.Equal(t, "memory", r.Name())

	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0].Values[0])
	assert.Equal(t, "b", rows[1].Values[1])

	_, err = r.ReadBytes(context.Background())
	assert.ErrorIs(t, err, resource.ErrRead)
}

func TestJSONPath(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people.json", `[{"id": 1, "name": "a"}, {"id": 2, "name": "b"}]`)

	r, err := resource.New("people.json", resource.WithBasepath(dir))
	require.NoError(t, err)
	assert.Equal(t, resource.SourcePath, r.Kind())
	assert.Equal(t, "json", r.Format())

	rows, err := r.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, rows[0].Fields())
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}}, values(rows))
}

// ── Metadata ───────────────────────────────────────────────

func TestValidatedSetters(t *testing.T) {
	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)

	require.NoError(t, r.SetName("table-1"))
	assert.Error(t, r.SetName("Bad Name"))
	assert.Equal(t, "table-1", r.Name())

	require.NoError(t, r.SetEncoding("latin1"))
	assert.Equal(t, "windows-1252", r.Encoding())
	assert.Error(t, r.SetEncoding("klingon"))
	assert.Equal(t, "windows-1252", r.Encoding())

	require.NoError(t, r.SetCompression("gzip"))
	assert.Equal(t, "gz", r.Compression())
	assert.Error(t, r.SetCompression("lzma9"))

	assert.Error(t, r.SetFormat("nope"))
	assert.Equal(t, "csv", r.Format())
	assert.Error(t, r.SetScheme("gopher"))

	assert.Error(t, r.SetSchema(&schema.Schema{Fields: []schema.Field{{Name: "a", Type: "color"}}}))
	assert.Nil(t, r.Schema())

	assert.Error(t, r.SetCustom("path", "x"))
	require.NoError(t, r.SetCustom("owner", "ops"))
	v, ok := r.Custom("owner")
	assert.True(t, ok)
	assert.Equal(t, "ops", v)
}

// ── Inference and serialization ────────────────────────────

func TestInferStatsMatchManualRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "table.csv", tableCSV)

	r, err := resource.New("table.csv", resource.WithBasepath(dir))
	require.NoError(t, err)
	assert.Nil(t, r.Stats())

	require.NoError(t, r.Infer(ctx, resource.InferOptions{Stats: true}))
	stats := r.Stats()
	require.NotNil(t, stats)

	b, err := r.ReadBytes(ctx)
	require.NoError(t, err)
	rows, err := r.ReadRows(ctx)
	require.NoError(t, err)

	sum := md5.Sum(b)
	assert.Equal(t, int64(len(b)), stats.Bytes)
	assert.Equal(t, len(rows), stats.Rows)
	assert.Equal(t, 2, stats.Fields)
	assert.Equal(t, hex.EncodeToString(sum[:]), stats.MD5)
	assert.Len(t, stats.SHA256, 64)

	assert.Equal(t, "utf-8", r.Encoding())
	require.NotNil(t, r.Schema())
	assert.Equal(t, []string{"id", "name"}, r.Schema().FieldNames())
	assert.Equal(t, "integer", r.Schema().Fields[0].Type)
}

func TestInferFailureKeepsMetadata(t *testing.T) {
	r, err := resource.New("missing.csv", resource.WithBasepath(t.TempDir()))
	require.NoError(t, err)
	before := r.ToDescriptor()

	err = r.Infer(context.Background(), resource.InferOptions{Stats: true})
	assert.ErrorIs(t, err, resource.ErrOpen)
	assert.Equal(t, before, r.ToDescriptor())
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "table.csv", tableCSV)

	r, err := resource.New("table.csv", resource.WithBasepath(dir), resource.WithTitle("Table"))
	require.NoError(t, err)
	require.NoError(t, r.SetCustom("owner", "ops"))
	require.NoError(t, r.Infer(ctx, resource.InferOptions{Stats: true}))

	out := filepath.Join(dir, "table.resource.json")
	require.NoError(t, r.ToJSON(out))

	loaded, err := resource.New(out)
	require.NoError(t, err)

	want, got := r.ToDescriptor(), loaded.ToDescriptor()
	want.Stats, got.Stats = nil, nil
	assert.Equal(t, want, got)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.Index(string(raw), `"name"`) < strings.Index(string(raw), `"owner"`))
}

func TestYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "table.csv", tableCSV)

	r, err := resource.New("table.csv", resource.WithBasepath(dir), resource.WithDescription("rows"))
	require.NoError(t, err)

	out := filepath.Join(dir, "table.resource.yaml")
	require.NoError(t, r.ToYAML(out))

	loaded, err := resource.New(out)
	require.NoError(t, err)
	assert.Equal(t, r.ToDescriptor(), loaded.ToDescriptor())
}

func TestSerializationError(t *testing.T) {
	r, err := resource.New("table.csv", resource.WithBasepath(t.TempDir()))
	require.NoError(t, err)

	err = r.ToJSON(filepath.Join(t.TempDir(), "missing", "out.json"))
	assert.ErrorIs(t, err, resource.ErrSerialization)
	err = r.ToYAML(filepath.Join(t.TempDir(), "missing", "out.yaml"))
	assert.ErrorIs(t, err, resource.ErrSerialization)
}

func TestMemorySourcesCannotBeSaved(t *testing.T) {
	dir := t.TempDir()
	sources := map[string]any{
		"buffer": []byte("a,b\n1,2\n"),
		"stream": strings.NewReader("a,b\n1,2\n"),
	}
	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			r, err := resource.New(src, resource.WithFormat("csv"))
			require.NoError(t, err)

			out := filepath.Join(dir, name+".json")
			assert.ErrorIs(t, r.ToJSON(out), resource.ErrSerialization)
			assert.ErrorIs(t, r.ToYAML(filepath.Join(dir, name+".yaml")), resource.ErrSerialization)
			assert.NoFileExists(t, out)
		})
	}
}

// ── Databases ──────────────────────────────────────────────

func TestSQLiteDefaultsToFirstTable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE zeta (x INTEGER)`,
		`CREATE TABLE people (id INTEGER, name TEXT)`,
		`INSERT INTO people VALUES (1, 'ann'), (2, 'bob')`,
	} {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	r, err := resource.New(path)
	require.NoError(t, err)
	assert.Equal(t, "sql", r.Format())
	require.NoError(t, r.Infer(ctx, resource.InferOptions{}))
	require.NotNil(t, r.Dialect().SQL)
	assert.Equal(t, "people", r.Dialect().SQL.Table)

	rows, err := r.ReadRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1), "ann"}, {int64(2), "bob"}}, values(rows))
}

func TestUntrustedSQLFragmentsRejected(t *testing.T) {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "data.db"))
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE people (id INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	desc := `{"path": "data.db", "dialect": {"sql": {"table": "people", "where": "1=1"}}}`
	p := writeFile(t, dir, "people.resource.json", desc)

	r, err := resource.New(p)
	require.NoError(t, err)
	_, err = r.ReadRows(context.Background())
	assert.ErrorIs(t, err, resource.ErrOpen)

	trusted, err := resource.New(p, resource.WithTrusted(true))
	require.NoError(t, err)
	rows, err := trusted.ReadRows(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// ── Validation ─────────────────────────────────────────────

func TestValidate(t *testing.T) {
	sc := &schema.Schema{Fields: []schema.Field{
		{Name: "id", Type: "integer", Constraints: &schema.Constraints{Required: true}},
		{Name: "name", Type: "string"},
	}}
	data := "id,name\n1,a\nx,b\n,c\n4\n5,e,extra\n,\n"
	r, err := resource.New([]byte(data), resource.WithFormat("csv"), resource.WithSchema(sc))
	require.NoError(t, err)

	rep, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Valid)
	assert.Equal(t, 6, rep.Rows)
	assert.Equal(t, 2, rep.Fields)

	types := map[string]int{}
	for _, e := range rep.Errors {
		types[e.Type] = e.RowNumber
	}
	assert.Equal(t, map[string]int{
		resource.ErrorCast:        3,
		resource.ErrorConstraint:  4,
		resource.ErrorMissingCell: 5,
		resource.ErrorExtraCell:   6,
		resource.ErrorBlankRow:    7,
	}, types)
}

func TestValidateClean(t *testing.T) {
	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)
	rep, err := r.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Valid)
	assert.Empty(t, rep.Errors)
}

// ── Observer ───────────────────────────────────────────────

type countingObserver struct {
	opened, closed, failed int
	rows                   int
}

func (o *countingObserver) Opened(string, string) { o.opened++ }
func (o *countingObserver) Closed(_ string, _ int64, rows int) {
	o.closed++
	o.rows += rows
}
func (o *countingObserver) Failed(string, resource.Kind) { o.failed++ }

func TestObserver(t *testing.T) {
	obs := &countingObserver{}
	resource.SetObserver(obs)
	defer resource.SetObserver(nil)

	r, err := resource.New([]byte(tableCSV), resource.WithFormat("csv"))
	require.NoError(t, err)
	_, err = r.ReadRows(context.Background())
	require.NoError(t, err)

	bad, err := resource.New("missing.csv", resource.WithBasepath(t.TempDir()))
	require.NoError(t, err)
	assert.Error(t, bad.Open(context.Background()))

	assert.Equal(t, 1, obs.opened)
	assert.Equal(t, 1, obs.closed)
	assert.Equal(t, 2, obs.rows)
	assert.Equal(t, 1, obs.failed)
}
