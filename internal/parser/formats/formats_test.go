package formats_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/parser"
	_ "dataresource/internal/parser/formats"
)

// ─────────────────────────────────────────────────────────────
// Format parsers: text-based, inline and sqlite tables
// ─────────────────────────────────────────────────────────────

func readAll(t *testing.T, format string, in parser.Input) [][]any {
	t.Helper()
	p, err := parser.Get(format)
	require.NoError(t, err)
	c, err := p.Open(context.Background(), in)
	require.NoError(t, err)
	defer c.Close()
	rows, err := parser.ReadAll(c)
	require.NoError(t, err)
	return rows
}

func TestCSV_Basic(t *testing.T) {
	rows := readAll(t, "csv", parser.Input{Text: strings.NewReader("header1,header2\nvalue1,value2")})
	assert.Equal(t, [][]any{{"header1", "header2"}, {"value1", "value2"}}, rows)
}

func TestCSV_DialectControls(t *testing.T) {
	d := &parser.Dialect{CSV: &parser.CSVControl{Delimiter: ";", NullSequence: "NA", SkipInitialSpace: true}}
	rows := readAll(t, "csv", parser.Input{Text: strings.NewReader("a; b\n1; NA\n"), Dialect: d})
	assert.Equal(t, [][]any{{"a", "b"}, {"1", nil}}, rows)
}

func TestCSV_RaggedRows(t *testing.T) {
	rows := readAll(t, "csv", parser.Input{Text: strings.NewReader("a,b,c\n1\n1,2,3,4\n")})
	require.Len(t, rows, 3)
	assert.Len(t, rows[1], 1)
	assert.Len(t, rows[2], 4)
}

func TestCSV_UnsupportedQuoteChar(t *testing.T) {
	p, err := parser.Get("csv")
	require.NoError(t, err)
	d := &parser.Dialect{CSV: &parser.CSVControl{QuoteChar: "'"}}
	_, err = p.Open(context.Background(), parser.Input{Text: strings.NewReader("a"), Dialect: d})
	assert.Error(t, err)
}

func TestTSV(t *testing.T) {
	rows := readAll(t, "tsv", parser.Input{Text: strings.NewReader("id\tname\n1\tenglish\n")})
	assert.Equal(t, [][]any{{"id", "name"}, {"1", "english"}}, rows)
}

func TestJSON_ArrayOfObjectsKeepsKeyOrder(t *testing.T) {
	text := `[{"id": 1, "name": "english"}, {"id": 2, "name": "中国人", "extra": true}]`
	rows := readAll(t, "json", parser.Input{Text: strings.NewReader(text)})
	assert.Equal(t, [][]any{
		{"id", "name", "extra"},
		{int64(1), "english", nil},
		{int64(2), "中国人", true},
	}, rows)
}

func TestJSON_ArrayOfArrays(t *testing.T) {
	rows := readAll(t, "json", parser.Input{Text: strings.NewReader(`[["id","score"],[1,1.5]]`)})
	assert.Equal(t, [][]any{{"id", "score"}, {int64(1), 1.5}}, rows)
}

func TestJSON_Property(t *testing.T) {
	d := &parser.Dialect{JSON: &parser.JSONControl{Property: "data.items"}}
	text := `{"data": {"items": [{"b": 1, "a": 2}]}}`
	rows := readAll(t, "json", parser.Input{Text: strings.NewReader(text), Dialect: d})
	assert.Equal(t, [][]any{{"b", "a"}, {int64(1), int64(2)}}, rows)
}

func TestJSON_Keys(t *testing.T) {
	d := &parser.Dialect{JSON: &parser.JSONControl{Keys: []string{"name"}}}
	rows := readAll(t, "json", parser.Input{Text: strings.NewReader(`[{"id":1,"name":"x"}]`), Dialect: d})
	assert.Equal(t, [][]any{{"name"}, {"x"}}, rows)
}

func TestJSON_Invalid(t *testing.T) {
	p, err := parser.Get("json")
	require.NoError(t, err)
	_, err = p.Open(context.Background(), parser.Input{Text: strings.NewReader(`[{"id": 1,`)})
	assert.Error(t, err)

	_, err = p.Open(context.Background(), parser.Input{Text: strings.NewReader(`{"id": 1}`)})
	assert.Error(t, err, "top-level object without property is not a table")
}

func TestJSONL(t *testing.T) {
	text := "{\"id\": 1, \"name\": \"a\"}\n\n{\"id\": 2, \"name\": \"b\"}\n"
	rows := readAll(t, "jsonl", parser.Input{Text: strings.NewReader(text)})
	assert.Equal(t, [][]any{{"id", "name"}, {int64(1), "a"}, {int64(2), "b"}}, rows)

	rows = readAll(t, "ndjson", parser.Input{Text: strings.NewReader("[\"x\"]\n[1]\n")})
	assert.Equal(t, [][]any{{"x"}, {int64(1)}}, rows)
}

func TestInline(t *testing.T) {
	rows := readAll(t, "inline", parser.Input{Data: [][]any{{"id"}, {1}}})
	assert.Equal(t, [][]any{{"id"}, {1}}, rows)

	rows = readAll(t, "inline", parser.Input{Data: []map[string]any{{"b": 1, "a": "x"}}})
	assert.Equal(t, [][]any{{"a", "b"}, {"x", 1}}, rows)

	p, err := parser.Get("inline")
	require.NoError(t, err)
	_, err = p.Open(context.Background(), parser.Input{Data: 42})
	assert.Error(t, err)
}

func TestSQL_SQLiteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE people (id INTEGER, name TEXT)`)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = db.Exec(`INSERT INTO people (id, name) VALUES (?, ?)`, i, strings.Repeat("x", i))
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	d := &parser.Dialect{SQL: &parser.SQLControl{Table: "people", OrderBy: "id DESC", Where: "id > 1"}}
	rows := readAll(t, "sql", parser.Input{Path: "sqlite://" + path, Dialect: d, Trusted: true})
	assert.Equal(t, [][]any{{"id", "name"}, {int64(3), "xxx"}, {int64(2), "xx"}}, rows)
}

func TestSQL_DefaultsToFirstTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE orders (n INTEGER)`,
		`CREATE TABLE accounts (name TEXT)`,
		`INSERT INTO accounts VALUES ('ann')`,
	} {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	d := &parser.Dialect{}
	rows := readAll(t, "sql", parser.Input{Path: "sqlite://" + path, Dialect: d})
	assert.Equal(t, [][]any{{"name"}, {"ann"}}, rows)
	require.NotNil(t, d.SQL)
	assert.Equal(t, "accounts", d.SQL.Table)
}

func TestSQL_EmptyDatabase(t *testing.T) {
	p, err := parser.Get("sql")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "empty.db")
	_, err = p.Open(context.Background(), parser.Input{Path: "sqlite://" + path})
	assert.ErrorContains(t, err, "no tables")
}

func TestSQL_FragmentChecks(t *testing.T) {
	p, err := parser.Get("sql")
	require.NoError(t, err)
	cases := []struct {
		name    string
		ctl     parser.SQLControl
		trusted bool
		want    string
	}{
		{name: "untrusted where", ctl: parser.SQLControl{Table: "t", Where: "id > 1"}, want: "not allowed"},
		{name: "untrusted order", ctl: parser.SQLControl{Table: "t", OrderBy: "id"}, want: "not allowed"},
		{name: "stacked statement", ctl: parser.SQLControl{Table: "t", Where: "1=1; DROP TABLE t"}, trusted: true, want: "invalid where"},
		{name: "line comment", ctl: parser.SQLControl{Table: "t", OrderBy: "id -- x"}, trusted: true, want: "invalid orderBy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctl := tc.ctl
			in := parser.Input{Path: "sqlite:///unused.db", Dialect: &parser.Dialect{SQL: &ctl}, Trusted: tc.trusted}
			_, err := p.Open(context.Background(), in)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestDialect_CloneKeepsSortOrder(t *testing.T) {
	d := &parser.Dialect{Mongo: &parser.MongoControl{
		Collection: "events",
		Sort:       []parser.SortKey{{Field: "day", Direction: -1}, {Field: "at", Direction: 1}},
	}}
	c := d.Clone()
	assert.Equal(t, d.Mongo.Sort, c.Mongo.Sort)
	c.Mongo.Sort[0].Field = "changed"
	assert.Equal(t, "day", d.Mongo.Sort[0].Field)
}

func TestRegistry_Lookup(t *testing.T) {
	spec, ok := parser.ForExtension("CSV")
	require.True(t, ok)
	assert.Equal(t, "csv", spec.Format)

	spec, ok = parser.ForMediaType("application/json; charset=utf-8")
	require.True(t, ok)
	assert.Equal(t, "json", spec.Format)

	_, err := parser.Get("xlsx")
	assert.ErrorIs(t, err, parser.ErrUnsupported)
}
