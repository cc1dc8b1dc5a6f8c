package pipeline_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataresource/internal/pipeline"
	"dataresource/internal/resource"
)

// ── Helpers ─────────────────────────────────────────────────

const people = "id,name,age\n1,ann,31\n2,bob,25\n3,cid,31\n4,dee,40\n"

func newTable() *pipeline.Table {
	return &pipeline.Table{
		Labels: []string{"id", "name", "age"},
		Rows: [][]any{
			{int64(1), "ann", int64(31)},
			{int64(2), "bob", int64(25)},
			{int64(3), "cid", int64(31)},
			{int64(4), "dee", int64(40)},
		},
	}
}

func column(t *pipeline.Table, label string) []any {
	i := t.Index(label)
	out := make([]any, len(t.Rows))
	for n, row := range t.Rows {
		out[n] = row[i]
	}
	return out
}

// ── Steps ──────────────────────────────────────────────────

func TestRowSteps(t *testing.T) {
	tests := []struct {
		name  string
		step  pipeline.Step
		field string
		want  []any
	}{
		{"filter eq", &pipeline.RowFilter{Field: "age", Op: "eq", Value: 31}, "name", []any{"ann", "cid"}},
		{"filter gt", &pipeline.RowFilter{Field: "age", Op: "gt", Value: "30"}, "id", []any{int64(1), int64(3), int64(4)}},
		{"filter contains", &pipeline.RowFilter{Field: "name", Op: "contains", Value: "e"}, "name", []any{"dee"}},
		{"limit", &pipeline.RowLimit{Count: 2}, "id", []any{int64(1), int64(2)}},
		{"dedupe", &pipeline.RowDedupe{Fields: []string{"age"}}, "name", []any{"ann", "bob", "dee"}},
		{"sort desc", &pipeline.RowSort{Field: "age", Direction: "desc"}, "name", []any{"dee", "ann", "cid", "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := newTable()
			require.NoError(t, tt.step.Apply(tbl))
			assert.Equal(t, tt.want, column(tbl, tt.field))
		})
	}
}

func TestFieldSteps(t *testing.T) {
	tbl := newTable()
	require.NoError(t, (&pipeline.FieldRename{Mapping: map[string]string{"name": "first"}}).Apply(tbl))
	require.NoError(t, (&pipeline.FieldSelect{Fields: []string{"first", "id"}}).Apply(tbl))
	assert.Equal(t, []string{"first", "id"}, tbl.Labels)
	assert.Equal(t, []any{"ann", int64(1)}, tbl.Rows[0])

	require.NoError(t, (&pipeline.FieldCast{Field: "id", Type: "string"}).Apply(tbl))
	assert.Equal(t, "1", tbl.Rows[0][1])

	err := (&pipeline.FieldSelect{Fields: []string{"missing"}}).Apply(tbl)
	assert.ErrorContains(t, err, `field "missing" not found`)
}

func TestFieldUnpack(t *testing.T) {
	tbl := &pipeline.Table{
		Labels: []string{"id", "point"},
		Rows: [][]any{
			{int64(1), []any{1.5, 2.5}},
			{int64(2), map[string]any{"x": 3.0, "y": 4.0}},
			{int64(3), nil},
		},
	}
	require.NoError(t, (&pipeline.FieldUnpack{Field: "point", To: []string{"x", "y"}}).Apply(tbl))
	assert.Equal(t, []string{"id", "x", "y"}, tbl.Labels)
	assert.Equal(t, [][]any{
		{int64(1), 1.5, 2.5},
		{int64(2), 3.0, 4.0},
		{int64(3), nil, nil},
	}, tbl.Rows)
}

func TestTableTranspose(t *testing.T) {
	tbl := &pipeline.Table{
		Labels: []string{"key", "a", "b"},
		Rows:   [][]any{{"x", int64(1), int64(2)}, {"y", int64(3), int64(4)}},
	}
	require.NoError(t, pipeline.TableTranspose{}.Apply(tbl))
	assert.Equal(t, []string{"key", "x", "y"}, tbl.Labels)
	assert.Equal(t, [][]any{{"a", int64(1), int64(3)}, {"b", int64(2), int64(4)}}, tbl.Rows)
}

// ── Build ──────────────────────────────────────────────────

func TestBuild(t *testing.T) {
	steps, err := pipeline.Build([]pipeline.StepConfig{
		{Type: "row-filter", Config: map[string]any{"field": "age", "op": "gte", "value": 31.0}},
		{Type: "row-sort", Config: map[string]any{"field": "name", "direction": "desc"}},
		{Type: "row-limit", Config: map[string]any{"count": 2.0}},
		{Type: "field-select", Config: map[string]any{"fields": []any{"name"}}},
	})
	require.NoError(t, err)
	require.Len(t, steps, 4)

	tbl := newTable()
	for _, s := range steps {
		require.NoError(t, s.Apply(tbl))
	}
	assert.Equal(t, [][]any{{"dee"}, {"cid"}}, tbl.Rows)

	_, err = pipeline.Build([]pipeline.StepConfig{{Type: "row-explode"}})
	assert.ErrorContains(t, err, "unknown step type")
	_, err = pipeline.Build([]pipeline.StepConfig{{Type: "row-sort", Config: map[string]any{}}})
	assert.ErrorContains(t, err, `"field" is required`)
}

// ── Transform ──────────────────────────────────────────────

func TestTransform(t *testing.T) {
	ctx := context.Background()
	src, err := resource.New([]byte(people), resource.WithFormat("csv"), resource.WithName("people"))
	require.NoError(t, err)

	out, err := pipeline.Transform(ctx, src,
		&pipeline.RowFilter{Field: "age", Op: "eq", Value: 31},
		&pipeline.FieldSelect{Fields: []string{"id", "name"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "inline", out.Format())
	assert.Equal(t, "people", out.Name())
	require.NotNil(t, out.Schema())
	assert.Equal(t, []string{"id", "name"}, out.Schema().FieldNames())
	assert.Equal(t, "integer", out.Schema().Fields[0].Type)

	rows, err := out.ReadRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{int64(3), "cid"}, rows[1].Values)
}

// ── Writers ────────────────────────────────────────────────

func TestFileWritersRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, name := range []string{"out.csv", "out.tsv", "out.json", "out.jsonl", "out.csv.gz", "out.ndjson.zst"} {
		t.Run(name, func(t *testing.T) {
			target := filepath.Join(dir, name)
			dest, err := pipeline.DestinationFor(target)
			require.NoError(t, err)
			n, err := dest.Write(ctx, newTable(), target, pipeline.WriteReplace)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			r, err := resource.New(target)
			require.NoError(t, err)
			tbl, err := pipeline.ReadTable(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, newTable(), tbl)
		})
	}
}

func TestSQLiteWriter(t *testing.T) {
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "out.db")
	dest := &pipeline.SQLiteWriter{Table: "people"}

	_, err := dest.Write(ctx, newTable(), target, pipeline.WriteReplace)
	require.NoError(t, err)
	_, err = dest.Write(ctx, newTable(), target, pipeline.WriteAppend)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", target)
	require.NoError(t, err)
	defer db.Close()
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&count))
	assert.Equal(t, 8, count)

	_, err = dest.Write(ctx, newTable(), target, pipeline.WriteReplace)
	require.NoError(t, err)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "people"`).Scan(&count))
	assert.Equal(t, 4, count)
}

func TestDestinationForUnknown(t *testing.T) {
	_, err := pipeline.DestinationFor("out.xlsx")
	assert.Error(t, err)
	_, err = pipeline.DestinationFor("out.db.gz")
	assert.Error(t, err)
	_, err = os.Stat("out.xlsx")
	assert.True(t, os.IsNotExist(err))
}
