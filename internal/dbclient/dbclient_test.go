package dbclient

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestSortDocumentKeepsPriority(t *testing.T) {
	d, err := sortDocument([]SortKey{{Field: "zone", Direction: -1}, {Field: "at"}, {Field: "id", Direction: 1}})
	if err != nil {
		t.Fatal(err)
	}
	want := bson.D{{Key: "zone", Value: -1}, {Key: "at", Value: 1}, {Key: "id", Value: 1}}
	if len(d) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(d))
	}
	for i := range want {
		if d[i].Key != want[i].Key || d[i].Value != want[i].Value {
			t.Errorf("key %d: expected %v, got %v", i, want[i], d[i])
		}
	}

	if _, err := sortDocument([]SortKey{{Field: "x", Direction: 2}}); err == nil {
		t.Error("expected an error for direction 2")
	}
	if _, err := sortDocument([]SortKey{{Direction: 1}}); err == nil {
		t.Error("expected an error for a key without field")
	}
}

func TestMongoQueryEncodeSortOrder(t *testing.T) {
	q, err := MongoQuery{Collection: "c", Sort: []SortKey{{Field: "b", Direction: 1}, {Field: "a", Direction: -1}}}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := `{"collection":"c","sort":[{"field":"b","direction":1},{"field":"a","direction":-1}]}`
	if q != want {
		t.Errorf("expected %s, got %s", want, q)
	}
}

func TestMongoDatabaseName(t *testing.T) {
	cases := map[string]string{
		"mongodb://localhost:27017/shop":                   "shop",
		"mongodb+srv://u:p@cluster.example/app?retry=true": "app",
		"mongodb://localhost":                              "test",
	}
	for uri, want := range cases {
		if got := mongoDatabaseName(uri); got != want {
			t.Errorf("mongoDatabaseName(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestSQLiteIntrospectAndPaging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, stmt := range []string{
		`CREATE TABLE zeta (x INTEGER)`,
		`CREATE TABLE alpha (id INTEGER, label TEXT)`,
		`INSERT INTO alpha VALUES (1, 'a'), (2, 'b'), (3, 'c')`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	conn, err := NewConnector("sqlite://" + filepath.ToSlash(path))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	ctx := context.Background()

	info, err := conn.Introspect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(info.Tables) != 2 || info.Tables[0].Name != "alpha" || info.Tables[1].Name != "zeta" {
		t.Fatalf("unexpected tables %+v", info.Tables)
	}
	if cols := info.Tables[0].Columns; len(cols) != 2 || cols[1].Name != "label" {
		t.Errorf("unexpected alpha columns %+v", cols)
	}

	page, err := conn.Execute(ctx, `SELECT * FROM alpha ORDER BY id`, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 2 || !page.HasMore {
		t.Fatalf("expected a full first page, got %+v", page)
	}
	page, err = conn.FetchMore(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Rows) != 1 || page.HasMore || page.TotalFetched != 3 {
		t.Errorf("unexpected last page %+v", page)
	}

	if _, err := conn.Execute(ctx, `DELETE FROM alpha`, 2); err == nil {
		t.Error("expected write queries to be rejected")
	}
}
