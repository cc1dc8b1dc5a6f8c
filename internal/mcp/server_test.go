package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	csv := "id,name,score\n1,ann,1.5\n2,bob,x\n3,cid,3\n"
	if err := os.WriteFile(filepath.Join(dir, "table.csv"), []byte(csv), 0644); err != nil {
		t.Fatal(err)
	}
	return New(context.Background(), Deps{Basepath: dir}), dir
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) map[string]any {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("tool failed: %v", err)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("result is not a JSON object: %v\n%s", err, text.Text)
	}
	return out
}

func TestDescribeResource(t *testing.T) {
	s, _ := newTestServer(t)
	desc := callTool(t, s.handleDescribeResource, map[string]any{"source": "table.csv"})

	if desc["format"] != "csv" || desc["type"] != "table" {
		t.Errorf("unexpected descriptor %v", desc)
	}
	schema, ok := desc["schema"].(map[string]any)
	if !ok {
		t.Fatalf("expected schema, got %v", desc["schema"])
	}
	fields := schema["fields"].([]any)
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if f := fields[0].(map[string]any); f["type"] != "integer" {
		t.Errorf("expected integer id, got %v", f["type"])
	}
	if _, ok := desc["stats"]; ok {
		t.Error("describe should not compute stats")
	}
}

func TestInferResourceWithStats(t *testing.T) {
	s, _ := newTestServer(t)
	desc := callTool(t, s.handleInferResource, map[string]any{"source": "table.csv", "stats": true})
	stats, ok := desc["stats"].(map[string]any)
	if !ok {
		t.Fatalf("expected stats, got %v", desc)
	}
	if stats["rows"] != float64(3) {
		t.Errorf("expected 3 rows, got %v", stats["rows"])
	}
}

func TestReadRows_OffsetLimit(t *testing.T) {
	s, _ := newTestServer(t)
	out := callTool(t, s.handleReadRows, map[string]any{"source": "table.csv", "offset": 1, "limit": "1"})

	rows := out["rows"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0].(map[string]any)
	if row["rowNumber"] != float64(3) {
		t.Errorf("expected row number 3, got %v", row["rowNumber"])
	}
}

func TestReadRows_DescriptorSource(t *testing.T) {
	s, _ := newTestServer(t)
	source := `{"path":"table.csv","schema":{"fields":[{"name":"id","type":"integer"},{"name":"name","type":"string"},{"name":"score","type":"number"}]}}`
	out := callTool(t, s.handleReadRows, map[string]any{"source": source})

	rows := out["rows"].([]any)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	bad := rows[1].(map[string]any)
	if errs, _ := bad["errors"].([]any); len(errs) != 1 {
		t.Errorf("expected one cast error on row 3, got %v", bad["errors"])
	}
}

func TestValidateResource(t *testing.T) {
	s, _ := newTestServer(t)
	source := map[string]any{
		"path": "table.csv",
		"schema": map[string]any{"fields": []any{
			map[string]any{"name": "id", "type": "integer"},
			map[string]any{"name": "name", "type": "string"},
			map[string]any{"name": "score", "type": "number"},
		}},
	}
	report := callTool(t, s.handleValidateResource, map[string]any{"source": source})
	if report["valid"] != false {
		t.Errorf("expected invalid report, got %v", report)
	}
}

func TestUnsafePathRejected(t *testing.T) {
	s, _ := newTestServer(t)
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"source": "../secret.csv"}
	if _, err := s.handleDescribeResource(context.Background(), req); err == nil {
		t.Fatal("expected an error for a path outside the base directory")
	}
}

func TestListFormats(t *testing.T) {
	s, _ := newTestServer(t)
	out := callTool(t, s.handleListFormats, nil)
	for _, key := range []string{"formats", "schemes", "compressions"} {
		if list, _ := out[key].([]any); len(list) == 0 {
			t.Errorf("expected non-empty %s", key)
		}
	}
}

func TestCatalogToolsWithoutCatalog(t *testing.T) {
	s, _ := newTestServer(t)
	var req mcp.CallToolRequest
	req.Params.Arguments = map[string]any{"path": "table.csv"}
	if _, err := s.handleRegisterResource(context.Background(), req); err == nil {
		t.Fatal("expected an error when no catalog is configured")
	}
}

func TestEntryNameFromURI(t *testing.T) {
	cases := map[string]string{
		"catalog://entry/people": "people",
		"catalog://entry/a/b":    "",
		"catalog://entries":      "",
		"other://entry/people":   "",
	}
	for uri, want := range cases {
		if got := entryNameFromURI(uri); got != want {
			t.Errorf("entryNameFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
