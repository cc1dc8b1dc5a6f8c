package pipeline

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cast"

	_ "modernc.org/sqlite"
)

// ── Destination ────────────────────────────────────────────
// A Destination writes a table into a target file or database.

// WriteMode determines how rows land in a database target.
type WriteMode string

const (
	WriteReplace WriteMode = "replace" // drop the table and write fresh rows
	WriteAppend  WriteMode = "append"  // add rows, creating the table if needed
)

type Destination interface {
	Write(ctx context.Context, t *Table, target string, mode WriteMode) (int, error)
}

// DestinationFor picks a writer from the target's extension:
// .csv, .tsv, .json, .jsonl/.ndjson (optionally .gz or .zst) and .db/.sqlite.
func DestinationFor(target string) (Destination, error) {
	name := strings.ToLower(filepath.Base(target))
	comp := ""
	for _, ext := range []string{".gz", ".zst"} {
		if strings.HasSuffix(name, ext) {
			comp = ext[1:]
			name = strings.TrimSuffix(name, ext)
		}
	}
	switch ext := filepath.Ext(name); ext {
	case ".csv":
		return &FileWriter{Format: "csv", Compression: comp}, nil
	case ".tsv", ".tab":
		return &FileWriter{Format: "tsv", Compression: comp}, nil
	case ".json":
		return &FileWriter{Format: "json", Compression: comp}, nil
	case ".jsonl", ".ndjson":
		return &FileWriter{Format: "jsonl", Compression: comp}, nil
	case ".db", ".sqlite", ".sqlite3":
		if comp != "" {
			return nil, fmt.Errorf("compressed database targets are not supported")
		}
		return &SQLiteWriter{}, nil
	default:
		return nil, fmt.Errorf("no writer for %q", target)
	}
}

// ── File Destination ───────────────────────────────────────

// FileWriter writes delimited or JSON text, optionally compressed.
type FileWriter struct {
	Format      string // "csv" | "tsv" | "json" | "jsonl"
	Compression string // "" | "gz" | "zst"
}

func (w *FileWriter) Write(ctx context.Context, t *Table, target string, _ WriteMode) (n int, err error) {
	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", target, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	bw := bufio.NewWriter(f)
	var out io.Writer = bw
	var closer io.Closer
	switch w.Compression {
	case "":
	case "gz":
		gz := gzip.NewWriter(bw)
		out, closer = gz, gz
	case "zst":
		zw, err := zstd.NewWriter(bw)
		if err != nil {
			return 0, err
		}
		out, closer = zw, zw
	default:
		return 0, fmt.Errorf("unsupported output compression %q", w.Compression)
	}

	switch w.Format {
	case "csv":
		n, err = writeDelimited(ctx, out, t, ',')
	case "tsv":
		n, err = writeDelimited(ctx, out, t, '\t')
	case "json":
		n, err = writeJSON(ctx, out, t, false)
	case "jsonl":
		n, err = writeJSON(ctx, out, t, true)
	default:
		err = fmt.Errorf("unsupported output format %q", w.Format)
	}
	if err != nil {
		return n, err
	}
	if closer != nil {
		if err := closer.Close(); err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}

func writeDelimited(ctx context.Context, w io.Writer, t *Table, comma rune) (int, error) {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Labels); err != nil {
		return 0, err
	}
	record := make([]string, len(t.Labels))
	for i, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		for j := range record {
			record[j] = ""
			if j < len(row) {
				record[j] = cellText(row[j])
			}
		}
		if err := cw.Write(record); err != nil {
			return i, err
		}
	}
	cw.Flush()
	return len(t.Rows), cw.Error()
}

// writeJSON emits keyed objects with keys in label order.
func writeJSON(ctx context.Context, w io.Writer, t *Table, lines bool) (int, error) {
	keys := make([][]byte, len(t.Labels))
	for i, l := range t.Labels {
		keys[i], _ = json.Marshal(l)
	}
	if !lines {
		if _, err := io.WriteString(w, "[\n"); err != nil {
			return 0, err
		}
	}
	for i, row := range t.Rows {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		var b strings.Builder
		if !lines {
			b.WriteString("  ")
		}
		b.WriteByte('{')
		for j, k := range keys {
			if j > 0 {
				b.WriteByte(',')
			}
			var v any
			if j < len(row) {
				v = jsonValue(row[j])
			}
			vb, err := json.Marshal(v)
			if err != nil {
				return i, fmt.Errorf("row %d: %w", i+1, err)
			}
			b.Write(k)
			b.WriteByte(':')
			b.Write(vb)
		}
		b.WriteByte('}')
		if !lines && i < len(t.Rows)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return i, err
		}
	}
	if !lines {
		if _, err := io.WriteString(w, "]\n"); err != nil {
			return len(t.Rows), err
		}
	}
	return len(t.Rows), nil
}

// ── SQLite Destination ─────────────────────────────────────

// SQLiteWriter writes rows into a table of a SQLite file. Table defaults to
// "data".
type SQLiteWriter struct {
	Table string
}

func (w *SQLiteWriter) Write(ctx context.Context, t *Table, target string, mode WriteMode) (int, error) {
	table := w.Table
	if table == "" {
		table = "data"
	}
	db, err := sql.Open("sqlite", target+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", target, err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	qt := quote(table)
	if mode != WriteAppend {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qt); err != nil {
			return 0, fmt.Errorf("clear target: %w", err)
		}
	}
	cols := make([]string, len(t.Labels))
	marks := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		cols[i] = quote(l) + " " + sqliteType(t, i)
		marks[i] = "?"
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", qt, strings.Join(cols, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	names := make([]string, len(t.Labels))
	for i, l := range t.Labels {
		names[i] = quote(l)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qt, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Labels))
	for i, row := range t.Rows {
		for j := range args {
			args[j] = nil
			if j < len(row) {
				args[j] = sqlValue(row[j])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return i, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(t.Rows), nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// sqliteType picks a column affinity from the first non-nil value.
func sqliteType(t *Table, col int) string {
	for _, row := range t.Rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch row[col].(type) {
		case int, int32, int64, bool:
			return "INTEGER"
		case float32, float64:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "TEXT"
}

// ── Helpers ────────────────────────────────────────────────

func cellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return formatTime(x)
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return cast.ToString(x)
	}
}

func jsonValue(v any) any {
	if tm, ok := v.(time.Time); ok {
		return formatTime(tm)
	}
	return v
}

func sqlValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return formatTime(x)
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	}
	return v
}

// formatTime writes dates without a clock and everything else as RFC 3339.
func formatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}
