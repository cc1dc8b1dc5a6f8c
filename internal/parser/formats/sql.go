package formats

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"dataresource/internal/dbclient"
	"dataresource/internal/parser"
)

// ── SQL ─────────────────────────────────────────────────────
// Reads one table from a database addressed by URL
// (sqlite:///path.db, postgres://..., mysql://...). Without a dialect table
// the first table by name is read.

const pageSize = 500

type sqlParser struct{}

func init() { parser.Register(&sqlParser{}) }

func (p *sqlParser) Spec() parser.Spec {
	return parser.Spec{
		Format:     "sql",
		Label:      "SQL Table",
		Kind:       parser.KindLocation,
		Extensions: []string{"db", "sqlite", "sqlite3"},
		MediaType:  "application/vnd.sqlite3",
	}
}

func (p *sqlParser) Open(ctx context.Context, in parser.Input) (parser.Cursor, error) {
	u, err := url.Parse(in.Path)
	if err != nil {
		return nil, fmt.Errorf("sql: parse url: %w", err)
	}
	driver := dbclient.DriverFor(u.Scheme)
	if driver == "" || driver == dbclient.DriverMongoDB {
		return nil, fmt.Errorf("sql: unsupported database scheme %q", u.Scheme)
	}
	ctl := in.Dialect.SQLOptions()
	if err := checkFragments(ctl, in.Trusted); err != nil {
		return nil, err
	}

	conn, err := dbclient.NewConnector(in.Path)
	if err != nil {
		return nil, err
	}
	if ctl.Table == "" {
		if ctl.Table, err = firstTable(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sql: %w", err)
		}
		if in.Dialect != nil {
			in.Dialect.SQL = &ctl
		}
	}

	query, err := buildSelect(driver, ctl)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return openPaged(ctx, conn, query)
}

// firstTable picks the first table or collection by name when the dialect
// leaves it unset, the way an archive defaults to its first entry.
func firstTable(ctx context.Context, conn dbclient.Connector) (string, error) {
	info, err := conn.Introspect(ctx)
	if err != nil {
		return "", err
	}
	if len(info.Tables) == 0 {
		return "", fmt.Errorf("database has no tables")
	}
	names := make([]string, len(info.Tables))
	for i, t := range info.Tables {
		names[i] = t.Name
	}
	log.Debug().Strs("tables", names).Str("table", names[0]).Msg("formats: table defaulted")
	return names[0], nil
}

// checkFragments guards the raw where/orderBy fragments: untrusted
// descriptors may not carry them, and a statement separator is never allowed.
func checkFragments(ctl parser.SQLControl, trusted bool) error {
	for _, f := range []struct{ key, value string }{{"where", ctl.Where}, {"orderBy", ctl.OrderBy}} {
		if f.value == "" {
			continue
		}
		if !trusted {
			return fmt.Errorf("sql: %s is not allowed for untrusted resources", f.key)
		}
		if strings.ContainsAny(f.value, ";\x00") || strings.Contains(f.value, "--") {
			return fmt.Errorf("sql: invalid %s %q", f.key, f.value)
		}
	}
	return nil
}

// buildSelect renders the read query for a table. where and orderBy are
// passed through as SQL fragments once checkFragments accepted them.
func buildSelect(driver string, ctl parser.SQLControl) (string, error) {
	table, err := quoteIdent(driver, ctl.Table)
	if err != nil {
		return "", err
	}
	if ctl.Namespace != "" {
		ns, err := quoteIdent(driver, ctl.Namespace)
		if err != nil {
			return "", err
		}
		table = ns + "." + table
	}
	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(table)
	if ctl.Where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(ctl.Where)
	}
	if ctl.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(ctl.OrderBy)
	}
	return b.String(), nil
}

func quoteIdent(driver, name string) (string, error) {
	q := `"`
	if driver == dbclient.DriverMySQL {
		q = "`"
	}
	if strings.Contains(name, q) || strings.ContainsAny(name, ";\x00") {
		return "", fmt.Errorf("sql: invalid identifier %q", name)
	}
	return q + name + q, nil
}

// pagedCursor walks a dbclient cursor page by page. The first row it yields
// is the header of the first page; later pages are aligned to that header by
// column name.
type pagedCursor struct {
	ctx    context.Context
	conn   dbclient.Connector
	header []string
	page   *dbclient.QueryPage
	index  []int // page column -> header position
	pos    int
	sent   bool
	closed bool
}

func openPaged(ctx context.Context, conn dbclient.Connector, query string) (*pagedCursor, error) {
	page, err := conn.Execute(ctx, query, pageSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("execute: %w", err)
	}
	c := &pagedCursor{ctx: ctx, conn: conn, header: append([]string(nil), page.Columns...)}
	c.setPage(page)
	return c, nil
}

func (c *pagedCursor) setPage(page *dbclient.QueryPage) {
	c.page = page
	c.pos = 0
	pos := make(map[string]int, len(c.header))
	for i, h := range c.header {
		pos[h] = i
	}
	c.index = make([]int, len(page.Columns))
	for i, col := range page.Columns {
		if j, ok := pos[col]; ok {
			c.index[i] = j
		} else {
			c.index[i] = -1
		}
	}
}

func (c *pagedCursor) Next() ([]any, error) {
	if !c.sent {
		c.sent = true
		labels := make([]any, len(c.header))
		for i, h := range c.header {
			labels[i] = h
		}
		return labels, nil
	}
	for c.pos >= len(c.page.Rows) {
		if !c.page.HasMore {
			return nil, io.EOF
		}
		page, err := c.conn.FetchMore(c.ctx, pageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
		c.setPage(page)
	}
	src := c.page.Rows[c.pos]
	c.pos++
	row := make([]any, len(c.header))
	for i, v := range src {
		if i < len(c.index) && c.index[i] >= 0 {
			row[c.index[i]] = v
		}
	}
	return row, nil
}

func (c *pagedCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
