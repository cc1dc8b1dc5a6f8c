package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Dialect configures header location, comment handling and per-format
// parsing controls. The zero value means "header on row 1, defaults everywhere".
type Dialect struct {
	Header      *bool  `json:"header,omitempty" yaml:"header,omitempty"`
	HeaderRows  []int  `json:"headerRows,omitempty" yaml:"headerRows,omitempty"`
	HeaderJoin  string `json:"headerJoin,omitempty" yaml:"headerJoin,omitempty"`
	CommentChar string `json:"commentChar,omitempty" yaml:"commentChar,omitempty"`
	CommentRows []int  `json:"commentRows,omitempty" yaml:"commentRows,omitempty"`

	CSV   *CSVControl   `json:"csv,omitempty" yaml:"csv,omitempty"`
	JSON  *JSONControl  `json:"json,omitempty" yaml:"json,omitempty"`
	SQL   *SQLControl   `json:"sql,omitempty" yaml:"sql,omitempty"`
	Mongo *MongoControl `json:"mongo,omitempty" yaml:"mongo,omitempty"`
}

// CSVControl holds delimiter-separated parsing options.
type CSVControl struct {
	Delimiter        string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
	LineTerminator   string `json:"lineTerminator,omitempty" yaml:"lineTerminator,omitempty"`
	QuoteChar        string `json:"quoteChar,omitempty" yaml:"quoteChar,omitempty"`
	DoubleQuote      *bool  `json:"doubleQuote,omitempty" yaml:"doubleQuote,omitempty"`
	EscapeChar       string `json:"escapeChar,omitempty" yaml:"escapeChar,omitempty"`
	NullSequence     string `json:"nullSequence,omitempty" yaml:"nullSequence,omitempty"`
	SkipInitialSpace bool   `json:"skipInitialSpace,omitempty" yaml:"skipInitialSpace,omitempty"`
}

// JSONControl holds options for JSON documents and JSON lines.
type JSONControl struct {
	Keyed    bool     `json:"keyed,omitempty" yaml:"keyed,omitempty"`
	Keys     []string `json:"keys,omitempty" yaml:"keys,omitempty"`
	Property string   `json:"property,omitempty" yaml:"property,omitempty"`
}

// SQLControl selects the table (and optional filter/order) read by the sql format.
type SQLControl struct {
	Table     string `json:"table,omitempty" yaml:"table,omitempty"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	OrderBy   string `json:"orderBy,omitempty" yaml:"orderBy,omitempty"`
	Where     string `json:"where,omitempty" yaml:"where,omitempty"`
}

// MongoControl selects the collection read by the mongo format.
type MongoControl struct {
	Collection string         `json:"collection,omitempty" yaml:"collection,omitempty"`
	Filter     map[string]any `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort       []SortKey      `json:"sort,omitempty" yaml:"sort,omitempty"`
}

// SortKey orders documents by one field; earlier keys take priority.
type SortKey struct {
	Field     string `json:"field" yaml:"field"`
	Direction int    `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// HasHeader reports whether the table carries a header. Default true.
func (d *Dialect) HasHeader() bool {
	if d == nil || d.Header == nil {
		return true
	}
	return *d.Header
}

// GetHeaderRows returns the 1-based row numbers that form the header.
func (d *Dialect) GetHeaderRows() []int {
	if !d.HasHeader() {
		return nil
	}
	if d == nil || len(d.HeaderRows) == 0 {
		return []int{1}
	}
	return d.HeaderRows
}

// GetHeaderJoin returns the separator used for multi-row headers.
func (d *Dialect) GetHeaderJoin() string {
	if d == nil || d.HeaderJoin == "" {
		return " "
	}
	return d.HeaderJoin
}

// IsComment reports whether the row with the given 1-based number and cells
// should be skipped as a comment.
func (d *Dialect) IsComment(number int, cells []any) bool {
	if d == nil {
		return false
	}
	for _, n := range d.CommentRows {
		if n == number {
			return true
		}
	}
	if d.CommentChar != "" && len(cells) > 0 {
		if s, ok := cells[0].(string); ok && strings.HasPrefix(s, d.CommentChar) {
			return true
		}
	}
	return false
}

// CSVOptions returns the csv control, never nil.
func (d *Dialect) CSVOptions() CSVControl {
	if d == nil || d.CSV == nil {
		return CSVControl{}
	}
	return *d.CSV
}

// JSONOptions returns the json control, never nil.
func (d *Dialect) JSONOptions() JSONControl {
	if d == nil || d.JSON == nil {
		return JSONControl{}
	}
	return *d.JSON
}

// SQLOptions returns the sql control, never nil.
func (d *Dialect) SQLOptions() SQLControl {
	if d == nil || d.SQL == nil {
		return SQLControl{}
	}
	return *d.SQL
}

// MongoOptions returns the mongo control, never nil.
func (d *Dialect) MongoOptions() MongoControl {
	if d == nil || d.Mongo == nil {
		return MongoControl{}
	}
	return *d.Mongo
}

// Validate checks values that can be rejected without reading data.
func (d *Dialect) Validate() error {
	if d == nil {
		return nil
	}
	for _, n := range d.HeaderRows {
		if n < 1 {
			return fmt.Errorf("dialect: headerRows must be >= 1, got %d", n)
		}
	}
	for _, n := range d.CommentRows {
		if n < 1 {
			return fmt.Errorf("dialect: commentRows must be >= 1, got %d", n)
		}
	}
	if d.CSV != nil {
		if d.CSV.Delimiter != "" && utf8.RuneCountInString(d.CSV.Delimiter) != 1 {
			return fmt.Errorf("dialect: csv delimiter must be a single character, got %q", d.CSV.Delimiter)
		}
		if d.CSV.QuoteChar != "" && utf8.RuneCountInString(d.CSV.QuoteChar) != 1 {
			return fmt.Errorf("dialect: csv quoteChar must be a single character, got %q", d.CSV.QuoteChar)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (d *Dialect) Clone() *Dialect {
	if d == nil {
		return nil
	}
	c := *d
	if d.Header != nil {
		h := *d.Header
		c.Header = &h
	}
	c.HeaderRows = append([]int(nil), d.HeaderRows...)
	c.CommentRows = append([]int(nil), d.CommentRows...)
	if d.CSV != nil {
		csv := *d.CSV
		if d.CSV.DoubleQuote != nil {
			dq := *d.CSV.DoubleQuote
			csv.DoubleQuote = &dq
		}
		c.CSV = &csv
	}
	if d.JSON != nil {
		j := *d.JSON
		j.Keys = append([]string(nil), d.JSON.Keys...)
		c.JSON = &j
	}
	if d.SQL != nil {
		s := *d.SQL
		c.SQL = &s
	}
	if d.Mongo != nil {
		m := *d.Mongo
		m.Filter = copyMap(d.Mongo.Filter)
		m.Sort = append([]SortKey(nil), d.Mongo.Sort...)
		c.Mongo = &m
	}
	return &c
}

// IsZero reports whether the dialect carries no settings at all.
func (d *Dialect) IsZero() bool {
	if d == nil {
		return true
	}
	return d.Header == nil && len(d.HeaderRows) == 0 && d.HeaderJoin == "" &&
		d.CommentChar == "" && len(d.CommentRows) == 0 &&
		d.CSV == nil && d.JSON == nil && d.SQL == nil && d.Mongo == nil
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// SniffDelimiter picks the most consistent delimiter among a few candidates
// across the first lines of a text sample. It returns "" when nothing fits.
func SniffDelimiter(sample string) string {
	lines := strings.Split(sample, "\n")
	if len(lines) > 1 && !strings.HasSuffix(sample, "\n") {
		// the last line may be cut mid-row
		lines = lines[:len(lines)-1]
	}
	var nonEmpty []string
	for _, l := range lines {
		l = strings.TrimRight(l, "\r")
		if l != "" {
			nonEmpty = append(nonEmpty, l)
		}
		if len(nonEmpty) == 20 {
			break
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}

	best, bestCount := "", 0
	for _, cand := range []string{",", ";", "\t", "|"} {
		first := strings.Count(nonEmpty[0], cand)
		if first == 0 {
			continue
		}
		consistent := true
		for _, l := range nonEmpty[1:] {
			if strings.Count(l, cand) != first {
				consistent = false
				break
			}
		}
		if consistent && first > bestCount {
			best, bestCount = cand, first
		}
	}
	return best
}
