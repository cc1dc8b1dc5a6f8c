package dbclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// QueryPage is a batch of rows fetched from a query cursor.
type QueryPage struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalFetched int      `json:"totalFetched"` // total rows fetched so far
	HasMore      bool     `json:"hasMore"`      // cursor has more rows
}

// SchemaInfo lists the tables or collections of a database.
type SchemaInfo struct {
	Tables []TableInfo `json:"tables"`
}

// TableInfo describes a table/collection.
type TableInfo struct {
	Name    string       `json:"name"`
	Columns []ColumnInfo `json:"columns"`
}

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Connector abstracts read access to an external database.
type Connector interface {
	// Execute runs a read query and returns the first batch of rows.
	Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error)

	// FetchMore continues reading from the open cursor.
	FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error)

	// Introspect returns the database tables and columns, sorted by name.
	Introspect(ctx context.Context) (*SchemaInfo, error)

	// Close closes the connection and any open cursors.
	Close() error
}

// Driver names accepted in resource URLs.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongoDB  = "mongodb"
)

// DriverFor maps a URL scheme to a driver name, or "" if unknown.
func DriverFor(scheme string) string {
	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		return DriverSQLite
	case "postgres", "postgresql":
		return DriverPostgres
	case "mysql":
		return DriverMySQL
	case "mongodb", "mongodb+srv":
		return DriverMongoDB
	default:
		return ""
	}
}

// NewConnector creates a Connector for a database URL such as
// sqlite:///data/app.db, postgres://user:pw@host/db or mongodb://host/db.
func NewConnector(rawURL string) (Connector, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	var sc *sqlConnector
	switch DriverFor(u.Scheme) {
	case DriverSQLite:
		sc, err = newSQLiteConnector(u)
	case DriverMySQL:
		sc, err = newSQLConnector(DriverMySQL, buildMySQLDSN(u))
	case DriverPostgres:
		sc, err = newSQLConnector(DriverPostgres, buildPostgresDSN(u))
	case DriverMongoDB:
		mc, err := newMongoConnector(rawURL)
		if err != nil {
			return nil, err
		}
		return mc, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}
