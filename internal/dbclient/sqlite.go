package dbclient

import (
	"net/url"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an external SQLite file.
// sqlite:///abs/path.db and sqlite://rel/path.db are both accepted.
func newSQLiteConnector(u *url.URL) (*sqlConnector, error) {
	return newSQLConnector(DriverSQLite, SQLitePath(u)+"?_pragma=busy_timeout(5000)")
}

// SQLitePath extracts the database file path from a sqlite URL.
func SQLitePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}
