package dbclient

import (
	"net/url"

	_ "github.com/lib/pq"
)

// buildPostgresDSN normalizes a postgres URL for lib/pq, which accepts the URL
// form directly. sslmode defaults to disable.
func buildPostgresDSN(u *url.URL) string {
	c := *u
	c.Scheme = "postgres"
	q := c.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	c.RawQuery = q.Encode()
	return c.String()
}
