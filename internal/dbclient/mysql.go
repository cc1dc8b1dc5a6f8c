package dbclient

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN converts mysql://user:pw@host:port/db?opts into the driver's
// user:password@tcp(host:port)/dbname?parseTime=true form.
func buildMySQLDSN(u *url.URL) string {
	host := u.Hostname()
	port := u.Port()
	if port == "" {
		port = "3306"
	}
	user := u.User.Username()
	password, _ := u.User.Password()

	q := u.Query()
	if q.Get("parseTime") == "" {
		q.Set("parseTime", "true")
	}
	if q.Get("charset") == "" {
		q.Set("charset", "utf8mb4")
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s",
		user, password, host, port, strings.TrimPrefix(u.Path, "/"), q.Encode(),
	)
}
