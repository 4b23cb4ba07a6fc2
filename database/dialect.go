package database

import (
	"strconv"
	"strings"
)

var postgresSchema = strings.NewReplacer(
	"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGSERIAL PRIMARY KEY",
	"DATETIME", "TIMESTAMPTZ",
	"BLOB", "BYTEA",
)

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
// Queries must not contain a literal question mark.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
