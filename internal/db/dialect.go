package db

import (
	"strconv"
	"strings"
)

// Dialect names the SQL flavour a repository talks to.
type Dialect string

const (
	// Postgres uses $n placeholders.
	Postgres Dialect = "postgres"
	// SQLite uses ? placeholders.
	SQLite Dialect = "sqlite"
)

// Rebind converts '?' placeholders to the dialect's format.
// For Postgres it rewrites to $1, $2, ...; for SQLite it returns the query unchanged.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
