package sqlite

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// Open opens (or creates) a SQLite database at dsn using the pure-Go driver
// and returns a repository on top of it. Use ":memory:" for an ephemeral
// store.
func Open(dsn string) (*Service, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return New(db)
}
