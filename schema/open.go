package schema

import (
	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// OpenSQLite opens an embedded SQLite database for development and tests.
// Callers should use a DSN with WAL mode and a busy_timeout, e.g.
// "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", and
// must cap MaxOpenConns at 1 for in-memory databases (SQLite allows only
// one writer at a time; a second pooled connection would see an empty
// database).
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenPostgres opens a production PostgreSQL database via pgx's
// database/sql driver.
func OpenPostgres(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
