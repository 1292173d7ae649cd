package sqlqueue

import (
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/schema"
)

// OpenSQLite and OpenPostgres live in the schema package since both the
// queue and lease stores share the same connection-opening concerns;
// these aliases keep the familiar call sites working.
func OpenSQLite(dsn string) (*bun.DB, error)   { return schema.OpenSQLite(dsn) }
func OpenPostgres(dsn string) (*bun.DB, error) { return schema.OpenPostgres(dsn) }
