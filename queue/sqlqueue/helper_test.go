package sqlqueue_test

import (
	"context"
	"testing"

	"github.com/bravellian/platform-sub002/queue/sqlqueue"
	"github.com/bravellian/platform-sub002/schema"
	"github.com/uptrace/bun"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sqlqueue.OpenSQLite("file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if err := schema.EnsureQueueTable(ctx, db, "outbox"); err != nil {
		t.Fatal(err)
	}
	return db
}
