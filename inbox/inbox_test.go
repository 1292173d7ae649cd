package inbox_test

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/inbox"
	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
	"github.com/bravellian/platform-sub002/schema"
)

func newInboxTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := schema.OpenSQLite("file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := schema.EnsureAll(context.Background(), db); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestAlreadyProcessedFalseBeforeEnqueue(t *testing.T) {
	db := newInboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[string](db, "inbox", sqlqueue.OrderByCreated)
	i := inbox.New(store)

	seen, err := i.AlreadyProcessed(ctx, "msg-1", "producer-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("want AlreadyProcessed false for a message never enqueued")
	}
}

func TestAlreadyProcessedTracksDoneStatus(t *testing.T) {
	db := newInboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[string](db, "inbox", sqlqueue.OrderByCreated)
	i := inbox.New(store)

	if err := i.Enqueue(ctx, "orders.created", "producer-a", "msg-1", []byte("payload"), nil); err != nil {
		t.Fatal(err)
	}
	seen, err := i.AlreadyProcessed(ctx, "msg-1", "producer-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Fatal("want AlreadyProcessed false while row is still Ready/InProgress")
	}

	owner := [16]byte{1}
	rows, err := store.Claim(ctx, owner, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 claimed row, got %d", len(rows))
	}
	if err := store.Ack(ctx, owner, []string{"msg-1"}); err != nil {
		t.Fatal(err)
	}

	seen, err = i.AlreadyProcessed(ctx, "msg-1", "producer-a", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Fatal("want AlreadyProcessed true once the row has been acked")
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	db := newInboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[string](db, "inbox", sqlqueue.OrderByCreated)
	i := inbox.New(store)

	if err := i.Enqueue(ctx, "orders.created", "producer-a", "msg-1", []byte("first"), nil); err != nil {
		t.Fatal(err)
	}

	owner := [16]byte{1}
	if _, err := store.Claim(ctx, owner, 0, 10); err != nil {
		t.Fatal(err)
	}
	if err := store.Ack(ctx, owner, []string{"msg-1"}); err != nil {
		t.Fatal(err)
	}

	// A redelivery of the same messageID, even with a different payload,
	// must not clobber the already-processed row.
	if err := i.Enqueue(ctx, "orders.created", "producer-a", "msg-1", []byte("second"), nil); err != nil {
		t.Fatal(err)
	}

	row, err := store.Get(ctx, "msg-1")
	if err != nil {
		t.Fatal(err)
	}
	if row == nil {
		t.Fatal("want row to still exist")
	}
	if row.Status != queue.Done {
		t.Fatalf("want redelivery to leave the Done row untouched, got status %v", row.Status)
	}
	if string(row.Payload) != "first" {
		t.Fatalf("want original payload preserved, got %q", row.Payload)
	}
}

func TestEnqueueDistinctMessageIDsAreIndependent(t *testing.T) {
	db := newInboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[string](db, "inbox", sqlqueue.OrderByCreated)
	i := inbox.New(store)

	if err := i.Enqueue(ctx, "orders.created", "producer-a", "msg-1", []byte("a"), nil); err != nil {
		t.Fatal(err)
	}
	if err := i.Enqueue(ctx, "orders.created", "producer-a", "msg-2", []byte("b"), nil); err != nil {
		t.Fatal(err)
	}

	rows, err := store.List(ctx, queue.Ready, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 distinct rows, got %d", len(rows))
	}
}
