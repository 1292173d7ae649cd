package outbox_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/outbox"
	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
	"github.com/bravellian/platform-sub002/schema"
)

func newOutboxTestDB(t *testing.T) *bun.DB {
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

func TestEnqueueCreatesReadyRow(t *testing.T) {
	db := newOutboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)
	o := outbox.New(store)

	corr := "corr-1"
	if err := o.Enqueue(ctx, "orders.created", []byte("payload"), &corr); err != nil {
		t.Fatal(err)
	}

	rows, err := store.List(ctx, queue.Ready, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("want 1 ready row, got %d", len(rows))
	}
	if rows[0].Topic != "orders.created" {
		t.Fatalf("want topic orders.created, got %q", rows[0].Topic)
	}
	if rows[0].CorrelationID == nil || *rows[0].CorrelationID != "corr-1" {
		t.Fatalf("want correlation id preserved, got %#v", rows[0].CorrelationID)
	}
}

func TestEnqueueTxRollsBackWithSurroundingTransaction(t *testing.T) {
	db := newOutboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)
	o := outbox.New(store)

	boom := errors.New("business logic failed")
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := o.EnqueueTx(ctx, tx, "orders.created", []byte("payload"), nil); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want the transaction's own error to propagate, got %v", err)
	}

	rows, err := store.List(ctx, queue.Unknown, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("want the outbox write to be rolled back with the surrounding transaction, got %d rows", len(rows))
	}
}

func TestEnqueueTxCommitsWithSurroundingTransaction(t *testing.T) {
	db := newOutboxTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)
	o := outbox.New(store)

	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return o.EnqueueTx(ctx, tx, "orders.created", []byte("payload"), nil)
	})
	if err != nil {
		t.Fatal(err)
	}

	rows, err := store.List(ctx, queue.Ready, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("want the outbox write to commit alongside the surrounding transaction, got %d rows", len(rows))
	}
}
