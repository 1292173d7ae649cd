package sqlqueue_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
)

func newRow(topic string) *queue.Row[uuid.UUID] {
	return &queue.Row[uuid.UUID]{
		Id:      uuid.New(),
		Topic:   topic,
		Payload: []byte(`{}`),
	}
}

func TestPushAndClaim(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	if err := store.Push(ctx, row, 0); err != nil {
		t.Fatal(err)
	}

	owner := uuid.New()
	claimed, err := store.Claim(ctx, owner, time.Second, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(claimed) != 1 {
		t.Fatalf("expected 1 claimed row, got %d", len(claimed))
	}
	if claimed[0].Status != queue.InProgress {
		t.Fatalf("expected InProgress, got %v", claimed[0].Status)
	}
	if claimed[0].Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", claimed[0].Attempts)
	}
}

func TestClaimThenAck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)

	owner := uuid.New()
	claimed, err := store.Claim(ctx, owner, time.Second, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Ack(ctx, owner, []uuid.UUID{claimed[0].Id}); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, row.Id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != queue.Done {
		t.Fatalf("expected Done, got %v", got.Status)
	}
	if got.Attempts != 0+1 {
		t.Fatalf("expected attempts unchanged by Ack, got %d", got.Attempts)
	}
}

func TestAckWithWrongOwnerIsNoop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)

	owner := uuid.New()
	claimed, _ := store.Claim(ctx, owner, time.Second, 1)

	stranger := uuid.New()
	if err := store.Ack(ctx, stranger, []uuid.UUID{claimed[0].Id}); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, row.Id)
	if got.Status != queue.InProgress {
		t.Fatalf("ack from non-owner must be a no-op, got status %v", got.Status)
	}
}

func TestAbandonSchedulesBackoff(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)

	owner := uuid.New()
	claimed, _ := store.Claim(ctx, owner, time.Second, 1)

	if err := store.Abandon(ctx, owner, []uuid.UUID{claimed[0].Id}, "transient", 500*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, row.Id)
	if got.Status != queue.Ready {
		t.Fatalf("expected Ready, got %v", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempts=1, got %d", got.Attempts)
	}
	if got.DueTime == nil || !got.DueTime.After(time.Now()) {
		t.Fatal("expected due_time in the future")
	}

	again, err := store.Claim(ctx, owner, time.Second, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatal("row should not be claimable before its backoff due_time")
	}
}

func TestFailIsTerminal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)

	owner := uuid.New()
	claimed, _ := store.Claim(ctx, owner, time.Second, 1)

	if err := store.Fail(ctx, owner, []uuid.UUID{claimed[0].Id}, "poison"); err != nil {
		t.Fatal(err)
	}

	got, _ := store.Get(ctx, row.Id)
	if got.Status != queue.Failed {
		t.Fatalf("expected Failed, got %v", got.Status)
	}

	again, err := store.Claim(ctx, owner, time.Second, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Fatal("failed row must never be reclaimed")
	}
}

func TestReapExpiredDoesNotBumpAttempts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)

	owner := uuid.New()
	claimed, _ := store.Claim(ctx, owner, 20*time.Millisecond, 1)
	if claimed[0].Attempts != 1 {
		t.Fatalf("expected attempts=1 after claim, got %d", claimed[0].Attempts)
	}

	time.Sleep(40 * time.Millisecond)

	n, err := store.ReapExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reaped row, got %d", n)
	}

	got, _ := store.Get(ctx, row.Id)
	if got.Status != queue.Ready {
		t.Fatalf("expected Ready after reap, got %v", got.Status)
	}
	if got.Attempts != 1 {
		t.Fatalf("ReapExpired must not bump attempts, got %d", got.Attempts)
	}

	// Reap is idempotent: a second call with nothing expired changes nothing.
	n2, err := store.ReapExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("expected 0 rows on second reap, got %d", n2)
	}
}

func TestClean(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	row := newRow("orders.paid")
	_ = store.Push(ctx, row, 0)
	owner := uuid.New()
	claimed, _ := store.Claim(ctx, owner, time.Second, 1)
	_ = store.Ack(ctx, owner, []uuid.UUID{claimed[0].Id})

	if _, err := store.Clean(ctx, queue.Ready, nil); err != queue.ErrBadStatus {
		t.Fatalf("expected ErrBadStatus for non-terminal status, got %v", err)
	}

	count, err := store.Clean(ctx, queue.Done, nil)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 deleted row, got %d", count)
	}
}

// TestConcurrentClaimDisjoint covers spec.md §8 scenario 5: 100 seeded rows,
// 10 concurrent claimers with batchSize=20; every id must appear in exactly
// one worker's result, with no duplicates and no more than 100 claimed.
func TestConcurrentClaimDisjoint(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	store := sqlqueue.NewStore[uuid.UUID](db, "outbox", sqlqueue.OrderByCreated)

	const total = 100
	for i := 0; i < total; i++ {
		if err := store.Push(ctx, newRow("orders.paid"), 0); err != nil {
			t.Fatal(err)
		}
	}

	const workers = 10
	results := make([][]*queue.Row[uuid.UUID], workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			owner := uuid.New()
			claimed, err := store.Claim(ctx, owner, 30*time.Second, 20)
			if err != nil {
				t.Errorf("worker %d: claim error: %v", idx, err)
				return
			}
			results[idx] = claimed
		}(w)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool)
	var totalClaimed int
	for _, r := range results {
		for _, row := range r {
			if seen[row.Id] {
				t.Fatalf("row %s claimed by more than one worker", row.Id)
			}
			seen[row.Id] = true
			totalClaimed++
		}
	}
	if totalClaimed > total {
		t.Fatalf("claimed %d rows but only %d exist", totalClaimed, total)
	}
}
