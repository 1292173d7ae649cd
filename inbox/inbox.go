// Package inbox implements the transactional inbox consumer (C2): an
// idempotent-ingest, dedup-checked front door for inbound messages
// keyed by the caller's own message id rather than a generated uuid.
//
// The inbox shares the exact queue.Status state machine as the outbox;
// its producer-facing API just narrates the same four states as
// Seen/Processing/Done/Dead, per spec.md §3 and §6 (see DESIGN.md for
// the naming-unification decision).
package inbox

import (
	"context"
	"time"

	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
)

// Inbox wraps the inbox queue store (keyed by string message id) with
// the dedup-aware producer API of spec.md §6.
type Inbox struct {
	store *sqlqueue.Store[string]
}

// New wraps store (bound to the "inbox" table) as an Inbox.
func New(store *sqlqueue.Store[string]) *Inbox {
	return &Inbox{store: store}
}

// AlreadyProcessed reports whether messageId from source has already
// reached a Done (Seen-facing: fully processed) state, so callers can
// skip redundant work without re-ingesting.
func (i *Inbox) AlreadyProcessed(ctx context.Context, messageID, source string, hash *string) (bool, error) {
	row, err := i.store.Get(ctx, messageID)
	if err != nil {
		return false, err
	}
	if row == nil {
		return false, nil
	}
	return row.Status == queue.Done, nil
}

// Enqueue ingests messageId idempotently: a row already present for
// messageId is left untouched (its existing state wins), so retried
// deliveries of the same message never clobber in-flight processing.
// The check-then-insert has a narrow race window under true concurrent
// first delivery of the same messageId; callers that need a hard
// guarantee should additionally rely on the messageId primary key to
// reject a true duplicate at the database level.
func (i *Inbox) Enqueue(ctx context.Context, topic, source, messageID string, payload []byte, hash *string) error {
	existing, err := i.store.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	now := time.Now()
	row := &queue.Row[string]{
		Id:         messageID,
		Topic:      topic,
		Payload:    payload,
		Source:     &source,
		Hash:       hash,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	return i.store.Push(ctx, row, 0)
}
