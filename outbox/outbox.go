// Package outbox implements the transactional outbox producer (C1):
// business code enqueues a message either standalone or inside its own
// transaction, so the message write commits atomically with the
// business state change it originates from.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
)

// Outbox wraps the outbox queue store with the producer-facing Enqueue
// API of spec.md §6.
type Outbox struct {
	store *sqlqueue.Store[uuid.UUID]
}

// New wraps store (bound to the "outbox" table) as an Outbox.
func New(store *sqlqueue.Store[uuid.UUID]) *Outbox {
	return &Outbox{store: store}
}

// Enqueue creates its own implicit transaction (the insert is atomic by
// itself; there is no surrounding business transaction to join).
func (o *Outbox) Enqueue(ctx context.Context, topic string, payload []byte, correlationID *string) error {
	return o.store.Push(ctx, o.newRow(topic, payload, correlationID), 0)
}

// EnqueueTx participates in the caller's transaction — the transactional
// outbox pattern's key affordance: the message becomes visible iff the
// surrounding transaction commits.
func (o *Outbox) EnqueueTx(ctx context.Context, tx bun.Tx, topic string, payload []byte, correlationID *string) error {
	return o.store.PushTx(ctx, tx, o.newRow(topic, payload, correlationID), 0)
}

func (o *Outbox) newRow(topic string, payload []byte, correlationID *string) *queue.Row[uuid.UUID] {
	now := time.Now()
	return &queue.Row[uuid.UUID]{
		Id:            uuid.New(),
		Topic:         topic,
		Payload:       payload,
		CorrelationID: correlationID,
		CreatedAt:     now,
		LastSeenAt:    now,
	}
}
