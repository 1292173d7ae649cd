// Package queue implements the claim/ack/abandon/fail/reap state machine
// (C3 in spec.md) that underlies the outbox, inbox, timer and job-run
// queues. It is storage-agnostic: Client is an interface, and package
// sqlqueue provides the bun-backed implementation used everywhere else in
// this module.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Client is the claim/ack/abandon/fail/reap engine over one queue store,
// generic over the row id type. Every method must be safe to call from
// many concurrent goroutines and processes: Claim uses row-level locking
// that skips already-locked rows, and Ack/Abandon/Fail are no-ops when the
// given ownerToken no longer owns the referenced rows (the caller may have
// lost its lease to a reaper or another worker).
type Client[I comparable] interface {
	// Claim atomically selects up to batchSize rows satisfying the
	// visibility predicate (status Ready, or InProgress with an expired
	// lease; due_time null or <= now), transitions them to InProgress
	// under ownerToken with a lease expiring after leaseSeconds, and
	// returns the claimed rows ordered oldest-first by the queue's
	// ordering column (created_at for unordered queues, due_time for
	// scheduled ones). A batchSize of 0 returns no rows. Claim either
	// commits a disjoint set of rows or returns none; it never partially
	// claims a batch.
	Claim(ctx context.Context, ownerToken uuid.UUID, leaseSeconds time.Duration, batchSize int) ([]*Row[I], error)

	// Ack marks the given ids Done, stamping ProcessedAt/ProcessedBy, but
	// only for rows currently InProgress and owned by ownerToken. Ids
	// that don't match are silently skipped.
	Ack(ctx context.Context, ownerToken uuid.UUID, ids []I) error

	// Abandon returns the given ids to Ready, clears ownership, and
	// records errMsg as LastError — but only for rows owned by ownerToken.
	// It does not change Attempts: Attempts counts Claims, so the claim
	// being abandoned has already been counted. If delay is positive,
	// due_time is set to now+delay so the row is temporarily invisible
	// (backoff).
	Abandon(ctx context.Context, ownerToken uuid.UUID, ids []I, errMsg string, delay time.Duration) error

	// Fail transitions the given ids to the terminal Failed status,
	// recording errMsg, but only for rows owned by ownerToken.
	Fail(ctx context.Context, ownerToken uuid.UUID, ids []I, errMsg string) error

	// ReapExpired returns to Ready any InProgress row whose locked_until
	// has elapsed, regardless of which owner holds it. It does not touch
	// Attempts. Safe to call concurrently from any number of callers at
	// any time; it is idempotent.
	ReapExpired(ctx context.Context) (int64, error)

	// Get returns the row identified by id, or (nil, nil) if it doesn't
	// exist. For administrative/diagnostic use only.
	Get(ctx context.Context, id I) (*Row[I], error)

	// List returns up to limit rows matching status (Unknown means no
	// filter). limit <= 0 means no limit. For administrative/diagnostic
	// use only.
	List(ctx context.Context, status Status, limit int) ([]*Row[I], error)

	// Clean permanently deletes rows in a terminal status (Done or
	// Failed; Unknown means both) whose LastSeenAt is <= before, if
	// before is non-nil. It returns the number of rows deleted and
	// ErrBadStatus if asked to delete a non-terminal status.
	Clean(ctx context.Context, status Status, before *time.Time) (int64, error)
}

// Pusher is the write-side entry point shared by every queue producer
// (Outbox.Enqueue, Inbox.Enqueue, Scheduler.ScheduleTimer). Implementations
// must persist durably before returning nil and must not mutate row after
// returning.
type Pusher[I comparable] interface {
	// Push inserts a new row, visible for Claim after delay has elapsed
	// (zero delay means immediately visible).
	Push(ctx context.Context, row *Row[I], delay time.Duration) error
}
