package queue

import (
	"time"

	"github.com/google/uuid"
)

// Row is a snapshot of one queue row, generic over the id type (uuid.UUID
// for outbox/timers/job-runs, string for the inbox's caller-supplied
// message id — see spec.md §9's parametric-polymorphism design note).
//
// Row values returned by a Client represent authoritative storage state
// at the time of the call. Mutating a returned Row does not affect the
// underlying store; transitions must go through Client.
type Row[I comparable] struct {
	Id I

	Status Status

	// OwnerToken is non-nil iff Status == InProgress; it identifies the
	// worker currently holding the claim.
	OwnerToken *uuid.UUID

	// LockedUntil is the visibility-timeout expiry of the current claim.
	// Non-nil iff Status == InProgress.
	LockedUntil *time.Time

	// DueTime gates visibility for scheduled queues (timers, job-runs)
	// and for backoff delays on any queue (set by Abandon). Nil means
	// "immediately visible".
	DueTime *time.Time

	CreatedAt  time.Time
	LastSeenAt time.Time

	// Attempts counts successful Claims; it is monotonic non-decreasing
	// and is only ever bumped by Claim, never by ReapExpired.
	Attempts uint32

	LastError *string

	ProcessedAt *time.Time
	ProcessedBy *uuid.UUID

	Topic   string
	Payload []byte

	// Source and Hash are populated only for inbox rows.
	Source *string
	Hash   *string

	// CorrelationID and JobName are populated only for outbox and
	// job-run rows respectively.
	CorrelationID *string
	JobName       *string
}
