package sqlqueue

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/queue"
)

// rowModel is the bun row model shared by all four queue instantiations
// (outbox, inbox, timers, job-runs). The four queues differ only in table
// name and ordering column, not in row shape, so a single generic model
// parameterized over the id type — plus a per-Store table name supplied at
// query time via ModelTableExpr — is enough: one generic implementation,
// two typed instantiations (uuid.UUID for outbox/timers/job-runs, string
// for inbox), per spec.md §9.
type rowModel[I comparable] struct {
	bun.BaseModel `bun:"table:rows,alias:r"`

	Id I `bun:"id,pk"`

	Status Status `bun:"status,notnull,default:1"`

	OwnerToken  *uuid.UUID `bun:"owner_token"`
	LockedUntil *time.Time `bun:"locked_until"`
	DueTime     *time.Time `bun:"due_time"`

	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	LastSeenAt time.Time `bun:"last_seen_at,nullzero,notnull,default:current_timestamp"`

	Attempts  uint32  `bun:"attempts,notnull,default:0"`
	LastError *string `bun:"last_error"`

	ProcessedAt *time.Time `bun:"processed_at"`
	ProcessedBy *uuid.UUID `bun:"processed_by"`

	Topic   string `bun:"topic,notnull"`
	Payload []byte `bun:"payload"`

	Source *string `bun:"source"`
	Hash   *string `bun:"hash"`

	CorrelationID *string `bun:"correlation_id"`
	JobName       *string `bun:"job_name"`
}

// Status mirrors queue.Status; bun needs a concrete type with
// Value/Scan-free plain integer storage, and queue.Status already
// implements encoding.Text(Un)Marshaler, which bun understands for
// non-numeric column types. We store it as a plain integer instead to
// keep the predicate `status = ?` comparisons cheap, so Status here is
// just an alias.
type Status = queue.Status

func toRow[I comparable](m *rowModel[I]) *queue.Row[I] {
	return &queue.Row[I]{
		Id:            m.Id,
		Status:        m.Status,
		OwnerToken:    m.OwnerToken,
		LockedUntil:   m.LockedUntil,
		DueTime:       m.DueTime,
		CreatedAt:     m.CreatedAt,
		LastSeenAt:    m.LastSeenAt,
		Attempts:      m.Attempts,
		LastError:     m.LastError,
		ProcessedAt:   m.ProcessedAt,
		ProcessedBy:   m.ProcessedBy,
		Topic:         m.Topic,
		Payload:       m.Payload,
		Source:        m.Source,
		Hash:          m.Hash,
		CorrelationID: m.CorrelationID,
		JobName:       m.JobName,
	}
}

func fromRow[I comparable](r *queue.Row[I]) *rowModel[I] {
	return &rowModel[I]{
		Id:            r.Id,
		Status:        r.Status,
		OwnerToken:    r.OwnerToken,
		LockedUntil:   r.LockedUntil,
		DueTime:       r.DueTime,
		CreatedAt:     r.CreatedAt,
		LastSeenAt:    r.LastSeenAt,
		Attempts:      r.Attempts,
		LastError:     r.LastError,
		ProcessedAt:   r.ProcessedAt,
		ProcessedBy:   r.ProcessedBy,
		Topic:         r.Topic,
		Payload:       r.Payload,
		Source:        r.Source,
		Hash:          r.Hash,
		CorrelationID: r.CorrelationID,
		JobName:       r.JobName,
	}
}
