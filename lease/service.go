// Package lease implements the distributed-lease primitive (C4 in
// spec.md): Acquire/Renew/Release on a named resource with a monotonic
// fencing token, plus a Runner (C5) that keeps a live lease renewed on a
// timer and exposes a one-shot cancellation signal when the lease is
// lost.
//
// Fencing tokens exist so downstream systems can reject writes from a
// stale holder: the token is strictly increasing across every successful
// Acquire or Renew for a resource, for the lifetime of that resource's
// row — it is never reset and never decreases, even across re-entrant
// Acquire calls by the current holder (see DESIGN.md's resolution of
// spec.md §9's open question on this).
package lease

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service is the SQL-backed lease primitive described in spec.md §4.2.
type Service interface {
	// Acquire attempts to take resource for ownerToken. It succeeds if
	// the resource has never been acquired, is currently unheld, its
	// lease has expired, or it is already held by ownerToken (re-entrant
	// acquire). On success it returns (true, fencingToken) with
	// fencingToken strictly greater than any previously issued for this
	// resource. On failure (held by a different, live owner) it returns
	// (false, 0).
	Acquire(ctx context.Context, resource string, ownerToken uuid.UUID, leaseDuration time.Duration, context []byte) (acquired bool, fencingToken int64, err error)

	// Renew extends an already-held lease. It only succeeds if resource
	// is currently owned by ownerToken and not expired; it bumps the
	// fencing token on every successful renewal so a quiet lease still
	// shows token movement. Returns (false, 0) if the lease was lost.
	Renew(ctx context.Context, resource string, ownerToken uuid.UUID, leaseDuration time.Duration) (renewed bool, fencingToken int64, err error)

	// Release clears ownership of resource iff currently held by
	// ownerToken. The fencing token is never decremented by Release.
	Release(ctx context.Context, resource string, ownerToken uuid.UUID) error
}
