package sqllease

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/lease"
)

// Service is the bun-backed lease.Service. Construct with NewService; call
// WithGate with a positive timeout to enable the optional upsert gate
// described in spec.md §4.2 for high-contention deployments.
type Service struct {
	db         *bun.DB
	gate       *gate
	gateWindow time.Duration
	forUpdate  bool
}

var _ lease.Service = (*Service)(nil)

func NewService(db *bun.DB) *Service {
	return &Service{
		db:        db,
		gate:      &gate{},
		forUpdate: db.Dialect().Name().String() == "pg",
	}
}

// WithGate enables the optional per-resource upsert mutex, timing out
// (and returning acquired=false) after timeout rather than blocking other
// unrelated resource acquisitions indefinitely.
func (s *Service) WithGate(timeout time.Duration) *Service {
	s.gateWindow = timeout
	return s
}

func (s *Service) withGate(ctx context.Context, resource string, fn func() (bool, int64, error)) (bool, int64, error) {
	if s.gateWindow <= 0 {
		return fn()
	}
	release, err := s.gate.acquire(ctx, resource, s.gateWindow)
	if err != nil {
		return false, 0, nil //nolint:nilerr // gate timeout means "not acquired", not a hard error
	}
	defer release()
	return fn()
}

func (s *Service) Acquire(ctx context.Context, resource string, ownerToken uuid.UUID, leaseDuration time.Duration, ctxJSON []byte) (bool, int64, error) {
	return s.withGate(ctx, resource, func() (bool, int64, error) {
		return s.acquire(ctx, resource, ownerToken, leaseDuration, ctxJSON)
	})
}

func (s *Service) acquire(ctx context.Context, resource string, ownerToken uuid.UUID, leaseDuration time.Duration, ctxJSON []byte) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	until := now.Add(leaseDuration)

	existing, err := s.selectForUpdate(ctx, tx, resource)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, 0, err
	}

	if existing == nil {
		m := &leaseModel{
			ResourceName: resource,
			OwnerToken:   &ownerToken,
			LeaseUntil:   &until,
			FencingToken: 1,
			ContextJSON:  ctxJSON,
		}
		if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
			return false, 0, err
		}
		if err := tx.Commit(); err != nil {
			return false, 0, err
		}
		return true, m.FencingToken, nil
	}

	free := existing.OwnerToken == nil || existing.LeaseUntil == nil || !existing.LeaseUntil.After(now)
	reentrant := existing.OwnerToken != nil && *existing.OwnerToken == ownerToken
	if !free && !reentrant {
		return false, 0, nil
	}

	newFencing := existing.FencingToken + 1
	_, err = tx.NewUpdate().
		Model((*leaseModel)(nil)).
		Set("owner_token = ?", ownerToken).
		Set("lease_until = ?", until).
		Set("fencing_token = ?", newFencing).
		Set("context_json = ?", ctxJSON).
		Where("resource_name = ?", resource).
		Exec(ctx)
	if err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, newFencing, nil
}

func (s *Service) Renew(ctx context.Context, resource string, ownerToken uuid.UUID, leaseDuration time.Duration) (bool, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	existing, err := s.selectForUpdate(ctx, tx, resource)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, 0, nil
		}
		return false, 0, err
	}
	if existing.OwnerToken == nil || *existing.OwnerToken != ownerToken {
		return false, 0, nil
	}
	if existing.LeaseUntil == nil || !existing.LeaseUntil.After(now) {
		return false, 0, nil
	}

	until := now.Add(leaseDuration)
	newFencing := existing.FencingToken + 1
	_, err = tx.NewUpdate().
		Model((*leaseModel)(nil)).
		Set("lease_until = ?", until).
		Set("fencing_token = ?", newFencing).
		Where("resource_name = ?", resource).
		Where("owner_token = ?", ownerToken).
		Exec(ctx)
	if err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, newFencing, nil
}

func (s *Service) Release(ctx context.Context, resource string, ownerToken uuid.UUID) error {
	_, err := s.db.NewUpdate().
		Model((*leaseModel)(nil)).
		Set("owner_token = NULL").
		Set("lease_until = NULL").
		Where("resource_name = ?", resource).
		Where("owner_token = ?", ownerToken).
		Exec(ctx)
	return err
}

func (s *Service) selectForUpdate(ctx context.Context, tx bun.Tx, resource string) (*leaseModel, error) {
	m := new(leaseModel)
	q := tx.NewSelect().Model(m).Where("resource_name = ?", resource)
	if s.forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return m, nil
}
