// Package sqllease is the bun-backed implementation of lease.Service.
package sqllease

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type leaseModel struct {
	bun.BaseModel `bun:"table:leases,alias:l"`

	ResourceName string     `bun:"resource_name,pk"`
	OwnerToken   *uuid.UUID `bun:"owner_token"`
	LeaseUntil   *time.Time `bun:"lease_until"`
	FencingToken int64      `bun:"fencing_token,notnull,default:0"`
	ContextJSON  []byte     `bun:"context_json"`
}
