// Package schema provides the idempotent "ensure schema" bootstrap called
// for once per subsystem at startup (spec.md §6). It creates missing
// tables and indexes and never performs destructive migrations — existing
// columns are never altered or dropped; schema evolution beyond additive
// nullable columns is explicitly out of scope, mirroring the teacher's
// sql.InitDB contract.
package schema

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// QueueTables names the four work-queue tables this platform creates.
// Each gets the identical row shape (see queue/sqlqueue.rowModel) and the
// three indexes spec.md §6 requires for efficient Claim and Clean.
var QueueTables = []string{"outbox", "inbox", "timers", "job_runs"}

const createQueueTableTpl = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	status SMALLINT NOT NULL DEFAULT 1,
	owner_token TEXT,
	locked_until TIMESTAMP,
	due_time TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	last_seen_at TIMESTAMP NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	processed_at TIMESTAMP,
	processed_by TEXT,
	topic TEXT NOT NULL DEFAULT '',
	payload BLOB,
	source TEXT,
	hash TEXT,
	correlation_id TEXT,
	job_name TEXT
)`

const createLeaseTableSQL = `
CREATE TABLE IF NOT EXISTS leases (
	resource_name TEXT PRIMARY KEY,
	owner_token TEXT,
	lease_until TIMESTAMP,
	fencing_token BIGINT NOT NULL DEFAULT 0,
	context_json TEXT
)`

const createJobDefTableSQL = `
CREATE TABLE IF NOT EXISTS job_definitions (
	job_name TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	payload BLOB,
	cron_schedule TEXT NOT NULL,
	next_due_time TIMESTAMP NOT NULL
)`

func createTable(ctx context.Context, db bun.IDB, table string) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(createQueueTableTpl, table))
	return err
}

func createIndexes(ctx context.Context, db bun.IDB, table string) error {
	stmts := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_status_due ON %[1]s (status, due_time)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_status_lock ON %[1]s (status, locked_until)", table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_status_created ON %[1]s (status, created_at)", table),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureQueueTable creates one work-queue table (and its indexes) if it
// doesn't already exist. Safe to call repeatedly.
func EnsureQueueTable(ctx context.Context, db *bun.DB, table string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := createTable(ctx, tx, table); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := createIndexes(ctx, tx, table); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// EnsureAll creates every queue table, the lease table and the job
// definition table in one transaction. It is idempotent and is the
// single entry point applications call at startup.
func EnsureAll(ctx context.Context, db *bun.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, table := range QueueTables {
		if err := createTable(ctx, tx, table); err != nil {
			return errors.Join(err, tx.Rollback())
		}
		if err := createIndexes(ctx, tx, table); err != nil {
			return errors.Join(err, tx.Rollback())
		}
	}
	if _, err := tx.ExecContext(ctx, createLeaseTableSQL); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if _, err := tx.ExecContext(ctx, createJobDefTableSQL); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	return tx.Commit()
}

// MustEnsureAll behaves like EnsureAll but panics on failure, for
// application bootstrap code where a broken schema is unrecoverable.
func MustEnsureAll(ctx context.Context, db *bun.DB) {
	if err := EnsureAll(ctx, db); err != nil {
		panic(err)
	}
}
