// Package scheduler implements the scheduler planner (C8): expands cron
// job definitions and one-shot timers into job-run / timer rows on the
// shared queue engine, generalizing the teacher's architecture with
// github.com/robfig/cron/v3 for cron expansion.
package scheduler

import (
	"time"

	"github.com/uptrace/bun"
)

// jobDefModel is the bun model backing the job_definitions table: one row
// per recurring job, holding the cron expression and the next time it is
// due to fire.
type jobDefModel struct {
	bun.BaseModel `bun:"table:job_definitions,alias:j"`

	JobName      string `bun:"job_name,pk"`
	Topic        string `bun:"topic,notnull"`
	Payload      []byte `bun:"payload"`
	CronSchedule string `bun:"cron_schedule,notnull"`
	NextDueTime  time.Time `bun:"next_due_time,notnull"`
}
