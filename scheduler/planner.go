package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/uptrace/bun"

	"github.com/bravellian/platform-sub002/clock"
	"github.com/bravellian/platform-sub002/gate"
	"github.com/bravellian/platform-sub002/internal/concurrency"
	"github.com/bravellian/platform-sub002/lifecycle"
	"github.com/bravellian/platform-sub002/metrics"
	"github.com/bravellian/platform-sub002/queue"
	"github.com/bravellian/platform-sub002/queue/sqlqueue"
)

// cronParser accepts seconds-precision cron expressions, so "next
// occurrence after a given UTC instant" is unambiguous down to the
// second, per spec.md §4.4.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Planner reads job definitions and writes one-shot timer rows, firing job-runs
// through the outbox idiom: dispatching a job-run is just writing its
// (topic, payload) as an outbox-shaped message, so handlers process job
// fan-out and ordinary outbox messages uniformly.
type Planner struct {
	lifecycle.Base

	db       *bun.DB
	jobRuns  *sqlqueue.Store[uuid.UUID]
	log      *slog.Logger
	clock    clock.Clock
	metrics  metrics.Sink
	interval time.Duration
	gate     *gate.Gate

	task concurrency.TimerTask
}

// NewPlanner constructs a Planner. jobRuns is the store bound to the
// "job_runs" table (the same generic sqlqueue.Store used for the
// outbox). c paces PlanOnce's due-time comparisons; nil defaults to
// clock.System, and tests inject a clock.Fake to exercise cron catch-up
// without sleeping real time. m may be nil for metrics.Noop().
func NewPlanner(db *bun.DB, jobRuns *sqlqueue.Store[uuid.UUID], interval time.Duration, log *slog.Logger, g *gate.Gate, c clock.Clock, m metrics.Sink) *Planner {
	if c == nil {
		c = clock.System
	}
	if m == nil {
		m = metrics.Noop()
	}
	return &Planner{
		db:       db,
		jobRuns:  jobRuns,
		log:      log,
		clock:    c,
		metrics:  m,
		interval: interval,
		gate:     g,
	}
}

// Start begins the periodic plan loop.
func (p *Planner) Start(ctx context.Context) error {
	if err := p.TryStart(); err != nil {
		return err
	}
	go func() {
		if p.gate != nil {
			state, err := p.gate.Await(ctx)
			if state == gate.Cancelled {
				return
			}
			if state == gate.Failed {
				p.log.Warn("schema gate failed, proceeding anyway", "err", err)
			}
		}
		p.task.Start(ctx, p.tick, p.interval, p.clock)
	}()
	return nil
}

// Stop halts the plan loop, waiting up to timeout for the in-flight tick
// to finish.
func (p *Planner) Stop(timeout time.Duration) error {
	return p.TryStop(timeout, p.task.Stop)
}

func (p *Planner) tick(ctx context.Context) {
	if _, err := p.PlanOnce(ctx); err != nil {
		p.log.Error("plan run failed", "err", err)
	}
}

// PlanOnce fires every job definition whose next_due_time has elapsed: it
// inserts one job-run row and advances next_due_time past every missed
// occurrence in one transaction, so a crashed planner can neither
// double-fire nor skip, and an offline planner never produces a
// catch-up burst.
func (p *Planner) PlanOnce(ctx context.Context) (int, error) {
	now := p.clock.Now()
	var defs []*jobDefModel
	if err := p.db.NewSelect().Model(&defs).Where("next_due_time <= ?", now).Scan(ctx); err != nil {
		return 0, err
	}

	fired := 0
	for _, def := range defs {
		schedule, err := cronParser.Parse(def.CronSchedule)
		if err != nil {
			p.log.Error("invalid cron schedule, skipping", "job", def.JobName, "schedule", def.CronSchedule, "err", err)
			continue
		}
		next := schedule.Next(now)
		scheduled := def.NextDueTime
		jobName := def.JobName

		var advanced bool
		err = p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			// The guarded UPDATE runs first and gates the insert: if a
			// concurrent PlanOnce already advanced next_due_time past
			// scheduled, RowsAffected is 0 and we skip the job-run insert
			// entirely, so two racing planners can never both fire the
			// same occurrence.
			res, err := tx.NewUpdate().
				Model(def).
				Set("next_due_time = ?", next).
				Where("job_name = ? AND next_due_time = ?", def.JobName, scheduled).
				Exec(ctx)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return nil
			}
			advanced = true
			row := &queue.Row[uuid.UUID]{
				Id:         uuid.New(),
				Topic:      def.Topic,
				Payload:    def.Payload,
				JobName:    &jobName,
				CreatedAt:  now,
				LastSeenAt: now,
			}
			// Push derives due_time as now+delay; scheduled is always <=
			// now here (we only selected defs whose next_due_time has
			// elapsed), so this delay is <= 0 and the row lands due
			// immediately, preserving scheduled as its due_time.
			return p.jobRuns.PushTx(ctx, tx, row, scheduled.Sub(now))
		})
		if err != nil {
			p.log.Error("failed to fire job definition", "job", def.JobName, "err", err)
			continue
		}
		if !advanced {
			continue
		}
		p.metrics.IncCounter("scheduler_job_fired_total", "job", def.JobName)
		fired++
	}
	return fired, nil
}

// CreateOrUpdateJob registers or replaces a recurring job definition.
// nextDueTime is computed as the next occurrence of schedule after now.
func (p *Planner) CreateOrUpdateJob(ctx context.Context, jobName, topic string, payload []byte, schedule string) error {
	parsed, err := cronParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid cron schedule %q: %w", schedule, err)
	}
	now := p.clock.Now()
	def := &jobDefModel{
		JobName:      jobName,
		Topic:        topic,
		Payload:      payload,
		CronSchedule: schedule,
		NextDueTime:  parsed.Next(now),
	}
	_, err = p.db.NewInsert().
		Model(def).
		On("CONFLICT (job_name) DO UPDATE").
		Set("topic = EXCLUDED.topic").
		Set("payload = EXCLUDED.payload").
		Set("cron_schedule = EXCLUDED.cron_schedule").
		Set("next_due_time = EXCLUDED.next_due_time").
		Exec(ctx)
	return err
}

// DeleteJob removes a recurring job definition. It does not affect
// already-fired job-run rows.
func (p *Planner) DeleteJob(ctx context.Context, jobName string) error {
	_, err := p.db.NewDelete().Model((*jobDefModel)(nil)).Where("job_name = ?", jobName).Exec(ctx)
	return err
}

// TriggerJob fires jobName immediately regardless of its next_due_time,
// without disturbing the definition's regular schedule.
func (p *Planner) TriggerJob(ctx context.Context, jobName string) error {
	def := new(jobDefModel)
	if err := p.db.NewSelect().Model(def).Where("job_name = ?", jobName).Scan(ctx); err != nil {
		return err
	}
	now := p.clock.Now()
	row := &queue.Row[uuid.UUID]{
		Id:         uuid.New(),
		Topic:      def.Topic,
		Payload:    def.Payload,
		JobName:    &def.JobName,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	return p.jobRuns.Push(ctx, row, 0)
}

// ScheduleTimer inserts a one-shot timer row, due at dueTime, consumed by
// the timers queue like any other scheduled work-queue row. Timers have
// no cron_schedule and are not tracked in job_definitions.
func (p *Planner) ScheduleTimer(ctx context.Context, timers *sqlqueue.Store[uuid.UUID], topic string, payload []byte, dueTime time.Time) (uuid.UUID, error) {
	id := uuid.New()
	now := p.clock.Now()
	row := &queue.Row[uuid.UUID]{
		Id:         id,
		Topic:      topic,
		Payload:    payload,
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := timers.Push(ctx, row, dueTime.Sub(now)); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// CancelTimer removes a pending one-shot timer. It returns false if the
// timer has already fired or claimed, or doesn't exist.
func (p *Planner) CancelTimer(ctx context.Context, timers *sqlqueue.Store[uuid.UUID], id uuid.UUID) (bool, error) {
	return timers.CancelIfReady(ctx, id)
}
