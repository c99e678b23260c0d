// Package chrono runs jobs on cron schedules.
package chrono

import (
	"context"
	"fmt"
	"time"

	"studienet-scraper/internal/components/assert"
	"studienet-scraper/internal/components/telemetry"

	"github.com/robfig/cron/v3"
)

const report_scheduler_job = "scheduler.job"

// Scheduler runs jobs on cron schedules, a job is skipped while its previous run is
// still going.
type Scheduler struct {
	cron *cron.Cron
	tel  telemetry.API
}

// LoadLocation resolves an IANA timezone name, the empty name is the local timezone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

func NewScheduler(tel telemetry.API, location *time.Location) *Scheduler {
	assert.NotNil("tel", tel)
	assert.NotNil("location", location)
	tel = telemetry.NewScopedAPI("chrono", tel)

	logger := cronLogger{tel: tel}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		tel: tel,
	}
}

// Schedule registers `job` to run on the standard 5 field cron `spec` (descriptors like
// "@daily" or "@every 6h" work too). Jobs receive the context given to Run.
func (s *Scheduler) Schedule(spec string, job func(ctx context.Context)) error {
	_, err := s.cron.AddJob(spec, &contextJob{scheduler: s, job: job})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	return nil
}

// Next is the next time any job runs, zero if none is scheduled or Run has not started.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

// Run starts the scheduler and blocks until `ctx` is cancelled, it then waits for the
// running jobs to return.
func (s *Scheduler) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, e := range s.cron.Entries() {
		if job, ok := e.Job.(*contextJob); ok {
			job.ctx = runCtx
		}
	}

	s.cron.Start()
	s.tel.ReportDebug("scheduler started", s.Next())
	<-ctx.Done()
	<-s.cron.Stop().Done()
}

type contextJob struct {
	scheduler *Scheduler
	ctx       context.Context
	job       func(ctx context.Context)
}

func (j *contextJob) Run() {
	if j.ctx == nil || j.ctx.Err() != nil {
		return
	}
	start := time.Now()
	j.job(j.ctx)
	j.scheduler.tel.ReportDebug(report_scheduler_job, time.Since(start).String())
}

type cronLogger struct {
	tel telemetry.API
}

func (l cronLogger) formatParams(keysAndValues []any) []any {
	params := []any{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		params = append(params, fmt.Sprintf("%v: %v", keysAndValues[i], keysAndValues[i+1]))
	}
	return params
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.tel.ReportDebug(fmt.Sprintf("cron: %s", msg), l.formatParams(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.tel.ReportBroken(
		"cron",
		append([]any{fmt.Errorf("%s: %w", msg, err)}, l.formatParams(keysAndValues)...)...,
	)
}
