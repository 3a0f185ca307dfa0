// internal/scheduler/scheduler.go

// Package scheduler owns the polling loop that claims due job definitions
// and runs them through the template registry.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/common/metrics"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/models"
)

// JobStore is the persistence surface the scheduler needs. *store.JobStore
// satisfies it.
type JobStore interface {
	ListDue(ctx context.Context, now time.Time) ([]models.JobDefinition, error)
	Claim(ctx context.Context, id int64) (bool, error)
	Release(ctx context.Context, id int64, lastStatus string, lastRunAt, nextRunAt time.Time) error
	Unclaim(ctx context.Context, id int64) error
	StartExecution(ctx context.Context, jobName, templateType, triggeredBy string) (string, error)
	FinishExecution(ctx context.Context, executionID, status string, result json.RawMessage, errText string) error
	HasRunningExecution(ctx context.Context, jobName string) (bool, error)
}

// Observer receives per-execution telemetry alongside the prometheus
// counters. *observability.Observability satisfies it.
type Observer interface {
	RecordJobProcessed(ctx context.Context, status string)
	RecordJobDuration(ctx context.Context, duration time.Duration, status string)
}

// Options bound the loop.
type Options struct {
	PollInterval time.Duration
	PoolSize     int
	JobTimeout   time.Duration
}

// Scheduler drives all job timing. One instance per deployment; the claim
// flag protects against a slow tick racing itself, and running a second
// instance against the same store is unsupported.
type Scheduler struct {
	store    JobStore
	registry *jobs.Registry
	obs      Observer
	log      logger.Logger
	opts     Options

	sem sync.WaitGroup
	// slots bounds concurrent executions launched from ticks.
	slots chan struct{}
}

func New(store JobStore, registry *jobs.Registry, obs Observer, log logger.Logger, opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 4
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = time.Hour
	}
	return &Scheduler{
		store:    store,
		registry: registry,
		obs:      obs,
		log:      log,
		opts:     opts,
		slots:    make(chan struct{}, opts.PoolSize),
	}
}

// Run polls until ctx is cancelled, then waits for in-flight executions.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("Scheduler started", map[string]interface{}{
		"pollInterval": s.opts.PollInterval.String(),
		"poolSize":     s.opts.PoolSize,
		"templates":    strings.Join(s.registry.Types(), ","),
	})

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.Tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping, draining executions", nil)
			s.sem.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx, time.Now().UTC())
		}
	}
}

// Tick runs one poll pass. A failure on one job never stops the others and
// never escapes the loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		s.log.Error("Due-job query failed", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, job := range due {
		job := job

		running, err := s.store.HasRunningExecution(ctx, job.Name)
		if err != nil {
			s.log.Error("Overlap check failed", map[string]interface{}{
				"job": job.Name, "error": err.Error()})
			continue
		}
		if running {
			s.log.Warn("Skipping due job, previous execution still running", map[string]interface{}{
				"job": job.Name})
			metrics.JobsSkippedOverlap.WithLabelValues(job.Name).Inc()
			continue
		}

		claimed, err := s.store.Claim(ctx, job.ID)
		if err != nil {
			s.log.Error("Claim failed", map[string]interface{}{
				"job": job.Name, "error": err.Error()})
			continue
		}
		if !claimed {
			continue
		}

		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			// Shutting down; drop the claim so the job runs on next start.
			unclaimCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.store.Unclaim(unclaimCtx, job.ID); err != nil {
				s.log.Error("Unclaim failed", map[string]interface{}{
					"job": job.Name, "error": err.Error()})
			}
			cancel()
			return
		}
		s.sem.Add(1)
		go func() {
			defer s.sem.Done()
			defer func() { <-s.slots }()
			s.runJob(ctx, job)
		}()
	}
}

// runJob validates, executes and records one claimed job, then reschedules
// it. Panics inside a template are converted to failures so the loop
// survives.
func (s *Scheduler) runJob(ctx context.Context, job models.JobDefinition) {
	started := time.Now().UTC()
	status := models.ExecutionFailure
	var result jobs.JobResult
	var execErr error

	defer func() {
		s.finishJob(job, started, status, result, execErr)
	}()

	execID, err := s.store.StartExecution(ctx, job.Name, job.TemplateType, "scheduler")
	if err != nil {
		execErr = err
		s.log.Error("Could not record execution start", map[string]interface{}{
			"job": job.Name, "error": err.Error()})
		return
	}
	// finishJob closes the definition; the execution record closes here. Like
	// Release, this runs on a fresh context: the tick's context is already
	// cancelled when shutdown lands mid-execution, and a row left running
	// would overlap-skip the job on every later tick.
	defer func() {
		errText := ""
		if execErr != nil {
			errText = execErr.Error()
		}
		detail := json.RawMessage(`{}`)
		if result.Detail != nil {
			detail, _ = json.Marshal(result.Detail)
		}
		finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ferr := s.store.FinishExecution(finishCtx, execID, status, detail, errText); ferr != nil {
			s.log.Error("Could not record execution finish", map[string]interface{}{
				"job": job.Name, "error": ferr.Error()})
		}
	}()

	if err := s.registry.Validate(job.TemplateType, job.Parameters); err != nil {
		execErr = err
		s.log.Error("Job parameters invalid", map[string]interface{}{
			"job": job.Name, "error": err.Error()})
		return
	}
	tpl, err := s.registry.Get(job.TemplateType)
	if err != nil {
		execErr = err
		return
	}

	execCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()

	result, execErr = executeTemplate(execCtx, tpl, jobs.JobContext{
		JobName:    job.Name,
		Parameters: job.Parameters,
		Logger:     s.log.WithFields(map[string]interface{}{"job": job.Name}),
	})

	switch {
	case execErr == nil && result.Status != "":
		status = result.Status
	case execErr == nil:
		status = models.ExecutionSuccess
	case execCtx.Err() == context.DeadlineExceeded:
		status = models.ExecutionTimeout
		execErr = pkgerrors.NewExecutionTimeoutError(job.Name, s.opts.JobTimeout)
	default:
		status = models.ExecutionFailure
	}
}

// executeTemplate isolates template panics so one broken template cannot
// take the scheduler down.
func executeTemplate(ctx context.Context, tpl jobs.JobTemplate, jc jobs.JobContext) (result jobs.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return tpl.Execute(ctx, jc)
}

// finishJob records metrics and reschedules the definition. The next run is
// always computed from the wall clock at completion, never from the previous
// nextRunAt, so a late tick moves the schedule forward instead of queueing
// catch-up runs.
func (s *Scheduler) finishJob(job models.JobDefinition, started time.Time, status string, result jobs.JobResult, execErr error) {
	elapsed := time.Since(started)
	metrics.JobExecutionsCompleted.WithLabelValues(job.TemplateType, status).Inc()
	metrics.JobExecutionDuration.WithLabelValues(job.TemplateType).Observe(elapsed.Seconds())
	if s.obs != nil {
		obsCtx := context.Background()
		s.obs.RecordJobProcessed(obsCtx, status)
		s.obs.RecordJobDuration(obsCtx, elapsed, status)
	}

	fields := map[string]interface{}{
		"job":      job.Name,
		"status":   status,
		"duration": elapsed.String(),
	}
	if execErr != nil {
		fields["error"] = execErr.Error()
		s.log.Error("Job finished with error", fields)
	} else {
		s.log.Info("Job finished", fields)
	}

	s.releaseAfterRun(job, status, time.Now().UTC())
}

func (s *Scheduler) releaseAfterRun(job models.JobDefinition, status string, now time.Time) {
	next, err := NextRun(job, now)
	if err != nil {
		// An unschedulable definition is pushed out a poll interval so the
		// bad schedule is logged every pass instead of hot-looping.
		s.log.Error("Could not compute next run", map[string]interface{}{
			"job": job.Name, "error": err.Error()})
		next = now.Add(s.opts.PollInterval)
	}
	// Release runs on a fresh context; the tick's context may already be
	// cancelled during shutdown.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Release(releaseCtx, job.ID, status, now, next); err != nil {
		s.log.Error("Release failed", map[string]interface{}{
			"job": job.Name, "error": err.Error()})
	}
}

// NextRun computes the next due time from now. Interval schedules advance by
// their fixed period; weekly schedules run at the next occurrence of
// day-of-week and time-of-day in the definition's timezone.
func NextRun(job models.JobDefinition, now time.Time) (time.Time, error) {
	switch job.ScheduleType {
	case models.ScheduleInterval:
		if job.IntervalSeconds <= 0 {
			return time.Time{}, fmt.Errorf("job %s: interval must be positive", job.Name)
		}
		return now.Add(time.Duration(job.IntervalSeconds) * time.Second), nil

	case models.ScheduleWeekly:
		hour, minute, err := parseTimeOfDay(job.TimeOfDay)
		if err != nil {
			return time.Time{}, fmt.Errorf("job %s: %w", job.Name, err)
		}
		loc := time.UTC
		if job.Timezone != "" {
			loc, err = time.LoadLocation(job.Timezone)
			if err != nil {
				return time.Time{}, fmt.Errorf("job %s: bad timezone %q: %w", job.Name, job.Timezone, err)
			}
		}
		spec := fmt.Sprintf("%d %d * * %d", minute, hour, int(job.DayOfWeek))
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return time.Time{}, fmt.Errorf("job %s: bad weekly schedule: %w", job.Name, err)
		}
		return sched.Next(now.In(loc)), nil

	default:
		return time.Time{}, fmt.Errorf("job %s: unknown schedule type %q", job.Name, job.ScheduleType)
	}
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM", value)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time of day %q: bad hour", value)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q: bad minute", value)
	}
	return hour, minute, nil
}
