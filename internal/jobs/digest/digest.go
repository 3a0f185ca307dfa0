// internal/jobs/digest/digest.go

// Package digest implements the scheduled-notification processor. It turns
// due recurring digests into fresh queue records; the channel drains handle
// the actual delivery.
package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/metrics"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/models"
)

const Type = "scheduled_digest_processor"

const defaultBatch = 100

// ScheduleStore lists digests and advances their last-sent stamp.
type ScheduleStore interface {
	List(ctx context.Context, limit int) ([]models.ScheduledNotification, error)
	AdvanceLastSent(ctx context.Context, id int64, sentAt time.Time) error
}

// Queue is the enqueue side of the notification queue.
type Queue interface {
	Enqueue(ctx context.Context, rec *models.NotificationRecord) (string, error)
}

// UserStore resolves digest owners for the pre-send gate and display data.
type UserStore interface {
	Resolve(ctx context.Context, username string) (*models.ProfileSummary, error)
}

type params struct {
	BatchSize int `json:"batchSize"`
}

type Template struct {
	schedules ScheduleStore
	queue     Queue
	users     UserStore
	now       func() time.Time
}

func New(schedules ScheduleStore, queue Queue, users UserStore) *Template {
	return &Template{schedules: schedules, queue: queue, users: users, now: time.Now}
}

func (t *Template) Type() string { return Type }

func (t *Template) ParameterSchema() string {
	return `{
		"type": "object",
		"properties": {
			"batchSize": {"type": "integer", "minimum": 1, "maximum": 1000}
		},
		"additionalProperties": false
	}`
}

func (t *Template) ValidateParameters(json.RawMessage) error { return nil }

// Execute scans the schedules and enqueues one record per due digest. A
// failure on one schedule never blocks the rest.
func (t *Template) Execute(ctx context.Context, jc jobs.JobContext) (jobs.JobResult, error) {
	var p params
	if len(jc.Parameters) > 0 {
		if err := json.Unmarshal(jc.Parameters, &p); err != nil {
			return jobs.JobResult{Status: models.ExecutionFailure},
				pkgerrors.NewInvalidJobParametersError(err.Error())
		}
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = defaultBatch
	}

	scheds, err := t.schedules.List(ctx, batch)
	if err != nil {
		return jobs.JobResult{Status: models.ExecutionFailure}, err
	}

	now := t.now().UTC()
	var enqueued, skipped, disabled, failed int

	for _, sched := range scheds {
		if sched.IsDisabled() {
			disabled++
			continue
		}
		due, err := isDue(&sched, now)
		if err != nil {
			failed++
			jc.Logger.Error("Unschedulable digest", map[string]interface{}{
				"schedule": sched.ID, "error": err.Error()})
			continue
		}
		if !due {
			skipped++
			continue
		}

		if err := t.processDue(ctx, jc, &sched, now); err != nil {
			failed++
			jc.Logger.Error("Digest processing failed", map[string]interface{}{
				"schedule": sched.ID, "owner": sched.Owner, "error": err.Error()})
			continue
		}
		enqueued++
	}

	detail := map[string]interface{}{
		"scanned":  len(scheds),
		"enqueued": enqueued,
		"notDue":   skipped,
		"disabled": disabled,
		"failed":   failed,
	}
	status := models.ExecutionSuccess
	if failed > 0 {
		status = models.ExecutionPartial
	}
	return jobs.JobResult{Status: status, Detail: detail}, nil
}

func (t *Template) processDue(ctx context.Context, jc jobs.JobContext, sched *models.ScheduledNotification, now time.Time) error {
	profile, err := t.users.Resolve(ctx, sched.Owner)
	if err != nil {
		return err
	}
	if profile == nil {
		// Owner is gone; advance anyway so the dead schedule stops showing
		// up as due every pass.
		jc.Logger.Warn("Digest owner no longer exists", map[string]interface{}{
			"schedule": sched.ID, "owner": sched.Owner})
		return t.schedules.AdvanceLastSent(ctx, sched.ID, now)
	}

	// Pre-send gate: an opted-out recipient is skipped before any record is
	// created. The carrier-level check at send time still applies; this one
	// only saves the wasted enqueue.
	if (sched.Channel == models.ChannelSMS || sched.Channel == models.ChannelPush) &&
		!profile.OptIns.OptedIn(sched.Channel) {
		jc.Logger.Debug("Digest owner opted out, skipping", map[string]interface{}{
			"schedule": sched.ID, "channel": string(sched.Channel)})
		return t.schedules.AdvanceLastSent(ctx, sched.ID, now)
	}

	rec := &models.NotificationRecord{
		Recipient: sched.Owner,
		Channel:   sched.Channel,
		Trigger:   sched.Trigger,
		TemplateData: map[string]interface{}{
			"user": map[string]interface{}{
				"firstName": profile.FirstName,
				"lastName":  profile.LastName,
				"username":  profile.Username,
			},
		},
	}
	if _, err := t.queue.Enqueue(ctx, rec); err != nil {
		return err
	}
	metrics.NotificationsEnqueued.WithLabelValues(sched.Trigger, string(sched.Channel)).Inc()

	return t.schedules.AdvanceLastSent(ctx, sched.ID, now)
}

// isDue reports whether the most recent occurrence of the schedule's
// effective recurrence has passed without being served. Admin overrides win
// over the owner's own settings in every effective accessor.
func isDue(sched *models.ScheduledNotification, now time.Time) (bool, error) {
	loc := time.UTC
	if sched.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(sched.Timezone)
		if err != nil {
			return false, err
		}
	}

	occurrence, err := lastOccurrence(sched, now.In(loc))
	if err != nil {
		return false, err
	}
	if occurrence.After(now) {
		return false, nil
	}
	return sched.LastSent == nil || sched.LastSent.Before(occurrence), nil
}

// lastOccurrence finds the latest scheduled time at or before now in the
// schedule's own timezone.
func lastOccurrence(sched *models.ScheduledNotification, now time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(sched.EffectiveTimeOfDay())
	if err != nil {
		return time.Time{}, err
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	switch sched.EffectiveFrequency() {
	case models.FrequencyDaily:
		if candidate.After(now) {
			candidate = candidate.AddDate(0, 0, -1)
		}
		return candidate, nil
	case models.FrequencyWeekly:
		offset := int(now.Weekday() - sched.EffectiveDayOfWeek())
		if offset < 0 {
			offset += 7
		}
		candidate = candidate.AddDate(0, 0, -offset)
		if candidate.After(now) {
			candidate = candidate.AddDate(0, 0, -7)
		}
		return candidate, nil
	default:
		return time.Time{}, pkgerrors.NewInvalidJobParametersError(
			"unknown digest frequency " + sched.EffectiveFrequency())
	}
}

func parseTimeOfDay(value string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(value, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("time of day %q must be HH:MM: %w", value, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time of day %q out of range", value)
	}
	return hour, minute, nil
}
