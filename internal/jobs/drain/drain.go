// internal/jobs/drain/drain.go

// Package drain implements the channel-drain job templates. One execution
// pulls a batch of pending notifications for its channel, renders each and
// hands it to the channel sender.
package drain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/common/metrics"
	"matrimony-pipeline/internal/delivery"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/models"
	"matrimony-pipeline/internal/render"
)

// Template type tags referenced by job definitions.
const (
	TypeEmail = "notification_email"
	TypeSMS   = "notification_sms"
	TypePush  = "notification_push"
)

// Default batch sizes when a definition does not set one.
const (
	DefaultEmailBatch = 100
	DefaultSMSBatch   = 50
	DefaultPushBatch  = 100
)

// QueueStore is the queue surface the drain needs.
type QueueStore interface {
	ClaimBatch(ctx context.Context, channel models.Channel, limit int) ([]models.NotificationRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errText string, terminal bool) error
}

// TemplateStore resolves the enabled template for a trigger/channel pair.
type TemplateStore interface {
	GetEnabled(ctx context.Context, trigger string, channel models.Channel) (*models.NotificationTemplate, error)
}

// UserStore resolves recipients and takes the carrier opt-out write-back.
type UserStore interface {
	Resolve(ctx context.Context, username string) (*models.ProfileSummary, error)
	SetChannelOptIn(ctx context.Context, username string, channel models.Channel, optedIn bool) error
}

type params struct {
	BatchSize int `json:"batchSize"`
}

// Template drains one channel's queue. Build one per channel via the
// constructors below.
type Template struct {
	channel      models.Channel
	tag          string
	defaultBatch int
	queue        QueueStore
	templates    TemplateStore
	users        UserStore
	sender       delivery.ChannelSender
	sendTimeout  time.Duration
}

func NewEmailTemplate(queue QueueStore, templates TemplateStore, users UserStore, sender delivery.ChannelSender, sendTimeout time.Duration) *Template {
	return newTemplate(models.ChannelEmail, TypeEmail, DefaultEmailBatch, queue, templates, users, sender, sendTimeout)
}

func NewSMSTemplate(queue QueueStore, templates TemplateStore, users UserStore, sender delivery.ChannelSender, sendTimeout time.Duration) *Template {
	return newTemplate(models.ChannelSMS, TypeSMS, DefaultSMSBatch, queue, templates, users, sender, sendTimeout)
}

func NewPushTemplate(queue QueueStore, templates TemplateStore, users UserStore, sender delivery.ChannelSender, sendTimeout time.Duration) *Template {
	return newTemplate(models.ChannelPush, TypePush, DefaultPushBatch, queue, templates, users, sender, sendTimeout)
}

func newTemplate(channel models.Channel, tag string, defaultBatch int, queue QueueStore, templates TemplateStore, users UserStore, sender delivery.ChannelSender, sendTimeout time.Duration) *Template {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Template{
		channel:      channel,
		tag:          tag,
		defaultBatch: defaultBatch,
		queue:        queue,
		templates:    templates,
		users:        users,
		sender:       sender,
		sendTimeout:  sendTimeout,
	}
}

func (t *Template) Type() string { return t.tag }

func (t *Template) ParameterSchema() string {
	return `{
		"type": "object",
		"properties": {
			"batchSize": {"type": "integer", "minimum": 1, "maximum": 1000}
		},
		"additionalProperties": false
	}`
}

func (t *Template) ValidateParameters(raw json.RawMessage) error {
	return nil
}

// Execute drains one batch. Failures are per record; the execution itself
// only fails when the batch cannot be claimed at all.
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
		batch = t.defaultBatch
	}

	records, err := t.queue.ClaimBatch(ctx, t.channel, batch)
	if err != nil {
		return jobs.JobResult{Status: models.ExecutionFailure}, err
	}

	var sent, failed, requeued, stopped int
	for _, rec := range records {
		if ctx.Err() != nil {
			stopped = len(records) - sent - failed - requeued
			break
		}
		outcome := t.processRecord(ctx, jc, rec)
		switch outcome {
		case outcomeSent:
			sent++
		case outcomeFailed:
			failed++
		case outcomeRequeued:
			requeued++
		case outcomeStopBatch:
			// Budget gates stop the whole pass; untouched records stay
			// pending for the next drain cycle.
			stopped = len(records) - sent - failed - requeued
		}
		if outcome == outcomeStopBatch {
			break
		}
	}

	detail := map[string]interface{}{
		"channel":  string(t.channel),
		"claimed":  len(records),
		"sent":     sent,
		"failed":   failed,
		"requeued": requeued,
	}
	if stopped > 0 {
		detail["deferred"] = stopped
	}

	status := models.ExecutionSuccess
	if failed > 0 || requeued > 0 {
		status = models.ExecutionPartial
	}
	return jobs.JobResult{Status: status, Detail: detail}, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeRequeued
	outcomeStopBatch
)

func (t *Template) processRecord(ctx context.Context, jc jobs.JobContext, rec models.NotificationRecord) outcome {
	tpl, err := t.templates.GetEnabled(ctx, rec.Trigger, t.channel)
	if err != nil {
		return t.fail(ctx, jc, rec, err, false)
	}
	if tpl == nil {
		// Missing template is a configuration error; retrying cannot fix it.
		return t.fail(ctx, jc, rec, pkgerrors.NewTemplateNotFoundError(rec.Trigger, string(t.channel)), true)
	}

	profile, err := t.users.Resolve(ctx, rec.Recipient)
	if err != nil {
		return t.fail(ctx, jc, rec, err, false)
	}
	if profile == nil {
		return t.fail(ctx, jc, rec, pkgerrors.NewInvalidRecipientError(rec.Recipient, "unknown user"), true)
	}
	address := addressFor(profile, t.channel)
	if address == "" {
		return t.fail(ctx, jc, rec, pkgerrors.NewInvalidRecipientError(rec.Recipient, fmt.Sprintf("no %s address", t.channel)), true)
	}

	subject := render.Render(tpl.Subject, rec.TemplateData)
	body := render.Render(tpl.Body, rec.TemplateData)

	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	err = t.sender.Send(sendCtx, address, subject, body)
	cancel()

	if err == nil {
		if err := t.queue.MarkSent(ctx, rec.ID); err != nil {
			jc.Logger.Error("Could not mark notification sent", map[string]interface{}{
				"id": rec.ID, "error": err.Error()})
		}
		metrics.NotificationsSent.WithLabelValues(string(t.channel)).Inc()
		return outcomeSent
	}

	if errors.Is(err, delivery.ErrDailyBudgetExceeded) {
		jc.Logger.Warn("Channel budget exhausted, deferring rest of batch", map[string]interface{}{
			"channel": string(t.channel)})
		return outcomeStopBatch
	}

	if pkgerrors.IsOptOut(err) {
		// Carrier opt-out is authoritative; sync the stored preference so
		// future enqueues skip this recipient. The set is idempotent.
		if syncErr := t.users.SetChannelOptIn(ctx, rec.Recipient, t.channel, false); syncErr != nil {
			jc.Logger.Error("Opt-out sync failed", map[string]interface{}{
				"recipient": rec.Recipient, "error": syncErr.Error()})
		} else {
			metrics.OptOutSyncs.Inc()
		}
		return t.fail(ctx, jc, rec, err, true)
	}

	return t.fail(ctx, jc, rec, err, !pkgerrors.IsRetryable(err))
}

// fail marks the record and reports whether it is terminally failed or
// requeued for a later pass.
func (t *Template) fail(ctx context.Context, jc jobs.JobContext, rec models.NotificationRecord, cause error, terminal bool) outcome {
	metrics.NotificationsFailed.WithLabelValues(string(t.channel), string(pkgerrors.Code(cause))).Inc()
	if err := t.queue.MarkFailed(ctx, rec.ID, cause.Error(), terminal); err != nil {
		jc.Logger.Error("Could not mark notification failed", map[string]interface{}{
			"id": rec.ID, "error": err.Error()})
	}
	jc.Logger.Warn("Notification delivery failed", map[string]interface{}{
		"id":        rec.ID,
		"recipient": rec.Recipient,
		"trigger":   rec.Trigger,
		"terminal":  terminal,
		"error":     cause.Error(),
	})
	if terminal {
		return outcomeFailed
	}
	// Non-terminal failures stay pending; attempts+1 may still tip the
	// record into failed, but from this pass's view it was requeued.
	if rec.Attempts+1 >= rec.MaxAttempts {
		return outcomeFailed
	}
	return outcomeRequeued
}

func addressFor(p *models.ProfileSummary, ch models.Channel) string {
	switch ch {
	case models.ChannelEmail:
		return p.Email
	case models.ChannelSMS:
		return p.Phone
	case models.ChannelPush:
		return p.PushEndpoint
	}
	return ""
}
