// internal/dispatch/dispatch.go

// Package dispatch turns domain events into queued notifications. It is the
// only place that resolves display data, so templates downstream never see a
// bare identifier where a name belongs.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"matrimony-pipeline/internal/common/logger"
	"matrimony-pipeline/internal/common/metrics"
	"matrimony-pipeline/internal/models"
)

// Event types accepted by Dispatch.
const (
	EventFavoriteAdded   = "favorite_added"
	EventMutualFavorite  = "mutual_favorite"
	EventShortlistAdded  = "shortlist_added"
	EventProfileViewed   = "profile_viewed"
	EventMessageSent     = "message_sent"
	EventStatusApproved  = "status_approved"
	EventStatusSuspended = "status_suspended"
)

// Event is one domain occurrence. Actor is empty for system events such as
// moderation decisions.
type Event struct {
	Type      string                 `json:"type"`
	Actor     string                 `json:"actor,omitempty"`
	Recipient string                 `json:"recipient"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	At        time.Time              `json:"at"`
}

// route binds an event type to its trigger and delivery channels.
type route struct {
	trigger  string
	channels []models.Channel
}

var routes = map[string]route{
	EventFavoriteAdded:   {models.TriggerFavorited, []models.Channel{models.ChannelPush, models.ChannelEmail}},
	EventMutualFavorite:  {models.TriggerMutualFavorite, []models.Channel{models.ChannelPush, models.ChannelEmail, models.ChannelSMS}},
	EventShortlistAdded:  {models.TriggerShortlistAdded, []models.Channel{models.ChannelPush}},
	EventProfileViewed:   {models.TriggerProfileView, []models.Channel{models.ChannelPush}},
	EventMessageSent:     {models.TriggerNewMessage, []models.Channel{models.ChannelPush, models.ChannelEmail}},
	EventStatusApproved:  {models.TriggerStatusApproved, []models.Channel{models.ChannelEmail, models.ChannelSMS}},
	EventStatusSuspended: {models.TriggerStatusSuspended, []models.Channel{models.ChannelEmail}},
}

// Queue is the enqueue side of the notification queue.
type Queue interface {
	Enqueue(ctx context.Context, rec *models.NotificationRecord) (string, error)
}

// UserStore resolves usernames to display profiles.
type UserStore interface {
	Resolve(ctx context.Context, username string) (*models.ProfileSummary, error)
}

// Dispatcher resolves event context and enqueues per-channel notifications.
// Events are additionally fanned out on Redis pub/sub for live consumers
// (websocket gateways, analytics).
type Dispatcher struct {
	queue Queue
	users UserStore
	redis redis.Cmdable
	log   logger.Logger
}

func New(queue Queue, users UserStore, redisClient redis.Cmdable, log logger.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, users: users, redis: redisClient, log: log}
}

// Dispatch enqueues notifications for one event. Both the actor's and the
// recipient's display profiles are resolved here; template data always
// carries names, never usernames standing in for names.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	r, ok := routes[event.Type]
	if !ok {
		return fmt.Errorf("dispatch: unknown event type %q", event.Type)
	}

	recipient, err := d.users.Resolve(ctx, event.Recipient)
	if err != nil {
		return fmt.Errorf("dispatch %s: resolve recipient: %w", event.Type, err)
	}
	if recipient == nil {
		return fmt.Errorf("dispatch %s: recipient %q not found", event.Type, event.Recipient)
	}

	templateData := map[string]interface{}{
		"user": profileBindings(recipient),
	}
	if event.Actor != "" {
		actor, err := d.users.Resolve(ctx, event.Actor)
		if err != nil {
			return fmt.Errorf("dispatch %s: resolve actor: %w", event.Type, err)
		}
		if actor == nil {
			return fmt.Errorf("dispatch %s: actor %q not found", event.Type, event.Actor)
		}
		templateData["actor"] = profileBindings(actor)
	}
	if len(event.Metadata) > 0 {
		templateData["meta"] = event.Metadata
	}

	for _, channel := range r.channels {
		// Pre-send gate: skip opted-out recipients up front. The drain's
		// carrier-level fallback still covers the race where the preference
		// flips between this check and the send.
		if (channel == models.ChannelSMS || channel == models.ChannelPush) &&
			!recipient.OptIns.OptedIn(channel) {
			d.log.Debug("Recipient opted out, not enqueueing", map[string]interface{}{
				"recipient": event.Recipient, "channel": string(channel), "trigger": r.trigger})
			continue
		}

		rec := &models.NotificationRecord{
			Recipient:    event.Recipient,
			Channel:      channel,
			Trigger:      r.trigger,
			TemplateData: templateData,
		}
		if _, err := d.queue.Enqueue(ctx, rec); err != nil {
			return fmt.Errorf("dispatch %s: enqueue %s: %w", event.Type, channel, err)
		}
		metrics.NotificationsEnqueued.WithLabelValues(r.trigger, string(channel)).Inc()
	}

	d.publish(ctx, event)
	return nil
}

// publish fans the event out on "events:<type>". Pub/sub is best effort;
// losing a live update never fails the dispatch.
func (d *Dispatcher) publish(ctx context.Context, event Event) {
	if d.redis == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error("Could not marshal event", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := d.redis.Publish(ctx, "events:"+event.Type, payload).Err(); err != nil {
		d.log.Warn("Event fan-out failed", map[string]interface{}{
			"type": event.Type, "error": err.Error()})
	}
}

func profileBindings(p *models.ProfileSummary) map[string]interface{} {
	return map[string]interface{}{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"username":  p.Username,
	}
}
