// internal/models/notification.go
package models

import "time"

// Channel represents a notification delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Notification record statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// DefaultMaxAttempts bounds retries for a single notification record.
const DefaultMaxAttempts = 3

// Triggers are logical notification types; they select the template and
// route display logic.
const (
	TriggerFavorited       = "favorited"
	TriggerMutualFavorite  = "mutual_favorite"
	TriggerShortlistAdded  = "shortlist_added"
	TriggerProfileView     = "profile_view"
	TriggerNewMessage      = "new_message"
	TriggerStatusApproved  = "status_approved"
	TriggerStatusSuspended = "status_suspended"
	TriggerWeeklyDigest    = "weekly_digest"
)

// NotificationRecord is one row in notification_queue. Created by the event
// dispatcher or the digest processor; mutated only by the channel drain jobs.
// Once Status is sent the record is immutable.
type NotificationRecord struct {
	ID           string // uuid
	Recipient    string // opaque identifier, resolved to an address at send time
	Channel      Channel
	Trigger      string
	TemplateData map[string]interface{} // nested bindings, dotted-path addressable
	Status       string
	Attempts     int
	MaxAttempts  int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NotificationTemplate maps a trigger/channel pair to subject and body
// strings with placeholders. Owned by external template management; the
// pipeline only reads enabled templates.
type NotificationTemplate struct {
	Trigger string
	Channel Channel
	Subject string
	Body    string
	Enabled bool
}
