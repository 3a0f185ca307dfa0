// internal/models/schedule.go
package models

import "time"

// Digest frequencies.
const (
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// AdminOverride pins a scheduled notification's recurrence regardless of the
// owner's own preference. When present and not expired it always wins.
type AdminOverride struct {
	Frequency string       `json:"frequency,omitempty"`
	DayOfWeek time.Weekday `json:"dayOfWeek,omitempty"`
	TimeOfDay string       `json:"timeOfDay,omitempty"`
	Disabled  bool         `json:"disabled"`
	Reason    string       `json:"reason"`
	UpdatedBy string       `json:"updatedBy"`
}

// ScheduledNotification is one row in scheduled_notifications: a recurring
// digest owned by a user.
type ScheduledNotification struct {
	ID        int64
	Owner     string
	Trigger   string
	Channel   Channel
	Frequency string
	DayOfWeek time.Weekday // weekly only
	TimeOfDay string       // "HH:MM"
	Timezone  string
	LastSent  *time.Time
	Override  *AdminOverride
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveFrequency returns the recurrence that actually applies,
// preferring the admin override.
func (s *ScheduledNotification) EffectiveFrequency() string {
	if s.Override != nil && s.Override.Frequency != "" {
		return s.Override.Frequency
	}
	return s.Frequency
}

// EffectiveDayOfWeek returns the weekday that actually applies.
func (s *ScheduledNotification) EffectiveDayOfWeek() time.Weekday {
	if s.Override != nil && s.Override.Frequency != "" {
		return s.Override.DayOfWeek
	}
	return s.DayOfWeek
}

// EffectiveTimeOfDay returns the send time that actually applies.
func (s *ScheduledNotification) EffectiveTimeOfDay() string {
	if s.Override != nil && s.Override.TimeOfDay != "" {
		return s.Override.TimeOfDay
	}
	return s.TimeOfDay
}

// IsDisabled reports whether an admin override has turned the digest off.
func (s *ScheduledNotification) IsDisabled() bool {
	return s.Override != nil && s.Override.Disabled
}
