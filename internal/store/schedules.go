// internal/store/schedules.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"matrimony-pipeline/internal/models"
)

// ScheduleStore reads and advances recurring digest schedules. Due-ness is
// decided in Go because the admin override lives in a JSON column and must
// take precedence over the stored recurrence.
type ScheduleStore struct {
	db *sql.DB
}

func NewScheduleStore(db *sql.DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

// List returns up to limit schedules, oldest last_sent first so starved
// digests are considered before recently served ones.
func (s *ScheduleStore) List(ctx context.Context, limit int) ([]models.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, trigger, channel, frequency, day_of_week, time_of_day, timezone,
		        last_sent, override, created_at, updated_at
		 FROM scheduled_notifications
		 ORDER BY last_sent ASC NULLS FIRST
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var scheds []models.ScheduledNotification
	for rows.Next() {
		var (
			sn        models.ScheduledNotification
			ch        string
			dayOfWeek int
			timezone  sql.NullString
			lastSent  sql.NullTime
			override  []byte
		)
		if err := rows.Scan(&sn.ID, &sn.Owner, &sn.Trigger, &ch, &sn.Frequency,
			&dayOfWeek, &sn.TimeOfDay, &timezone, &lastSent, &override,
			&sn.CreatedAt, &sn.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		sn.Channel = models.Channel(ch)
		sn.DayOfWeek = time.Weekday(dayOfWeek)
		sn.Timezone = timezone.String
		if lastSent.Valid {
			t := lastSent.Time
			sn.LastSent = &t
		}
		if len(override) > 0 && string(override) != "null" {
			var ov models.AdminOverride
			if err := json.Unmarshal(override, &ov); err != nil {
				return nil, fmt.Errorf("unmarshal override for schedule %d: %w", sn.ID, err)
			}
			sn.Override = &ov
		}
		scheds = append(scheds, sn)
	}
	return scheds, rows.Err()
}

// AdvanceLastSent stamps the schedule after its digest has been enqueued so
// the same occurrence is not served twice.
func (s *ScheduleStore) AdvanceLastSent(ctx context.Context, id int64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_notifications SET last_sent = $2, updated_at = $3 WHERE id = $1`,
		id, sentAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance schedule %d: %w", id, err)
	}
	return nil
}
