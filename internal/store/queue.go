// internal/store/queue.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"matrimony-pipeline/internal/models"

	"github.com/google/uuid"
)

// QueueStore persists notification_queue rows. Records are created pending,
// move to sent or failed, and once sent are never modified again. Every
// mutation here is guarded by status = 'pending' so a concurrent or repeated
// update cannot touch a finalized record.
type QueueStore struct {
	db *sql.DB
}

func NewQueueStore(db *sql.DB) *QueueStore {
	return &QueueStore{db: db}
}

// Enqueue inserts a new pending record and returns its id. TemplateData is
// stored as JSON; MaxAttempts falls back to the default when unset.
func (s *QueueStore) Enqueue(ctx context.Context, rec *models.NotificationRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.MaxAttempts <= 0 {
		rec.MaxAttempts = models.DefaultMaxAttempts
	}
	data, err := json.Marshal(rec.TemplateData)
	if err != nil {
		return "", fmt.Errorf("marshal template data: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notification_queue
		 (id, recipient, channel, trigger, template_data, status, attempts, max_attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8)`,
		rec.ID, rec.Recipient, string(rec.Channel), rec.Trigger, data,
		models.NotificationPending, rec.MaxAttempts, now)
	if err != nil {
		return "", fmt.Errorf("enqueue notification: %w", err)
	}
	return rec.ID, nil
}

// ClaimBatch returns up to limit pending records for one channel, oldest
// first. The batch is read-then-processed; the scheduler's no-overlap rule
// keeps a single drain job active per channel.
func (s *QueueStore) ClaimBatch(ctx context.Context, channel models.Channel, limit int) ([]models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, channel, trigger, template_data, status, attempts, max_attempts, last_error, created_at, updated_at
		 FROM notification_queue
		 WHERE status = $1 AND channel = $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		models.NotificationPending, string(channel), limit)
	if err != nil {
		return nil, fmt.Errorf("claim %s batch: %w", channel, err)
	}
	defer rows.Close()

	var recs []models.NotificationRecord
	for rows.Next() {
		var (
			rec       models.NotificationRecord
			ch        string
			data      []byte
			lastError sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Recipient, &ch, &rec.Trigger, &data,
			&rec.Status, &rec.Attempts, &rec.MaxAttempts, &lastError,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		rec.Channel = models.Channel(ch)
		rec.LastError = lastError.String
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.TemplateData); err != nil {
				return nil, fmt.Errorf("unmarshal template data for %s: %w", rec.ID, err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkSent finalizes a pending record as sent. A record that is already sent
// or failed is left untouched.
func (s *QueueStore) MarkSent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_queue
		 SET status = $2, attempts = attempts + 1, last_error = '', updated_at = $3
		 WHERE id = $1 AND status = $4`,
		id, models.NotificationSent, time.Now().UTC(), models.NotificationPending)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark sent %s: record not pending", id)
	}
	return nil
}

// MarkFailed records a failed attempt. The record stays pending and will be
// retried on a later drain pass until attempts reaches max_attempts, at which
// point it moves to failed. When terminal is true the record is failed
// immediately regardless of remaining attempts.
func (s *QueueStore) MarkFailed(ctx context.Context, id, errText string, terminal bool) error {
	var query string
	if terminal {
		query = `UPDATE notification_queue
			 SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = $3
			 WHERE id = $1 AND status = 'pending'`
	} else {
		query = `UPDATE notification_queue
			 SET attempts = attempts + 1, last_error = $2, updated_at = $3,
			     status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END
			 WHERE id = $1 AND status = 'pending'`
	}
	_, err := s.db.ExecContext(ctx, query, id, errText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// CountByStatus returns pending/sent/failed totals per channel, for the
// drain jobs' result detail.
func (s *QueueStore) CountByStatus(ctx context.Context, channel models.Channel) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(1) FROM notification_queue WHERE channel = $1 GROUP BY status`,
		string(channel))
	if err != nil {
		return nil, fmt.Errorf("count %s queue: %w", channel, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
