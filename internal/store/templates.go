// internal/store/templates.go
package store

import (
	"context"
	"database/sql"
	"fmt"

	"matrimony-pipeline/internal/models"
)

// TemplateStore reads notification templates. Template management lives in
// admin tooling; the pipeline only needs the enabled template for a
// trigger/channel pair.
type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

// GetEnabled returns the enabled template for the trigger and channel, or
// (nil, nil) when none exists. A missing template is a caller decision, not
// a storage error.
func (s *TemplateStore) GetEnabled(ctx context.Context, trigger string, channel models.Channel) (*models.NotificationTemplate, error) {
	var tpl models.NotificationTemplate
	var ch string
	err := s.db.QueryRowContext(ctx,
		`SELECT trigger, channel, subject, body, enabled
		 FROM notification_templates
		 WHERE trigger = $1 AND channel = $2 AND enabled = TRUE`,
		trigger, string(channel)).
		Scan(&tpl.Trigger, &ch, &tpl.Subject, &tpl.Body, &tpl.Enabled)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template %s/%s: %w", trigger, channel, err)
	}
	tpl.Channel = models.Channel(ch)
	return &tpl, nil
}
