// internal/store/users.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"matrimony-pipeline/internal/models"
)

// UserStore resolves recipient identifiers to display and contact data and
// writes back carrier-reported opt-outs.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Resolve returns the profile summary for a username, or (nil, nil) when the
// user does not exist.
func (s *UserStore) Resolve(ctx context.Context, username string) (*models.ProfileSummary, error) {
	var (
		p            models.ProfileSummary
		firstName    sql.NullString
		lastName     sql.NullString
		email        sql.NullString
		phone        sql.NullString
		pushEndpoint sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, first_name, last_name, email, phone, push_endpoint,
		        email_opt_in, sms_opt_in, push_opt_in
		 FROM users WHERE username = $1`, username).
		Scan(&p.Username, &firstName, &lastName, &email, &phone, &pushEndpoint,
			&p.OptIns.Email, &p.OptIns.SMS, &p.OptIns.Push)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user %s: %w", username, err)
	}
	p.FirstName = firstName.String
	p.LastName = lastName.String
	p.Email = email.String
	p.Phone = phone.String
	p.PushEndpoint = pushEndpoint.String
	return &p, nil
}

// SetChannelOptIn writes a user's consent for one channel. The write is
// idempotent; syncing an already opted-out user is a no-op, not an error.
func (s *UserStore) SetChannelOptIn(ctx context.Context, username string, channel models.Channel, optedIn bool) error {
	var column string
	switch channel {
	case models.ChannelEmail:
		column = "email_opt_in"
	case models.ChannelSMS:
		column = "sms_opt_in"
	case models.ChannelPush:
		column = "push_opt_in"
	default:
		return fmt.Errorf("set opt-in: unknown channel %q", channel)
	}
	query := fmt.Sprintf(
		`UPDATE users SET %s = $2, updated_at = $3 WHERE username = $1`, column)
	_, err := s.db.ExecContext(ctx, query, username, optedIn, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set %s opt-in for %s: %w", channel, username, err)
	}
	return nil
}
