// internal/store/users_test.go
package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matrimony-pipeline/internal/models"
)

func TestUserStoreResolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT username, first_name, last_name, email, phone, push_endpoint`).
		WithArgs("priya_s").
		WillReturnRows(sqlmock.NewRows([]string{
			"username", "first_name", "last_name", "email", "phone", "push_endpoint",
			"email_opt_in", "sms_opt_in", "push_opt_in",
		}).AddRow("priya_s", "Priya", "Sharma", "priya@example.com", "+919800000001", nil,
			true, true, false))

	store := NewUserStore(db)
	p, err := store.Resolve(context.Background(), "priya_s")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Priya", p.FirstName)
	assert.Equal(t, "Priya", p.DisplayName())
	assert.True(t, p.OptIns.OptedIn(models.ChannelSMS))
	assert.False(t, p.OptIns.OptedIn(models.ChannelPush))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStoreResolveUnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT username`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"username"}))

	store := NewUserStore(db)
	p, err := store.Resolve(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestUserStoreSetChannelOptInIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Two syncs of the same opt-out both succeed; the second changes nothing.
	mock.ExpectExec(`UPDATE users SET sms_opt_in = \$2`).
		WithArgs("priya_s", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET sms_opt_in = \$2`).
		WithArgs("priya_s", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewUserStore(db)
	require.NoError(t, store.SetChannelOptIn(context.Background(), "priya_s", models.ChannelSMS, false))
	require.NoError(t, store.SetChannelOptIn(context.Background(), "priya_s", models.ChannelSMS, false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupStoreRejectsBadIdentifiers(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCleanupStore(db)
	cutoff := time.Now().UTC()
	_, err = store.DeleteOlderThan(context.Background(), "events; DROP TABLE users", "created_at", cutoff)
	require.Error(t, err)
	_, err = store.DeleteOlderThan(context.Background(), "events", "created_at OR 1=1", cutoff)
	require.Error(t, err)
}
