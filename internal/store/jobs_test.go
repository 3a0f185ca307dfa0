// internal/store/jobs_test.go
package store

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStoreListDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "template_type", "schedule_type",
		"interval_seconds", "day_of_week", "time_of_day", "timezone", "parameters",
		"enabled", "claimed", "next_run_at", "last_run_at", "last_status",
		"created_at", "updated_at",
	}).AddRow(
		int64(7), "drain-email-queue", "", "notification_email", "interval",
		300, 0, "", "", []byte(`{"batchSize":100}`),
		true, false, now.Add(-time.Minute), nil, "",
		now.Add(-time.Hour), now.Add(-time.Hour),
	)

	mock.ExpectQuery(`(?s)SELECT .+ FROM job_definitions\s+WHERE enabled = TRUE AND claimed = FALSE AND next_run_at <= \$1`).
		WithArgs(now).
		WillReturnRows(rows)

	store := NewJobStore(db)
	jobs, err := store.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "drain-email-queue", jobs[0].Name)
	assert.Equal(t, "notification_email", jobs[0].TemplateType)
	assert.Nil(t, jobs[0].LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreClaim(t *testing.T) {
	tests := []struct {
		name        string
		rowsChanged int64
		wantClaimed bool
	}{
		{name: "unclaimed job is claimed", rowsChanged: 1, wantClaimed: true},
		{name: "already claimed job is not claimed again", rowsChanged: 0, wantClaimed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(`(?s)UPDATE job_definitions SET claimed = TRUE.+WHERE id = \$1 AND claimed = FALSE`).
				WithArgs(int64(7), sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, tt.rowsChanged))

			store := NewJobStore(db)
			claimed, err := store.Claim(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tt.wantClaimed, claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestJobStoreRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	lastRun := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	nextRun := lastRun.Add(5 * time.Minute)

	mock.ExpectExec(`UPDATE job_definitions\s+SET claimed = FALSE, last_status = \$2, last_run_at = \$3, next_run_at = \$4`).
		WithArgs(int64(7), "success", lastRun, nextRun, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewJobStore(db)
	err = store.Release(context.Background(), 7, "success", lastRun, nextRun)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreExecutionLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO job_executions`).
		WithArgs(sqlmock.AnyArg(), "drain-email-queue", "notification_email",
			"running", sqlmock.AnyArg(), "scheduler").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE job_executions`).
		WithArgs(sqlmock.AnyArg(), "success", sqlmock.AnyArg(), []byte(`{"sent":3}`), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewJobStore(db)
	execID, err := store.StartExecution(context.Background(), "drain-email-queue", "notification_email", "scheduler")
	require.NoError(t, err)
	require.NotEmpty(t, execID)

	err = store.FinishExecution(context.Background(), execID, "success", []byte(`{"sent":3}`), "")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreHasRunningExecution(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM job_executions`).
		WithArgs("weekly-digest", "running").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	store := NewJobStore(db)
	running, err := store.HasRunningExecution(context.Background(), "weekly-digest")
	require.NoError(t, err)
	assert.True(t, running)
	assert.NoError(t, mock.ExpectationsWereMet())
}
