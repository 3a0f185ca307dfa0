// internal/store/jobs.go
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

// JobStore persists job definitions and execution records. The scheduler is
// the only writer of next_run_at, last_run_at, last_status and claimed.
type JobStore struct {
	db *sql.DB
}

func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, name, description, template_type, schedule_type,
	interval_seconds, day_of_week, time_of_day, timezone, parameters,
	enabled, claimed, next_run_at, last_run_at, last_status, created_at, updated_at`

// ListDue returns enabled, unclaimed definitions whose next_run_at has
// passed. Disabled jobs are never selected regardless of next_run_at.
func (s *JobStore) ListDue(ctx context.Context, now time.Time) ([]models.JobDefinition, error) {
	query := fmt.Sprintf(`SELECT %s FROM job_definitions
		WHERE enabled = TRUE AND claimed = FALSE AND next_run_at <= $1
		ORDER BY next_run_at ASC`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobDefinition
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Claim atomically marks a definition as claimed. Returns false when another
// tick or instance already holds the claim; the caller must then skip the job.
func (s *JobStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_definitions SET claimed = TRUE, updated_at = $2
		 WHERE id = $1 AND claimed = FALSE`, id, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return n == 1, nil
}

// Release records the outcome of an execution and schedules the next run.
// next_run_at is always computed from now by the caller, never from the
// previous next_run_at, so late ticks do not produce catch-up storms.
func (s *JobStore) Release(ctx context.Context, id int64, lastStatus string, lastRunAt, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_definitions
		 SET claimed = FALSE, last_status = $2, last_run_at = $3, next_run_at = $4, updated_at = $5
		 WHERE id = $1`,
		id, lastStatus, lastRunAt, nextRunAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("release job %d: %w", id, err)
	}
	return nil
}

// Unclaim drops the claim without recording a run. Used when shutdown lands
// between claiming and executing.
func (s *JobStore) Unclaim(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_definitions SET claimed = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("unclaim job %d: %w", id, err)
	}
	return nil
}

// StartExecution inserts a running execution record and returns its id.
func (s *JobStore) StartExecution(ctx context.Context, jobName, templateType, triggeredBy string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_executions (id, job_name, template_type, status, started_at, triggered_by)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, jobName, templateType, models.ExecutionRunning, time.Now().UTC(), triggeredBy)
	if err != nil {
		return "", fmt.Errorf("start execution for %s: %w", jobName, err)
	}
	return id, nil
}

// FinishExecution closes an execution record with its final status, result
// detail and error text.
func (s *JobStore) FinishExecution(ctx context.Context, executionID, status string, result json.RawMessage, errText string) error {
	if result == nil {
		result = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE job_executions
		 SET status = $2, finished_at = $3, result = $4, error = $5
		 WHERE id = $1`,
		executionID, status, time.Now().UTC(), []byte(result), errText)
	if err != nil {
		return fmt.Errorf("finish execution %s: %w", executionID, err)
	}
	return nil
}

// HasRunningExecution reports whether a running record exists for the job.
// Used to skip a due job whose previous execution has not finished.
func (s *JobStore) HasRunningExecution(ctx context.Context, jobName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM job_executions WHERE job_name = $1 AND status = $2`,
		jobName, models.ExecutionRunning).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check running execution for %s: %w", jobName, err)
	}
	return count > 0, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (models.JobDefinition, error) {
	var (
		job        models.JobDefinition
		dayOfWeek  int
		timeOfDay  sql.NullString
		timezone   sql.NullString
		params     []byte
		lastRunAt  sql.NullTime
		lastStatus sql.NullString
	)
	err := row.Scan(
		&job.ID, &job.Name, &job.Description, &job.TemplateType, &job.ScheduleType,
		&job.IntervalSeconds, &dayOfWeek, &timeOfDay, &timezone, &params,
		&job.Enabled, &job.Claimed, &job.NextRunAt, &lastRunAt, &lastStatus,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return job, fmt.Errorf("scan job definition: %w", err)
	}
	job.DayOfWeek = time.Weekday(dayOfWeek)
	job.TimeOfDay = timeOfDay.String
	job.Timezone = timezone.String
	job.Parameters = json.RawMessage(params)
	if lastRunAt.Valid {
		t := lastRunAt.Time
		job.LastRunAt = &t
	}
	job.LastStatus = lastStatus.String
	return job, nil
}
