// internal/models/job.go
package models

import (
	"encoding/json"
	"time"
)

// Schedule types
const (
	ScheduleInterval = "interval"
	ScheduleWeekly   = "weekly"
)

// Execution statuses
const (
	ExecutionRunning = "running"
	ExecutionSuccess = "success"
	ExecutionFailure = "failure"
	ExecutionPartial = "partial"
	ExecutionTimeout = "timeout"
)

// JobDefinition is one row in job_definitions. Admin tooling creates and
// edits definitions; the scheduler owns NextRunAt, LastRunAt, LastStatus and
// the Claimed flag.
type JobDefinition struct {
	ID           int64
	Name         string // unique
	Description  string
	TemplateType string

	// Schedule: either a fixed interval or a weekly day-of-week + time-of-day.
	ScheduleType    string
	IntervalSeconds int
	DayOfWeek       time.Weekday // weekly schedules only
	TimeOfDay       string       // "HH:MM", weekly schedules only
	Timezone        string       // IANA name, weekly schedules only

	Parameters json.RawMessage // template-specific configuration bag
	Enabled    bool
	Claimed    bool

	NextRunAt  time.Time
	LastRunAt  *time.Time
	LastStatus string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobExecution is one row in job_executions: a single attempted run.
// Exactly one running execution may exist per job name at a time; the
// scheduler's claim enforces that.
type JobExecution struct {
	ID           string
	JobName      string
	TemplateType string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Result       json.RawMessage // structured per-template detail
	Error        string
	TriggeredBy  string
}
