// internal/jobs/template.go

// Package jobs defines the executable job contract and the registry the
// scheduler dispatches through. Concrete templates live in the subpackages.
package jobs

import (
	"context"
	"encoding/json"

	"matrimony-pipeline/internal/common/logger"
)

// JobContext carries everything a template needs for one execution. The
// context passed to Execute already carries the per-job timeout.
type JobContext struct {
	JobName    string
	Parameters json.RawMessage
	Logger     logger.Logger
}

// JobResult is the structured outcome of one execution. Detail is persisted
// as the execution record's result JSON.
type JobResult struct {
	Status string // models.ExecutionSuccess, Failure, Partial or Timeout
	Detail map[string]interface{}
}

// JobTemplate is one kind of executable work. Implementations must be safe
// for concurrent executions of different job definitions; the scheduler
// guarantees a single definition never runs concurrently with itself.
type JobTemplate interface {
	// Type is the stable tag job definitions reference.
	Type() string

	// ParameterSchema returns the JSON Schema the definition's parameters
	// must satisfy. An empty string means the template takes no parameters.
	ParameterSchema() string

	// ValidateParameters applies checks the schema cannot express, e.g.
	// cross-field constraints. Called after schema validation passed.
	ValidateParameters(params json.RawMessage) error

	// Execute runs one claimed execution.
	Execute(ctx context.Context, jc JobContext) (JobResult, error)
}
