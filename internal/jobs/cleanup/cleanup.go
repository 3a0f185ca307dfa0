// internal/jobs/cleanup/cleanup.go

// Package cleanup implements the multi-target retention job. Each target is
// a table plus an age threshold; targets are processed in order and isolated
// from each other's failures.
package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pkgerrors "matrimony-pipeline/internal/common/errors"
	"matrimony-pipeline/internal/jobs"
	"matrimony-pipeline/internal/models"
)

const Type = "database_cleanup"

// allowedTables is the fixed set the job may ever touch. A definition naming
// any other table fails validation before it can run.
var allowedTables = map[string]bool{
	"logs":               true,
	"activity_logs":      true,
	"job_executions":     true,
	"notification_queue": true,
	"events":             true,
	"profile_views":      true,
}

// Store is the deletion surface. *store.CleanupStore satisfies it.
type Store interface {
	DeleteOlderThan(ctx context.Context, table, timestampField string, cutoff time.Time) (int64, error)
	CountOlderThan(ctx context.Context, table, timestampField string, cutoff time.Time) (int64, error)
}

type target struct {
	Table          string `json:"table"`
	AgeDays        int    `json:"ageDays"`
	TimestampField string `json:"timestampField"`
}

type params struct {
	Targets []target `json:"targets"`
	DryRun  bool     `json:"dryRun"`
}

// Template runs the retention sweep.
type Template struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Template {
	return &Template{store: store, now: time.Now}
}

func (t *Template) Type() string { return Type }

func (t *Template) ParameterSchema() string {
	return `{
		"type": "object",
		"properties": {
			"targets": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"properties": {
						"table": {"type": "string", "minLength": 1},
						"ageDays": {"type": "integer", "minimum": 1},
						"timestampField": {"type": "string", "minLength": 1}
					},
					"required": ["table", "ageDays", "timestampField"]
				}
			},
			"dryRun": {"type": "boolean"}
		},
		"required": ["targets"],
		"additionalProperties": false
	}`
}

// ValidateParameters enforces the table allow-list, which the schema cannot
// express.
func (t *Template) ValidateParameters(raw json.RawMessage) error {
	var p params
	if err := json.Unmarshal(raw, &p); err != nil {
		return pkgerrors.NewInvalidJobParametersError(err.Error())
	}
	for _, tgt := range p.Targets {
		if !allowedTables[tgt.Table] {
			return pkgerrors.NewInvalidJobParametersError(
				fmt.Sprintf("table %q is not cleanable", tgt.Table))
		}
	}
	return nil
}

// Execute sweeps every target in order. One target's failure is recorded in
// the result detail and the sweep moves on; the overall status grades to
// partial or failure accordingly.
func (t *Template) Execute(ctx context.Context, jc jobs.JobContext) (jobs.JobResult, error) {
	var p params
	if err := json.Unmarshal(jc.Parameters, &p); err != nil {
		return jobs.JobResult{Status: models.ExecutionFailure},
			pkgerrors.NewInvalidJobParametersError(err.Error())
	}

	now := t.now().UTC()
	var succeeded, failed int
	results := make([]map[string]interface{}, 0, len(p.Targets))

	for _, tgt := range p.Targets {
		cutoff := now.AddDate(0, 0, -tgt.AgeDays)
		entry := map[string]interface{}{
			"table":  tgt.Table,
			"cutoff": cutoff.Format(time.RFC3339),
		}

		var n int64
		var err error
		if p.DryRun {
			n, err = t.store.CountOlderThan(ctx, tgt.Table, tgt.TimestampField, cutoff)
			entry["wouldDelete"] = n
		} else {
			n, err = t.store.DeleteOlderThan(ctx, tgt.Table, tgt.TimestampField, cutoff)
			entry["deleted"] = n
		}
		if err != nil {
			failed++
			entry["error"] = err.Error()
			jc.Logger.Error("Cleanup target failed", map[string]interface{}{
				"table": tgt.Table, "error": err.Error()})
		} else {
			succeeded++
			jc.Logger.Info("Cleanup target done", map[string]interface{}{
				"table": tgt.Table, "rows": n, "dryRun": p.DryRun})
		}
		results = append(results, entry)
	}

	detail := map[string]interface{}{
		"targets": results,
		"dryRun":  p.DryRun,
	}

	status := models.ExecutionSuccess
	switch {
	case failed > 0 && succeeded > 0:
		status = models.ExecutionPartial
	case failed > 0:
		status = models.ExecutionFailure
	}
	return jobs.JobResult{Status: status, Detail: detail}, nil
}
