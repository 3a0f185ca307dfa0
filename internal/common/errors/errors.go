// Package errors provides standardized error handling for the scheduling
// and notification delivery pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Configuration errors: non-retriable, the record or job is failed
	// immediately and an operator has to fix the setup.
	ErrCodeTemplateNotFound     ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrCodeInvalidJobParameters ErrorCode = "INVALID_JOB_PARAMETERS"
	ErrCodeUnknownTemplateType  ErrorCode = "UNKNOWN_TEMPLATE_TYPE"

	// Transient provider errors: retriable up to the record's maxAttempts.
	ErrCodeProviderSendFailed ErrorCode = "PROVIDER_SEND_FAILED"
	ErrCodeProviderTimeout    ErrorCode = "PROVIDER_TIMEOUT"

	// Authoritative rejections: non-retriable; the carrier or provider has
	// final say about the recipient.
	ErrCodeRecipientOptedOut ErrorCode = "RECIPIENT_OPTED_OUT"
	ErrCodeInvalidRecipient  ErrorCode = "INVALID_RECIPIENT_ADDRESS"

	// Execution errors.
	ErrCodeExecutionTimeout     ErrorCode = "EXECUTION_TIMEOUT"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeJobAlreadyRunning    ErrorCode = "JOB_ALREADY_RUNNING"
)

// PipelineError represents a structured application error.
type PipelineError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("PipelineError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTemplateNotFoundError creates a non-retryable configuration error for a
// trigger/channel pair without an enabled notification template.
func NewTemplateNotFoundError(trigger, channel string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeTemplateNotFound,
		Message:   "No enabled notification template for trigger",
		Details:   fmt.Sprintf("trigger: %s, channel: %s", trigger, channel),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidJobParametersError creates a non-retryable parameter validation error.
func NewInvalidJobParametersError(details string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvalidJobParameters,
		Message:   "Job parameter validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnknownTemplateTypeError creates a non-retryable error for a job
// definition referencing an unregistered template type.
func NewUnknownTemplateTypeError(templateType string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeUnknownTemplateType,
		Message:   "Template type is not registered",
		Details:   fmt.Sprintf("templateType: %s", templateType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderSendFailedError creates a retryable provider delivery error.
func NewProviderSendFailedError(channel string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeProviderSendFailed,
		Message:   "Provider delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a retryable provider timeout error.
func NewProviderTimeoutError(channel string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeProviderTimeout,
		Message:   "Provider call timed out",
		Details:   fmt.Sprintf("channel: %s", channel),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientOptedOutError creates a non-retryable carrier opt-out error.
// Callers must treat this as authoritative and sync the local preference.
func NewRecipientOptedOutError(recipient string, err error) *PipelineError {
	details := fmt.Sprintf("recipient: %s", recipient)
	if err != nil {
		details = fmt.Sprintf("recipient: %s, error: %s", recipient, err.Error())
	}
	return &PipelineError{
		Code:      ErrCodeRecipientOptedOut,
		Message:   "Recipient has opted out at the carrier level",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRecipientError creates a non-retryable invalid address error.
func NewInvalidRecipientError(recipient, reason string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeInvalidRecipient,
		Message:   "Recipient address is invalid or unreachable",
		Details:   fmt.Sprintf("recipient: %s, reason: %s", recipient, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewExecutionTimeoutError creates a job execution timeout error.
func NewExecutionTimeoutError(jobName string, timeout time.Duration) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeExecutionTimeout,
		Message:   "Job execution exceeded its maximum duration",
		Details:   fmt.Sprintf("job: %s, timeout: %s", jobName, timeout),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable database error.
func NewQueryExecutionFailedError(operation string, err error) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobAlreadyRunningError creates an error for an overlapping execution attempt.
func NewJobAlreadyRunningError(jobName string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeJobAlreadyRunning,
		Message:   "A previous execution of this job is still running",
		Details:   fmt.Sprintf("job: %s", jobName),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Helpers
// ==========================

// IsRetryable reports whether err carries a retryable pipeline error.
// Unknown errors are treated as transient, matching the drain templates'
// retry-by-requeue behavior.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}

// IsOptOut reports whether err is an authoritative carrier opt-out.
func IsOptOut(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeRecipientOptedOut
	}
	return false
}

// Code extracts the pipeline error code, or empty string for foreign errors.
func Code(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
