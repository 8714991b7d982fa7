package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrPrecondition   = errors.New("precondition failed")
	ErrUpstream       = errors.New("upstream failure")
	ErrStageExecution = errors.New("stage execution failed")
	ErrConflict       = errors.New("job was modified concurrently")
)

// ValidationError reports malformed input rejected before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Reason)
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an unknown job id.
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PreconditionError reports a stage invoked out of order or without its inputs.
type PreconditionError struct {
	Stage  Stage
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("precondition failed: %s", e.Reason)
	}
	return fmt.Sprintf("precondition failed for %s: %s", e.Stage, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}

// UpstreamError is a terminal failure reported by an external operation.
type UpstreamError struct {
	Stage  Stage
	Detail string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream failure in %s: %s", e.Stage, e.Detail)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// StageExecutionError wraps an upstream or transport failure attributable to one stage.
type StageExecutionError struct {
	Stage Stage
	Err   error
}

func (e *StageExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stage %s failed", e.Stage)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageExecutionError) Is(target error) bool {
	return target == ErrStageExecution
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// Precondition is shorthand for building a PreconditionError.
func Precondition(stage Stage, format string, args ...any) error {
	return &PreconditionError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
