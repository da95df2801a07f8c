package agent

import (
	"errors"
	"fmt"
)

// ErrStageNotFound is returned when a message is routed to a stage name that is not registered.
var ErrStageNotFound = errors.New("stage not found")

// ErrInvalidMetadata is returned when a recognized metadata key carries a value of the wrong type.
var ErrInvalidMetadata = errors.New("invalid metadata")

// ErrEmptyInput is returned by stages that received a message with no content.
var ErrEmptyInput = errors.New("empty input")

// StageError reports an unrecoverable failure inside a stage.
type StageError struct {
	Stage string
	Role  Role
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (%s) failed: %v", e.Stage, e.Role, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err as a failure of the named stage.
func NewStageError(stage string, role Role, err error) *StageError {
	return &StageError{Stage: stage, Role: role, Err: err}
}
