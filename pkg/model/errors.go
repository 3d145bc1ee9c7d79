package model

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced entity no longer exists, most
// notably when a worker reports a result for a due datapoint that a reset
// deleted. Result ingestion absorbs and logs it; it never blocks scheduling.
var ErrNotFound = errors.New("not found")

// CapacityError is the planning-time rejection raised when a single dispatch
// producer cannot drain the required request rate. It carries both figures
// for diagnostics.
type CapacityError struct {
	Required  float64
	BlockSize int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("required %.1f requests per producer cycle, block size is %d", e.Required, e.BlockSize)
}

// ScheduleError reports an invalid schedule request: no datapoints to
// deliver, or a window that does not advance time.
type ScheduleError struct {
	Reason string
}

func (e *ScheduleError) Error() string {
	return "invalid schedule: " + e.Reason
}

// InvalidTransitionError is returned when a simulator status change is not
// in the transition table.
type InvalidTransitionError struct {
	SimulatorID string
	From        SimulatorStatus
	To          SimulatorStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid simulator status transition: %s -> %s (simulator %s)", e.From, e.To, e.SimulatorID)
}

// ErrorCode represents a structured API error code.
type ErrorCode string

const (
	CodeValidation ErrorCode = "VALIDATION_ERROR"
	CodeNotFound   ErrorCode = "NOT_FOUND"
	CodeConflict   ErrorCode = "CONFLICT"
	CodeCapacity   ErrorCode = "CAPACITY_EXCEEDED"
	CodeInternal   ErrorCode = "INTERNAL_ERROR"
)

// APIError is a structured error returned by the capsim API.
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewValidationError creates a VALIDATION_ERROR APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Code: CodeValidation, Message: msg}
}

// NewNotFoundError creates a NOT_FOUND APIError.
func NewNotFoundError(resource, id string) *APIError {
	return &APIError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s '%s' not found", resource, id),
	}
}
