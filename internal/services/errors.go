package services

import (
	"errors"
	"fmt"
)

// ErrorCode classifies progress service failures for the HTTP boundary
type ErrorCode string

const (
	// CodeInvalidInput marks a malformed snapshot or missing identifier
	CodeInvalidInput ErrorCode = "invalid_input"
	// CodeRegressionRejected marks a save that would un-complete a checkpoint
	CodeRegressionRejected ErrorCode = "regression_rejected"
	// CodeStorageUnavailable marks a persistence layer failure
	CodeStorageUnavailable ErrorCode = "storage_unavailable"
)

// ProgressError is a typed failure with a machine-readable code and reason.
// A rejected save never partially applies the merge.
type ProgressError struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *ProgressError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func (e *ProgressError) Unwrap() error {
	return e.Err
}

// invalidInput creates an InvalidInput error with the given reason
func invalidInput(reason string) *ProgressError {
	return &ProgressError{Code: CodeInvalidInput, Reason: reason}
}

// regressionRejected creates a RegressionRejected error for checkpoint index i
func regressionRejected(i int) *ProgressError {
	return &ProgressError{
		Code:   CodeRegressionRejected,
		Reason: fmt.Sprintf("checkpoint %d is already completed and cannot be reverted", i),
	}
}

// storageUnavailable wraps a persistence failure
func storageUnavailable(err error) *ProgressError {
	return &ProgressError{Code: CodeStorageUnavailable, Reason: "storage operation failed", Err: err}
}

// CodeOf extracts the error code from err, or empty string for untyped errors
func CodeOf(err error) ErrorCode {
	var pe *ProgressError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
