package core

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	ErrMissingConversionFactor = errors.New("missing conversion factor")
	ErrPoBalanceExceeded       = errors.New("purchase order balance exceeded")
	// ErrPersistenceConflict is retryable: the caller may resubmit the same update.
	ErrPersistenceConflict = errors.New("persistence conflict")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
)

// ValidationError rejects an update before any write.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// SideEffectError reports a payable reconciliation failure that happened after the delivery
// was committed. It is carried in ReceiptResult, never returned as the operation's error.
type SideEffectError struct {
	Stage string
	Err   error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("%s (retryable): %v", e.Stage, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }
