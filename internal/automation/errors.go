package automation

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-automation/internal/db"
)

// ValidationError is an expected, recoverable failure. Errors holds every
// user-facing message in the order the checks ran.
type ValidationError struct {
	Errors []string
	// Cause is db.ErrConflict for lost races and db.ErrNotFound for missing
	// primary entities; nil otherwise.
	Cause error
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Errors, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func invalid(msgs ...string) *ValidationError {
	return &ValidationError{Errors: msgs}
}

func notFound(msg string) *ValidationError {
	return &ValidationError{Errors: []string{msg}, Cause: db.ErrNotFound}
}

func conflict(msg string) *ValidationError {
	return &ValidationError{Errors: []string{msg}, Cause: db.ErrConflict}
}

// InternalError is an unexpected store failure. Its message never carries
// storage details; the wrapped error is logged where it happens.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return "internal error while " + e.Op
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError and returns it.
func IsValidation(err error) (*ValidationError, bool) {
	var v *ValidationError
	ok := errors.As(err, &v)
	return v, ok
}

// fail logs err and wraps it as an InternalError.
func (b *base) fail(op string, err error, fields logrus.Fields) error {
	b.log.WithFields(fields).WithField("op", op).WithError(err).Error("store operation failed")
	return &InternalError{Op: op, Err: err}
}
