package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrBatchOverflow          = errors.New("batch progress exceeds total count")
	ErrRepository             = errors.New("repository failure")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrProviderFailure        = errors.New("provider failure")
)

// ValidationError reports bad construction input. It is surfaced to the
// caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateTransitionError is returned when the current status is not a
// valid predecessor of the requested one.
type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   JobStatus
	To     JobStatus
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s: invalid state transition %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidStateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyExistsError is returned by Create when the identity is taken.
type AlreadyExistsError struct {
	Entity string
	ID     string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

func (e *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// RepositoryError wraps a transient persistence failure.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

func (e *RepositoryError) Is(target error) bool { return target == ErrRepository }

// NewRepositoryError wraps err unless it is already a domain outcome.
func NewRepositoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}
