package repository

import (
	"errors"
	"fmt"
)

// ErrDuplicate reports that an observation for the same (station, date)
// already exists. Ingestion treats it as a successful no-op.
var ErrDuplicate = errors.New("duplicate observation")

// StorageError wraps a store connection or write failure. It is fatal to
// the unit of work that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsTransient returns true; the store may recover on a later run.
func (e *StorageError) IsTransient() bool {
	return true
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
