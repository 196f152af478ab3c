package entity

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrContentTypeUnresolved = errors.New("content type unresolved")
	ErrSchemaUnavailable     = errors.New("schema unavailable")
	ErrTransformFailure      = errors.New("transform failure")
	ErrStorageIO             = errors.New("storage io failure")
)

// StorageError is returned by every storage backend.
type StorageError struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func NewStorageError(op, bucket, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Bucket: bucket, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s s3://%s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorageIO, e.Err}
}

// DiagnosticsError keeps every diagnostic reported by the codec engine.
// It matches its Kind and the first diagnostic's cause with errors.Is.
type DiagnosticsError struct {
	Kind        error
	Msg         string
	Diagnostics []Diagnostic
}

func (e *DiagnosticsError) Error() string {
	if len(e.Diagnostics) == 0 {
		return e.Msg
	}
	return e.Msg + ": " + e.Diagnostics[0].Message
}

func (e *DiagnosticsError) Unwrap() []error {
	errs := []error{e.Kind}
	if len(e.Diagnostics) > 0 && e.Diagnostics[0].Cause != nil {
		errs = append(errs, e.Diagnostics[0].Cause)
	}
	return errs
}
