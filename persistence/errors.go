package persistence

import (
	"errors"
	"fmt"
)

var (
	ErrLoad    = errors.New("load snapshot failed")
	ErrSave    = errors.New("save snapshot failed")
	ErrRestore = errors.New("restore failed")
)

// LoadError means the stored snapshot could not be turned back into a
// database. The caller is expected to start from a fresh database instead.
type LoadError struct {
	Key string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load snapshot %q: %v", e.Key, e.Err)
}
func (e *LoadError) Unwrap() error        { return e.Err }
func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// SaveError means the live database is fine but its latest state is not durable.
type SaveError struct {
	Key string
	Err error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save snapshot %q: %v", e.Key, e.Err)
}
func (e *SaveError) Unwrap() error        { return e.Err }
func (e *SaveError) Is(target error) bool { return target == ErrSave }

// RestoreError means the supplied bytes are not a usable event database.
type RestoreError struct {
	Err error
}

func (e *RestoreError) Error() string        { return fmt.Sprintf("restore database: %v", e.Err) }
func (e *RestoreError) Unwrap() error        { return e.Err }
func (e *RestoreError) Is(target error) bool { return target == ErrRestore }
