package db

import (
	"errors"
	"fmt"
)

// Sentinels matched (via errors.Is) by the typed errors below.
var (
	ErrSchema           = errors.New("schema error")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("event is at capacity")
	ErrDelete           = errors.New("delete failed")
)

// SchemaError reports that the engine rejected the schema DDL.
type SchemaError struct {
	Err error
}

func (e *SchemaError) Error() string { return fmt.Sprintf("ensure schema: %v", e.Err) }
func (e *SchemaError) Unwrap() error { return e.Err }
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// NotFoundError reports a missing event or registration.
type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %d not found", e.Entity, e.ID) }
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// CapacityExceededError is returned when an event already holds Capacity registrations.
type CapacityExceededError struct {
	EventID  int64
	Capacity int
	Count    int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("event %d is full (%d of %d registrations)", e.EventID, e.Count, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// DeleteError wraps an engine failure during a delete. The transaction it
// happened in has been rolled back.
type DeleteError struct {
	Entity string
	ID     int64
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("delete %s %d: %v", e.Entity, e.ID, e.Err)
}
func (e *DeleteError) Unwrap() error { return e.Err }
func (e *DeleteError) Is(target error) bool {
	return target == ErrDelete
}
