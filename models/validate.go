package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrValidation is matched by every error returned from Validate.
var ErrValidation = errors.New("validation failed")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			return name
		})
	})
	return validate
}

// ValidationError lists the offending fields by their JSON names.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate checks a NewEvent or Attendee after trimming surrounding whitespace.
func Validate(v any) error {
	switch in := v.(type) {
	case *NewEvent:
		in.Title = strings.TrimSpace(in.Title)
		in.Location = strings.TrimSpace(in.Location)
	case *Attendee:
		in.FullName = strings.TrimSpace(in.FullName)
		in.Email = strings.TrimSpace(in.Email)
		in.Phone = strings.TrimSpace(in.Phone)
	}

	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	ve := &ValidationError{}
	for _, fe := range fieldErrs {
		ve.Fields = append(ve.Fields, fe.Field())
	}
	return ve
}

// ParseDateTime accepts the timestamp layouts produced by HTML datetime-local
// inputs, SQLite and RFC 3339. Values without a zone are taken as UTC, which
// is how the database stores them.
func ParseDateTime(s string) (time.Time, error) {
	return ParseDateTimeIn(s, time.UTC)
}

// ParseDateTimeIn is ParseDateTime with zoneless values read in loc, the way a
// browser reads a datetime-local field in the user's own time zone. The result
// is always in UTC.
func ParseDateTimeIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{Fields: []string{"date_time"}}
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}
