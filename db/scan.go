package db

import (
	"database/sql"
	"fmt"
	"time"

	"eventreg/models"
)

// timeLayout is how timestamps are written and how they are normalized on read
// through strftime, so that SQL comparisons on date_time are chronological.
const timeLayout = "2006-01-02T15:04:05Z"

// normalized renders a timestamp column in timeLayout, falling back to the raw
// text when SQLite cannot parse it.
func normalized(col string) string {
	return fmt.Sprintf("COALESCE(strftime('%%Y-%%m-%%dT%%H:%%M:%%SZ', %s), %s, '')", col, col)
}

var eventColumns = fmt.Sprintf(
	"e.id, e.title, COALESCE(e.description, ''), %s, e.location, e.capacity, %s",
	normalized("e.date_time"), normalized("e.created_at"),
)

var registrationColumns = fmt.Sprintf(
	"r.id, r.event_id, r.full_name, r.email, COALESCE(r.phone, ''), %s",
	normalized("r.registration_date"),
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner, extra ...any) (*models.Event, error) {
	var (
		e         models.Event
		dateTime  string
		createdAt string
		capacity  sql.NullInt64
	)
	dest := append([]any{&e.ID, &e.Title, &e.Description, &dateTime, &e.Location, &capacity, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	// Images written by other clients may hold dates nothing can parse; such
	// an event is still listed, with its raw text and a zero DateTime.
	if t, err := models.ParseDateTime(dateTime); err == nil {
		e.DateTime = t
	} else {
		e.RawDateTime = dateTime
	}
	e.CreatedAt = parseStored(createdAt)
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	return &e, nil
}

func scanRegistration(row rowScanner, extra ...any) (*models.Registration, error) {
	var (
		r       models.Registration
		regDate string
	)
	dest := append([]any{&r.ID, &r.EventID, &r.FullName, &r.Email, &r.Phone, &regDate}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.RegistrationDate = parseStored(regDate)
	return &r, nil
}

// parseStored is lenient: server-assigned timestamps that cannot be read are
// reported as the zero time rather than failing the whole query.
func parseStored(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := models.ParseDateTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// formatStamp matches SQLite's CURRENT_TIMESTAMP format used by the column defaults.
func formatStamp(t time.Time) string {
	return t.UTC().Format(time.DateTime)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
