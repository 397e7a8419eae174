package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventreg/models"
)

// CreateEvent creates a new event
func (db *DB) CreateEvent(ctx context.Context, in models.NewEvent) (*models.Event, error) {
	createdAt := db.now().UTC().Truncate(time.Second)

	var capacity sql.NullInt64
	if in.Capacity != nil {
		capacity = sql.NullInt64{Int64: int64(*in.Capacity), Valid: true}
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO events (title, description, date_time, location, capacity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, in.Title, nullString(in.Description), formatTime(in.DateTime), in.Location, capacity, formatStamp(createdAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed getting event id: %w", err)
	}

	evt := &models.Event{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		DateTime:    in.DateTime.UTC().Truncate(time.Second),
		Location:    in.Location,
		CreatedAt:   createdAt,
	}
	if in.Capacity != nil {
		c := *in.Capacity
		evt.Capacity = &c
	}
	return evt, nil
}

// GetEvent returns a single event with its registration count.
func (db *DB) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		FROM events e WHERE e.id = ?
	`, id)

	var count int
	evt, err := scanEvent(row, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "event", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %d: %w", id, err)
	}
	evt.RegistrationCount = count
	return evt, nil
}

// ListEvents lists all events in chronological order with their registration counts.
func (db *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	return db.queryEvents(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		FROM events e
		ORDER BY datetime(e.date_time) ASC, e.id ASC
	`)
}

// UpcomingEvents returns up to limit events starting after now, soonest first.
func (db *DB) UpcomingEvents(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	return db.queryEvents(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		FROM events e
		WHERE datetime(e.date_time) > datetime(?)
		ORDER BY datetime(e.date_time) ASC, e.id ASC
		LIMIT ?
	`, formatTime(now), limit)
}

// RecentEvents returns up to limit events, most recently created first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	return db.queryEvents(ctx, `
		SELECT `+eventColumns+`,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id)
		FROM events e
		ORDER BY datetime(e.created_at) DESC, e.id DESC
		LIMIT ?
	`, limit)
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]models.Event, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var count int
		e, err := scanEvent(rows, &count)
		if err != nil {
			return nil, err
		}
		e.RegistrationCount = count
		events = append(events, *e)
	}
	return events, rows.Err()
}

// Stats counts events and registrations, classifying events relative to now
// the same way models.StatusAt does.
func (db *DB) Stats(ctx context.Context, now time.Time) (models.Stats, error) {
	nowStr := formatTime(now)
	windowStart := formatTime(now.Add(-models.OngoingWindow))

	var s models.Stats
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(*) FROM registrations),
			(SELECT COUNT(*) FROM events WHERE datetime(date_time) > datetime(?)),
			(SELECT COUNT(*) FROM events WHERE datetime(date_time) BETWEEN datetime(?) AND datetime(?)),
			(SELECT COUNT(*) FROM events WHERE datetime(date_time) IS NULL OR datetime(date_time) < datetime(?))
	`, nowStr, windowStart, nowStr, windowStart).Scan(
		&s.TotalEvents, &s.TotalRegistrations, &s.Upcoming, &s.Ongoing, &s.Completed,
	)
	if err != nil {
		return models.Stats{}, fmt.Errorf("failed to compute stats: %w", err)
	}
	return s, nil
}

// DeleteEvent removes an event and every registration that references it in a
// single transaction. On any failure nothing is deleted.
// It returns the number of registrations removed alongside the event.
func (db *DB) DeleteEvent(ctx context.Context, id int64) (int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: err}
	}
	defer tx.Rollback() // Safe to call even if committed

	res, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE event_id = ?`, id)
	if err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: fmt.Errorf("delete registrations: %w", err)}
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: err}
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: fmt.Errorf("delete event: %w", err)}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: err}
	}
	if n == 0 {
		return 0, &NotFoundError{Entity: "event", ID: id}
	}

	if err := tx.Commit(); err != nil {
		return 0, &DeleteError{Entity: "event", ID: id, Err: fmt.Errorf("commit: %w", err)}
	}
	return removed, nil
}

// SampleEvents returns the demo events inserted on a first run, positioned
// relative to now so that every status is represented.
func SampleEvents(now time.Time) []models.NewEvent {
	capacity := func(n int) *int { return &n }
	day := 24 * time.Hour
	return []models.NewEvent{
		{
			Title:       "Entrepreneurship Seminar",
			Description: "How to start a business from scratch and make it succeed",
			DateTime:    now.Add(5 * day),
			Location:    "University Hall",
			Capacity:    capacity(100),
		},
		{
			Title:       "Web Programming Workshop",
			Description: "Hands-on training building modern websites with HTML, CSS and JavaScript",
			DateTime:    now.Add(2 * day),
			Location:    "Computer Lab",
			Capacity:    capacity(30),
		},
		{
			Title:       "Music Festival",
			Description: "Local and national bands on one stage",
			DateTime:    now.Add(10 * day),
			Location:    "City Square",
			Capacity:    capacity(500),
		},
		{
			Title:       "Technology Webinar",
			Description: "A discussion of the latest technology trends",
			DateTime:    now.Add(-2 * time.Hour),
			Location:    "Online",
			Capacity:    capacity(200),
		},
		{
			Title:       "Public Speaking Training",
			Description: "Grow your confidence speaking in front of an audience",
			DateTime:    now.Add(-5 * day),
			Location:    "Multipurpose Room",
			Capacity:    capacity(50),
		},
	}
}

// SeedSampleData inserts SampleEvents when the events table is empty and
// reports whether anything was inserted.
func (db *DB) SeedSampleData(ctx context.Context) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to count events: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	stamp := formatStamp(db.now())
	for _, e := range SampleEvents(db.now()) {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (title, description, date_time, location, capacity, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.Title, e.Description, formatTime(e.DateTime), e.Location, *e.Capacity, stamp)
		if err != nil {
			return false, fmt.Errorf("failed to insert sample event %q: %w", e.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit tx: %w", err)
	}
	return true, nil
}
