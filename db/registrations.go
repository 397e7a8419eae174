package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"eventreg/models"
)

// Register books an attendee onto an event.
//
// The event lookup, the capacity check and the insert run in one transaction
// on the single pooled connection, so two callers can never both take the
// last seat.
func (db *DB) Register(ctx context.Context, eventID int64, a models.Attendee) (*models.Registration, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Safe to call even if committed

	// 1. The event must exist.
	var capacity sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT capacity FROM events WHERE id = ?`, eventID).Scan(&capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Entity: "event", ID: eventID}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %d: %w", eventID, err)
	}

	// 2. Count existing registrations and refuse once the event is full.
	var count int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations for event %d: %w", eventID, err)
	}
	if capacity.Valid && int64(count) >= capacity.Int64 {
		return nil, &CapacityExceededError{EventID: eventID, Capacity: int(capacity.Int64), Count: count}
	}

	// 3. Insert the registration with a server-assigned date.
	registeredAt := db.now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO registrations (event_id, full_name, email, phone, registration_date)
		VALUES (?, ?, ?, ?, ?)
	`, eventID, a.FullName, a.Email, nullString(a.Phone), formatStamp(registeredAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert registration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed getting registration id: %w", err)
	}

	// 4. Commit Transaction
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tx: %w", err)
	}

	return &models.Registration{
		ID:               id,
		EventID:          eventID,
		FullName:         a.FullName,
		Email:            a.Email,
		Phone:            a.Phone,
		RegistrationDate: registeredAt,
	}, nil
}

// CountRegistrations returns how many registrations reference the event.
func (db *DB) CountRegistrations(ctx context.Context, eventID int64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations for event %d: %w", eventID, err)
	}
	return n, nil
}

// EventRegistrations lists an event's registrations, newest first.
func (db *DB) EventRegistrations(ctx context.Context, eventID int64) ([]models.Registration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations r
		WHERE r.event_id = ?
		ORDER BY datetime(r.registration_date) DESC, r.id DESC
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

// ListRegistrations lists every registration with its event title, newest first.
// Orphaned rows (whose event is gone) are kept with an empty title.
func (db *DB) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+registrationColumns+`, COALESCE(e.title, '')
		FROM registrations r
		LEFT JOIN events e ON r.event_id = e.id
		ORDER BY datetime(r.registration_date) DESC, r.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []models.Registration
	for rows.Next() {
		var title string
		r, err := scanRegistration(rows, &title)
		if err != nil {
			return nil, err
		}
		r.EventTitle = title
		regs = append(regs, *r)
	}
	return regs, rows.Err()
}

// DeleteRegistration removes a single registration. A missing id is not an
// error; the boolean reports whether a row was actually removed.
func (db *DB) DeleteRegistration(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM registrations WHERE id = ?`, id)
	if err != nil {
		return false, &DeleteError{Entity: "registration", ID: id, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &DeleteError{Entity: "registration", ID: id, Err: err}
	}
	return n > 0, nil
}
