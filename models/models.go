package models

import "time"

// Event represents an event that attendees can register for.
type Event struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	// RawDateTime holds the stored text when it is not a readable date.
	RawDateTime string `json:"raw_date_time,omitempty"`
	Location    string `json:"location"`
	// Capacity is nil when the event accepts an unlimited number of registrations.
	Capacity  *int      `json:"capacity"`
	CreatedAt time.Time `json:"created_at"`

	// RegistrationCount is filled in by list queries only.
	RegistrationCount int `json:"registration_count"`
}

// HasCapacity reports whether the event caps its registrations.
func (e *Event) HasCapacity() bool {
	return e.Capacity != nil
}

// Registration represents an attendee's booking for an event.
type Registration struct {
	ID               int64     `json:"id"`
	EventID          int64     `json:"event_id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone,omitempty"`
	RegistrationDate time.Time `json:"registration_date"`

	// EventTitle is empty when the owning event no longer exists.
	EventTitle string `json:"event_title,omitempty"`
}

// NewEvent carries the fields a caller supplies when creating an event.
type NewEvent struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time" validate:"required"`
	Location    string    `json:"location" validate:"required"`
	Capacity    *int      `json:"capacity" validate:"omitempty,gt=0"`
}

// Attendee carries the fields a caller supplies when registering for an event.
// Email format is deliberately not checked.
type Attendee struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Phone    string `json:"phone"`
}

// EventDetail is an event together with its registrations, newest first.
type EventDetail struct {
	Event         Event          `json:"event"`
	Registrations []Registration `json:"registrations"`
	Status        Status         `json:"status"`
	Availability  Availability   `json:"availability"`
}

// Stats holds the aggregate counts shown on the statistics and dashboard views.
type Stats struct {
	TotalEvents        int `json:"total_events"`
	TotalRegistrations int `json:"total_registrations"`
	Upcoming           int `json:"upcoming"`
	Ongoing            int `json:"ongoing"`
	Completed          int `json:"completed"`
}

// Dashboard bundles the stats with the next and most recently created events.
type Dashboard struct {
	Stats    Stats   `json:"stats"`
	Upcoming []Event `json:"upcoming"`
	Recent   []Event `json:"recent"`
}
