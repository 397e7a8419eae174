package models

import (
	"math"
	"time"
)

// OngoingWindow is how long after its start an event still counts as ongoing.
const OngoingWindow = 3 * time.Hour

// AlmostFullRatio is the fill ratio from which an event is reported as almost full.
const AlmostFullRatio = 0.8

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// StatusAt classifies an event starting at dateTime relative to now.
func StatusAt(dateTime, now time.Time) Status {
	switch {
	case dateTime.After(now):
		return StatusUpcoming
	case !dateTime.Before(now.Add(-OngoingWindow)):
		return StatusOngoing
	default:
		return StatusCompleted
	}
}

type Availability string

const (
	AvailabilityOpen       Availability = "available"
	AvailabilityAlmostFull Availability = "almost_full"
	AvailabilityFull       Availability = "full"
)

// AvailabilityOf reports how full an event is given its current registration count.
func AvailabilityOf(count int, capacity *int) Availability {
	if capacity == nil {
		return AvailabilityOpen
	}
	c := *capacity
	switch {
	case count >= c:
		return AvailabilityFull
	case float64(count) >= float64(c)*AlmostFullRatio:
		return AvailabilityAlmostFull
	default:
		return AvailabilityOpen
	}
}

// DaysUntil returns the number of days until dateTime, rounded up.
// Past dates yield zero or a negative number.
func DaysUntil(dateTime, now time.Time) int {
	return int(math.Ceil(dateTime.Sub(now).Hours() / 24))
}
