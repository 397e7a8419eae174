package registry

import (
	"context"

	"eventreg/models"
)

// ListEvents returns every event in chronological order with registration counts.
func (r *Registry) ListEvents(ctx context.Context) ([]models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrClosed
	}
	return r.db.ListEvents(ctx)
}

// Event returns an event with its registrations and its status as of now.
func (r *Registry) Event(ctx context.Context, eventID int64) (*models.EventDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrClosed
	}

	evt, err := r.db.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	regs, err := r.db.EventRegistrations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &models.EventDetail{
		Event:         *evt,
		Registrations: regs,
		Status:        models.StatusAt(evt.DateTime, r.now()),
		Availability:  models.AvailabilityOf(evt.RegistrationCount, evt.Capacity),
	}, nil
}

// ListRegistrations returns all registrations with event titles, newest first.
func (r *Registry) ListRegistrations(ctx context.Context) ([]models.Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrClosed
	}
	return r.db.ListRegistrations(ctx)
}

// Stats returns the aggregate counts as of now.
func (r *Registry) Stats(ctx context.Context) (models.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return models.Stats{}, ErrClosed
	}
	return r.db.Stats(ctx, r.now())
}

// Dashboard returns the stats plus the next and the newest events.
func (r *Registry) Dashboard(ctx context.Context) (*models.Dashboard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, ErrClosed
	}

	now := r.now()
	stats, err := r.db.Stats(ctx, now)
	if err != nil {
		return nil, err
	}
	upcoming, err := r.db.UpcomingEvents(ctx, now, dashboardLimit)
	if err != nil {
		return nil, err
	}
	recent, err := r.db.RecentEvents(ctx, dashboardLimit)
	if err != nil {
		return nil, err
	}
	return &models.Dashboard{Stats: stats, Upcoming: upcoming, Recent: recent}, nil
}
