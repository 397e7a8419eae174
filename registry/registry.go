package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"eventreg/db"
	"eventreg/metrics"
	"eventreg/models"
	"eventreg/persistence"
)

// ErrClosed is returned when the registry has no open database.
var ErrClosed = errors.New("registry is closed")

const dashboardLimit = 3

// Registry owns the single live database handle of the process. Mutations
// hold the write lock from the statement through the snapshot save, so the
// durable snapshot is never behind by more than the mutation in flight.
// Restore and Reset swap the handle under the same lock and close the old one.
type Registry struct {
	mu sync.RWMutex
	db *db.DB

	adapter *persistence.Adapter
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
	seed    bool
}

type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Registry) { r.tracer = tp.Tracer("eventreg/registry") }
}

// WithSampleData seeds demo events when Open starts from an empty store.
func WithSampleData(enabled bool) Option {
	return func(r *Registry) { r.seed = enabled }
}

func New(adapter *persistence.Adapter, opts ...Option) *Registry {
	r := &Registry{
		adapter: adapter,
		logger:  slog.Default(),
		tracer:  otel.Tracer("eventreg/registry"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = metrics.New(prometheus.NewRegistry())
	}
	return r
}

// Open loads the database from durable storage. An unreadable snapshot is
// logged and replaced by a fresh database; a failed save is logged and
// returned, but the registry is usable either way.
func (r *Registry) Open(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "registry.Open")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, created, err := r.adapter.Load(ctx)
	var saveErr error
	switch {
	case errors.Is(err, persistence.ErrLoad):
		r.logger.Warn("stored snapshot unusable, starting with a fresh database", "error", err)
		d, err = r.adapter.Fresh(ctx)
		if err != nil {
			return r.fail(span, err)
		}
		created = true
		saveErr = r.saveLocked(ctx, d)
	case errors.Is(err, persistence.ErrSave):
		r.logger.Error("failed to save initial snapshot", "error", err)
		r.metrics.ObserveSave(0, err)
		saveErr = err
	case err != nil:
		return r.fail(span, err)
	}

	if created && r.seed {
		seeded, err := d.SeedSampleData(ctx)
		if err != nil {
			r.logger.Error("failed to add sample data", "error", err)
		} else if seeded {
			r.logger.Info("sample data added")
			saveErr = r.saveLocked(ctx, d)
		}
	}

	r.swapLocked(d)
	if saveErr != nil {
		return r.fail(span, saveErr)
	}
	return nil
}

// Close releases the live database.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// CreateEvent validates and stores a new event, then saves a snapshot.
func (r *Registry) CreateEvent(ctx context.Context, in models.NewEvent) (*models.Event, error) {
	ctx, span := r.tracer.Start(ctx, "registry.CreateEvent")
	defer span.End()

	if err := models.Validate(&in); err != nil {
		return nil, r.fail(span, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, r.fail(span, ErrClosed)
	}

	evt, err := r.db.CreateEvent(ctx, in)
	if err != nil {
		return nil, r.fail(span, err)
	}
	span.SetAttributes(attribute.Int64("event.id", evt.ID))
	r.metrics.EventsCreated.Inc()
	r.logger.Info("event created", "event_id", evt.ID, "title", evt.Title)

	return evt, r.fail(span, r.saveLocked(ctx, r.db))
}

// Register books an attendee onto an event if it has room, then saves a snapshot.
func (r *Registry) Register(ctx context.Context, eventID int64, a models.Attendee) (*models.Registration, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Register", trace.WithAttributes(attribute.Int64("event.id", eventID)))
	defer span.End()

	if err := models.Validate(&a); err != nil {
		return nil, r.fail(span, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil, r.fail(span, ErrClosed)
	}

	reg, err := r.db.Register(ctx, eventID, a)
	if errors.Is(err, db.ErrCapacityExceeded) {
		r.metrics.RegistrationsFull.Inc()
		r.logger.Info("registration refused, event full", "event_id", eventID)
	}
	if err != nil {
		return nil, r.fail(span, err)
	}
	r.metrics.Registrations.Inc()
	r.logger.Info("attendee registered", "event_id", eventID, "registration_id", reg.ID)

	return reg, r.fail(span, r.saveLocked(ctx, r.db))
}

// DeleteEvent atomically removes an event with all its registrations, then saves a snapshot.
func (r *Registry) DeleteEvent(ctx context.Context, eventID int64) error {
	ctx, span := r.tracer.Start(ctx, "registry.DeleteEvent", trace.WithAttributes(attribute.Int64("event.id", eventID)))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return r.fail(span, ErrClosed)
	}

	removed, err := r.db.DeleteEvent(ctx, eventID)
	if err != nil {
		return r.fail(span, err)
	}
	r.metrics.EventsDeleted.Inc()
	r.logger.Info("event deleted", "event_id", eventID, "registrations_removed", removed)

	return r.fail(span, r.saveLocked(ctx, r.db))
}

// DeleteRegistration removes one registration. Deleting an unknown id is a
// no-op that reports false and skips the save.
func (r *Registry) DeleteRegistration(ctx context.Context, registrationID int64) (bool, error) {
	ctx, span := r.tracer.Start(ctx, "registry.DeleteRegistration",
		trace.WithAttributes(attribute.Int64("registration.id", registrationID)))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return false, r.fail(span, ErrClosed)
	}

	deleted, err := r.db.DeleteRegistration(ctx, registrationID)
	if err != nil {
		return false, r.fail(span, err)
	}
	if !deleted {
		return false, nil
	}
	r.metrics.RegistrationsDelete.Inc()
	r.logger.Info("registration deleted", "registration_id", registrationID)

	return true, r.fail(span, r.saveLocked(ctx, r.db))
}

// Backup returns the raw database image for download.
func (r *Registry) Backup(ctx context.Context) ([]byte, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Backup")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.db == nil {
		return nil, r.fail(span, ErrClosed)
	}

	image, err := r.adapter.ExportToFile(ctx, r.db)
	if err != nil {
		return nil, r.fail(span, err)
	}
	span.SetAttributes(attribute.Int("snapshot.bytes", len(image)))
	return image, nil
}

// Restore replaces the live database with the given image and saves it.
// If the image is rejected the live database and the stored snapshot are
// left exactly as they were.
func (r *Registry) Restore(ctx context.Context, image []byte) error {
	ctx, span := r.tracer.Start(ctx, "registry.Restore", trace.WithAttributes(attribute.Int("snapshot.bytes", len(image))))
	defer span.End()

	restored, err := r.adapter.ImportFromBytes(ctx, image)
	if err == nil {
		if err = restored.EnsureSchema(ctx); err != nil {
			restored.Close()
			err = &persistence.RestoreError{Err: err}
		}
	}
	if err != nil {
		r.metrics.Restores.WithLabelValues("rejected").Inc()
		r.logger.Warn("restore rejected", "error", err)
		return r.fail(span, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.swapLocked(restored)
	r.metrics.Restores.WithLabelValues("ok").Inc()
	r.logger.Info("database restored", "bytes", len(image))

	return r.fail(span, r.saveLocked(ctx, r.db))
}

// Reset discards all data: the stored snapshot is cleared and a brand-new
// database with the schema applied becomes live and is saved.
func (r *Registry) Reset(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "registry.Reset")
	defer span.End()

	fresh, err := r.adapter.Fresh(ctx)
	if err != nil {
		return r.fail(span, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A failed clear is not fatal: the save below overwrites the slot anyway.
	if err := r.adapter.Clear(ctx); err != nil {
		r.logger.Warn("failed to clear stored snapshot", "error", err)
	}
	r.swapLocked(fresh)
	r.metrics.Resets.Inc()
	r.logger.Info("database reset")

	return r.fail(span, r.saveLocked(ctx, r.db))
}

func (r *Registry) swapLocked(next *db.DB) {
	old := r.db
	r.db = next
	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Error("failed to close replaced database", "error", err)
		}
	}
}

func (r *Registry) saveLocked(ctx context.Context, d *db.DB) error {
	size, err := r.adapter.SaveSize(ctx, d)
	r.metrics.ObserveSave(size, err)
	if err != nil {
		r.logger.Error("failed to save snapshot, changes will not survive a restart", "error", err)
	}
	return err
}

func (r *Registry) fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
