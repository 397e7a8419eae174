package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"eventreg/db"
	"eventreg/models"
	"eventreg/persistence"
)

// Registry is the subset of registry.Registry the handlers call.
type Registry interface {
	CreateEvent(ctx context.Context, in models.NewEvent) (*models.Event, error)
	Register(ctx context.Context, eventID int64, a models.Attendee) (*models.Registration, error)
	DeleteEvent(ctx context.Context, eventID int64) error
	DeleteRegistration(ctx context.Context, registrationID int64) (bool, error)
	Backup(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, image []byte) error
	Reset(ctx context.Context) error

	ListEvents(ctx context.Context) ([]models.Event, error)
	Event(ctx context.Context, eventID int64) (*models.EventDetail, error)
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	Stats(ctx context.Context) (models.Stats, error)
	Dashboard(ctx context.Context) (*models.Dashboard, error)
}

type Handlers struct {
	Registry Registry
	Logger   *slog.Logger
	// MaxRestoreBytes caps the size of an uploaded backup.
	MaxRestoreBytes int64
	// Location is the zone for event times submitted without an offset.
	Location *time.Location
}

func New(reg Registry, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{Registry: reg, Logger: logger, MaxRestoreBytes: 64 << 20, Location: time.UTC}
}

// SendJSON is a helper for sending JSON responses
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func sendError(w http.ResponseWriter, status int, msg string) {
	SendJSON(w, status, map[string]string{"error": msg})
}

// sendResult writes a successful mutation. A snapshot save failure does not
// undo the mutation, so it is reported as a warning next to the result.
func (h *Handlers) sendResult(w http.ResponseWriter, status int, key string, data any, err error) {
	body := map[string]any{}
	if key != "" {
		body[key] = data
	}
	if err != nil {
		h.Logger.Warn("mutation applied but not persisted", "error", err)
		body["warning"] = "change applied but could not be saved to durable storage: " + err.Error()
	}
	SendJSON(w, status, body)
}

// handleError maps core errors to HTTP status codes.
func (h *Handlers) handleError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		SendJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid input", "fields": validationErr.Fields})
	case errors.Is(err, models.ErrValidation):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, db.ErrCapacityExceeded):
		sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, persistence.ErrRestore):
		sendError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.Logger.Error("request failed", "error", err)
		sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		sendError(w, http.StatusBadRequest, "Missing "+name+" ID")
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		sendError(w, http.StatusBadRequest, "Invalid "+name+" ID format")
		return 0, false
	}
	return id, true
}

// Request DTOs
type CreateEventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DateTime    string `json:"date_time"`
	Location    string `json:"location"`
	Capacity    *int   `json:"capacity"`
}

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// HandleCreateEvent handles POST /events
func (h *Handlers) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	in := models.NewEvent{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
	}
	if req.DateTime != "" {
		dt, err := models.ParseDateTimeIn(req.DateTime, h.Location)
		if err != nil {
			h.handleError(w, err)
			return
		}
		in.DateTime = dt
	}

	evt, err := h.Registry.CreateEvent(r.Context(), in)
	if evt == nil {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusCreated, "event", evt, err)
}

// HandleListEvents handles GET /events
func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Registry.ListEvents(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}

	// Returning an empty array instead of null if no events
	if events == nil {
		events = []models.Event{}
	}
	SendJSON(w, http.StatusOK, events)
}

// HandleGetEvent handles GET /events/{id}
func (h *Handlers) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	detail, err := h.Registry.Event(r.Context(), id)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if detail.Registrations == nil {
		detail.Registrations = []models.Registration{}
	}
	SendJSON(w, http.StatusOK, detail)
}

// HandleDeleteEvent handles DELETE /events/{id}
func (h *Handlers) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	err := h.Registry.DeleteEvent(r.Context(), id)
	if err != nil && !errors.Is(err, persistence.ErrSave) {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusOK, "deleted", id, err)
}

// HandleRegister handles POST /events/{id}/registrations
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "event")
	if !ok {
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	reg, err := h.Registry.Register(r.Context(), eventID, models.Attendee{
		FullName: req.FullName,
		Email:    req.Email,
		Phone:    req.Phone,
	})
	if reg == nil {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusCreated, "registration", reg, err)
}

// HandleListRegistrations handles GET /registrations
func (h *Handlers) HandleListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.Registry.ListRegistrations(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	if regs == nil {
		regs = []models.Registration{}
	}
	SendJSON(w, http.StatusOK, regs)
}

// HandleDeleteRegistration handles DELETE /registrations/{id}
func (h *Handlers) HandleDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "registration")
	if !ok {
		return
	}

	deleted, err := h.Registry.DeleteRegistration(r.Context(), id)
	if err != nil && !errors.Is(err, persistence.ErrSave) {
		h.handleError(w, err)
		return
	}
	h.sendResult(w, http.StatusOK, "deleted", deleted, err)
}

// HandleStats handles GET /stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Registry.Stats(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, stats)
}

// HandleDashboard handles GET /dashboard
func (h *Handlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := h.Registry.Dashboard(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	if dash.Upcoming == nil {
		dash.Upcoming = []models.Event{}
	}
	if dash.Recent == nil {
		dash.Recent = []models.Event{}
	}
	SendJSON(w, http.StatusOK, dash)
}
