package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	otelx "github.com/md-rashed-zaman/cronos/libs/otel"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/trace"
)

// Store is the tenant-scoped persistence the handlers need. *storage.Repository implements it.
type Store interface {
	CreateProfessional(ctx context.Context, scope tenancy.Scope, p model.Professional) (model.Professional, error)
	ListProfessionals(ctx context.Context, scope tenancy.Scope) ([]model.Professional, error)
	GetProfessional(ctx context.Context, scope tenancy.Scope, id string) (model.Professional, error)
	PutWeeklyRule(ctx context.Context, scope tenancy.Scope, professionalID string, rule availability.WeeklyRule) error
	PutException(ctx context.Context, scope tenancy.Scope, professionalID string, exc availability.DateException) error
	DeleteException(ctx context.Context, scope tenancy.Scope, professionalID string, date time.Time) error
	UpdateSlotInterval(ctx context.Context, scope tenancy.Scope, professionalID string, minutes int) error

	CreateService(ctx context.Context, scope tenancy.Scope, svc model.Service) (model.Service, error)
	ListServices(ctx context.Context, scope tenancy.Scope) ([]model.Service, error)
	GetService(ctx context.Context, scope tenancy.Scope, id string) (model.Service, error)

	ListAppointmentsForDay(ctx context.Context, scope tenancy.Scope, professionalID string, date time.Time) ([]model.Appointment, error)
	AppendAppointment(ctx context.Context, scope tenancy.Scope, appt model.Appointment, check func(existing []model.Appointment) error) (model.Appointment, error)
	SetAppointmentStatus(ctx context.Context, scope tenancy.Scope, id string, next model.Status) (model.Appointment, error)
}

// SlotCache is implemented by *slotcache.Cache. Lookups miss on any cache failure. Put takes the entry key
// Get returned, so slots computed from a read that predates an invalidation are never served.
type SlotCache interface {
	Get(ctx context.Context, tenantID, professionalID string, date time.Time, duration int) ([]availability.Clock, string, bool)
	Put(ctx context.Context, key string, duration int, slots []availability.Clock)
	InvalidateProfessional(ctx context.Context, tenantID, professionalID string)
	InvalidateDay(ctx context.Context, tenantID, professionalID string, date time.Time)
}

type Config struct {
	// DefaultSlotInterval applies to professionals created without an explicit slot interval.
	DefaultSlotInterval int
}

type SchedulingHandler struct {
	store  Store
	engine *availability.Engine
	cache  SlotCache
	logger *slog.Logger
	cfg    Config
	tracer trace.Tracer
}

func NewSchedulingHandler(store Store, engine *availability.Engine, cache SlotCache, logger *slog.Logger, cfg Config) *SchedulingHandler {
	if cfg.DefaultSlotInterval <= 0 {
		cfg.DefaultSlotInterval = 60
	}
	return &SchedulingHandler{
		store:  store,
		engine: engine,
		cache:  cache,
		logger: logger,
		cfg:    cfg,
		tracer: otelx.Tracer("cronos/scheduling"),
	}
}

// Register mounts every API route on mux.
func (h *SchedulingHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/slots", h.Slots)
	mux.HandleFunc("/api/v1/appointments/validate", h.Validate)
	mux.HandleFunc("/api/v1/appointments/status", h.SetStatus)
	mux.HandleFunc("/api/v1/appointments", h.Appointments)
	mux.HandleFunc("/api/v1/professionals", h.Professionals)
	mux.HandleFunc("/api/v1/professionals/day", h.Day)
	mux.HandleFunc("/api/v1/professionals/weekly-rules", h.PutWeeklyRule)
	mux.HandleFunc("/api/v1/professionals/exceptions", h.Exceptions)
	mux.HandleFunc("/api/v1/professionals/slot-interval", h.PutSlotInterval)
	mux.HandleFunc("/api/v1/services", h.Services)
}

// rejection carries a validator outcome out of the store's compare-and-append callback.
type rejection struct {
	outcome availability.Outcome
}

func (r *rejection) Error() string {
	return "booking rejected: " + string(r.outcome)
}

const (
	reasonDoubleBooked      = string(availability.DoubleBooked)
	reasonInvalidTransition = "INVALID_TRANSITION"
)

// fail maps an error to the API's status codes. Unknown errors are dependency failures.
func (h *SchedulingHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var rej *rejection
	switch {
	case errors.As(err, &rej):
		httpx.WriteReason(w, http.StatusConflict, string(rej.outcome), "requested interval is not bookable")
	case storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case storage.IsConflict(err):
		httpx.WriteReason(w, http.StatusConflict, reasonDoubleBooked, "requested interval is already booked")
	case errors.Is(err, storage.ErrInvalidTransition):
		httpx.WriteReason(w, http.StatusConflict, reasonInvalidTransition, err.Error())
	case errors.Is(err, availability.ErrInvalidCandidate):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, availability.ErrInvalidSchedule):
		h.logger.Error("stored schedule is invalid", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "stored schedule is invalid")
	default:
		h.logger.Error("store operation failed", "err", err, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusServiceUnavailable, "storage unavailable")
	}
}

func (h *SchedulingHandler) scope(w http.ResponseWriter, r *http.Request) (tenancy.Scope, bool) {
	s, err := tenancy.FromContext(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "missing tenant")
		return tenancy.Scope{}, false
	}
	return s, true
}

func methodNotAllowed(w http.ResponseWriter) {
	httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func requiredQuery(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, bool) {
	out := make(map[string]string, len(names))
	for _, name := range names {
		v := strings.TrimSpace(r.URL.Query().Get(name))
		if v == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing "+name)
			return nil, false
		}
		out[name] = v
	}
	return out, true
}

func parseDate(w http.ResponseWriter, raw string) (time.Time, bool) {
	d, err := availability.ParseDate(raw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}
