package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type candidateRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	Date           string `json:"date"`
	Start          string `json:"start"`
	// End may be omitted: it then follows from the service duration, or the slot interval without a service.
	End string `json:"end"`
}

type bookRequest struct {
	candidateRequest
	ClientName string `json:"client_name"`
	Notes      string `json:"notes"`
}

type validateResponse struct {
	Outcome availability.Outcome `json:"outcome"`
	Valid   bool                 `json:"valid"`
	Start   availability.Clock   `json:"start"`
	End     availability.Clock   `json:"end"`
}

// candidate works out the proposed interval of a request against the professional's configuration.
func (h *SchedulingHandler) candidate(ctx context.Context, scope tenancy.Scope, req candidateRequest, prof model.Professional) (availability.Interval, error) {
	start, err := availability.ParseClock(strings.TrimSpace(req.Start))
	if err != nil {
		return availability.Interval{}, fmt.Errorf("%w: start: %v", availability.ErrInvalidCandidate, err)
	}

	duration := prof.Schedule.SlotInterval
	if req.ServiceID != "" {
		svc, err := h.store.GetService(ctx, scope, req.ServiceID)
		if err != nil {
			return availability.Interval{}, err
		}
		duration = svc.DurationMinutes
	}
	iv := availability.Interval{Start: start, End: start.AddMinutes(duration)}

	if raw := strings.TrimSpace(req.End); raw != "" {
		end, err := availability.ParseClock(raw)
		if err != nil {
			return availability.Interval{}, fmt.Errorf("%w: end: %v", availability.ErrInvalidCandidate, err)
		}
		if req.ServiceID != "" && end != iv.End {
			return availability.Interval{}, fmt.Errorf("%w: end %s does not match service duration (%s)", availability.ErrInvalidCandidate, end, iv.End)
		}
		iv.End = end
	}
	if !iv.Valid() {
		return availability.Interval{}, fmt.Errorf("%w: %s", availability.ErrInvalidCandidate, iv)
	}
	return iv, nil
}

func (h *SchedulingHandler) validate(ctx context.Context, prof model.Professional, date time.Time, candidate availability.Interval, existing []model.Appointment) (availability.Outcome, error) {
	_, span := h.tracer.Start(ctx, "availability.validate", trace.WithAttributes(
		attribute.String("professional.id", prof.ID),
		attribute.String("date", date.Format(availability.DateLayout)),
		attribute.String("candidate", candidate.String()),
	))
	defer span.End()
	outcome, err := h.engine.Validate(prof.Schedule, date, candidate, model.Bookings(existing))
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	return outcome, err
}

// Validate is a dry run of booking. It always answers 200 with the outcome; nothing is persisted.
func (h *SchedulingHandler) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req candidateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	date, ok := checkCandidateFields(w, req)
	if !ok {
		return
	}

	ctx := r.Context()
	prof, err := h.store.GetProfessional(ctx, scope, req.ProfessionalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	candidate, err := h.candidate(ctx, scope, req, prof)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	existing, err := h.store.ListAppointmentsForDay(ctx, scope, prof.ID, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	outcome, err := h.validate(ctx, prof, date, candidate, existing)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, validateResponse{
		Outcome: outcome,
		Valid:   !outcome.Rejected(),
		Start:   candidate.Start,
		End:     candidate.End,
	})
}

// Appointments lists a day's appointments (GET) or books one (POST).
func (h *SchedulingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.book(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *SchedulingHandler) listAppointments(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	q, ok := requiredQuery(w, r, "professional_id", "date")
	if !ok {
		return
	}
	date, ok := parseDate(w, q["date"])
	if !ok {
		return
	}
	appts, err := h.store.ListAppointmentsForDay(r.Context(), scope, q["professional_id"], date)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items := make([]appointmentResponse, 0, len(appts))
	for _, a := range appts {
		items = append(items, toAppointment(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// book validates and persists in one store transaction, so two concurrent requests for overlapping intervals
// cannot both succeed.
func (h *SchedulingHandler) book(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.ClientName = strings.TrimSpace(req.ClientName)
	if req.ClientName == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing client_name")
		return
	}
	date, ok := checkCandidateFields(w, req.candidateRequest)
	if !ok {
		return
	}

	ctx := r.Context()
	prof, err := h.store.GetProfessional(ctx, scope, req.ProfessionalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	candidate, err := h.candidate(ctx, scope, req.candidateRequest, prof)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	appt, err := h.store.AppendAppointment(ctx, scope, model.Appointment{
		ProfessionalID: prof.ID,
		ServiceID:      req.ServiceID,
		ClientName:     req.ClientName,
		Notes:          strings.TrimSpace(req.Notes),
		Date:           date,
		Start:          candidate.Start,
		End:            candidate.End,
		Status:         model.StatusPending,
	}, func(existing []model.Appointment) error {
		outcome, err := h.validate(ctx, prof, date, candidate, existing)
		if err != nil {
			return err
		}
		if outcome.Rejected() {
			return &rejection{outcome: outcome}
		}
		return nil
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cache.InvalidateDay(ctx, scope.TenantID, prof.ID, date)
	h.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"tenant_id", scope.TenantID,
		"professional_id", prof.ID,
		"date", req.Date,
		"interval", candidate.String(),
	)
	httpx.WriteJSON(w, http.StatusCreated, toAppointment(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// SetStatus confirms, completes or cancels an appointment.
func (h *SchedulingHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AppointmentID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing appointment_id")
		return
	}
	next, err := model.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	appt, err := h.store.SetAppointmentStatus(ctx, scope, req.AppointmentID, next)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.cache.InvalidateDay(ctx, scope.TenantID, appt.ProfessionalID, appt.Date)
	httpx.WriteJSON(w, http.StatusOK, toAppointment(appt))
}

func checkCandidateFields(w http.ResponseWriter, req candidateRequest) (time.Time, bool) {
	switch {
	case strings.TrimSpace(req.ProfessionalID) == "":
		httpx.WriteError(w, http.StatusBadRequest, "missing professional_id")
		return time.Time{}, false
	case strings.TrimSpace(req.Start) == "":
		httpx.WriteError(w, http.StatusBadRequest, "missing start")
		return time.Time{}, false
	}
	return parseDate(w, req.Date)
}
