package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type slotItem struct {
	Start availability.Clock `json:"start"`
	End   availability.Clock `json:"end"`
}

type slotsResponse struct {
	ProfessionalID      string     `json:"professional_id"`
	Date                string     `json:"date"`
	DurationMinutes     int        `json:"duration_minutes"`
	SlotIntervalMinutes int        `json:"slot_interval_minutes"`
	Slots               []slotItem `json:"slots"`
}

// Slots lists the open slots of a professional on a date. With service_id the slot length is the service
// duration, otherwise the professional's slot interval.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
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

	ctx := r.Context()
	prof, err := h.store.GetProfessional(ctx, scope, q["professional_id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	duration := prof.Schedule.SlotInterval
	if serviceID := r.URL.Query().Get("service_id"); serviceID != "" {
		svc, err := h.store.GetService(ctx, scope, serviceID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		duration = svc.DurationMinutes
	}

	// The cache key is fixed before the appointments are read.
	slots, key, hit := h.cache.Get(ctx, scope.TenantID, prof.ID, date, duration)
	if !hit {
		existing, err := h.store.ListAppointmentsForDay(ctx, scope, prof.ID, date)
		if err != nil {
			h.fail(w, r, err)
			return
		}

		_, span := h.tracer.Start(ctx, "availability.slots", trace.WithAttributes(
			attribute.String("professional.id", prof.ID),
			attribute.String("date", q["date"]),
			attribute.Int("duration_minutes", duration),
			attribute.Int("bookings", len(existing)),
		))
		slots, err = h.engine.SlotsFor(prof.Schedule, date, model.Bookings(existing), duration)
		span.SetAttributes(attribute.Int("slots", len(slots)))
		span.End()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.cache.Put(ctx, key, duration, slots)
	}

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{Start: s, End: s.AddMinutes(duration)})
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{
		ProfessionalID:      prof.ID,
		Date:                q["date"],
		DurationMinutes:     duration,
		SlotIntervalMinutes: prof.Schedule.SlotInterval,
		Slots:               items,
	})
}

type dayResponse struct {
	ProfessionalID string                  `json:"professional_id"`
	Date           string                  `json:"date"`
	Working        bool                    `json:"working"`
	Source         availability.Source     `json:"source,omitempty"`
	Intervals      []availability.Interval `json:"intervals"`
	Breaks         []availability.Interval `json:"breaks"`
}

// Day shows the resolved availability of a date, before bookings are applied.
func (h *SchedulingHandler) Day(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
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

	prof, err := h.store.GetProfessional(r.Context(), scope, q["professional_id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	day, working, err := h.engine.Resolve(prof.Schedule, date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := dayResponse{
		ProfessionalID: prof.ID,
		Date:           q["date"],
		Working:        working,
		Source:         day.Source,
		Intervals:      day.Intervals,
		Breaks:         day.Breaks,
	}
	if resp.Intervals == nil {
		resp.Intervals = []availability.Interval{}
	}
	if resp.Breaks == nil {
		resp.Breaks = []availability.Interval{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
