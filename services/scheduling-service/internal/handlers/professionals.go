package handlers

import (
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
)

type createProfessionalRequest struct {
	Name                string `json:"name"`
	Email               string `json:"email"`
	Specialty           string `json:"specialty"`
	SlotIntervalMinutes int    `json:"slot_interval_minutes"`
}

// Professionals lists the tenant's professionals, returns one with its schedule when ?id= is set (GET),
// or creates one (POST).
func (h *SchedulingHandler) Professionals(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		if id := strings.TrimSpace(r.URL.Query().Get("id")); id != "" {
			p, err := h.store.GetProfessional(ctx, scope, id)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			httpx.WriteJSON(w, http.StatusOK, toProfessional(p))
			return
		}
		list, err := h.store.ListProfessionals(ctx, scope)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		items := make([]professionalResponse, 0, len(list))
		for _, p := range list {
			items = append(items, toProfessional(p))
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"professionals": items})

	case http.MethodPost:
		var req createProfessionalRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing name")
			return
		}
		if req.SlotIntervalMinutes == 0 {
			req.SlotIntervalMinutes = h.cfg.DefaultSlotInterval
		}
		if !validSlotInterval(req.SlotIntervalMinutes) {
			httpx.WriteError(w, http.StatusBadRequest, "slot_interval_minutes must be between 1 and 1440")
			return
		}
		p, err := h.store.CreateProfessional(ctx, scope, model.Professional{
			Name:      req.Name,
			Email:     strings.TrimSpace(req.Email),
			Specialty: strings.TrimSpace(req.Specialty),
			Schedule:  availability.Schedule{SlotInterval: req.SlotIntervalMinutes},
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toProfessional(p))

	default:
		methodNotAllowed(w)
	}
}

type weeklyRuleRequest struct {
	ProfessionalID string `json:"professional_id"`
	availability.WeeklyRule
}

// PutWeeklyRule replaces the rule of one weekday.
func (h *SchedulingHandler) PutWeeklyRule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req weeklyRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing professional_id")
		return
	}
	if err := availability.CheckRule(req.WeeklyRule); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	prof, err := h.store.GetProfessional(ctx, scope, req.ProfessionalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.store.PutWeeklyRule(ctx, scope, prof.ID, req.WeeklyRule); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cache.InvalidateProfessional(ctx, scope.TenantID, prof.ID)
	h.respondProfessional(w, r, scope, prof.ID)
}

type exceptionRequest struct {
	ProfessionalID string `json:"professional_id"`
	availability.DateException
}

// Exceptions creates or replaces a date exception (PUT) or removes one (DELETE ?professional_id=&date=).
func (h *SchedulingHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodPut:
		var req exceptionRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		if strings.TrimSpace(req.ProfessionalID) == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing professional_id")
			return
		}
		if err := availability.CheckException(req.DateException); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		prof, err := h.store.GetProfessional(ctx, scope, req.ProfessionalID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.store.PutException(ctx, scope, prof.ID, req.DateException); err != nil {
			h.fail(w, r, err)
			return
		}
		h.cache.InvalidateProfessional(ctx, scope.TenantID, prof.ID)
		h.respondProfessional(w, r, scope, prof.ID)

	case http.MethodDelete:
		q, ok := requiredQuery(w, r, "professional_id", "date")
		if !ok {
			return
		}
		date, ok := parseDate(w, q["date"])
		if !ok {
			return
		}
		if err := h.store.DeleteException(ctx, scope, q["professional_id"], date); err != nil {
			h.fail(w, r, err)
			return
		}
		h.cache.InvalidateProfessional(ctx, scope.TenantID, q["professional_id"])
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

type slotIntervalRequest struct {
	ProfessionalID      string `json:"professional_id"`
	SlotIntervalMinutes int    `json:"slot_interval_minutes"`
}

func (h *SchedulingHandler) PutSlotInterval(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req slotIntervalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing professional_id")
		return
	}
	if !validSlotInterval(req.SlotIntervalMinutes) {
		httpx.WriteError(w, http.StatusBadRequest, "slot_interval_minutes must be between 1 and 1440")
		return
	}

	ctx := r.Context()
	if err := h.store.UpdateSlotInterval(ctx, scope, req.ProfessionalID, req.SlotIntervalMinutes); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cache.InvalidateProfessional(ctx, scope.TenantID, req.ProfessionalID)
	h.respondProfessional(w, r, scope, req.ProfessionalID)
}

// respondProfessional answers a schedule write with the stored professional.
func (h *SchedulingHandler) respondProfessional(w http.ResponseWriter, r *http.Request, scope tenancy.Scope, id string) {
	p, err := h.store.GetProfessional(r.Context(), scope, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProfessional(p))
}

func validSlotInterval(minutes int) bool {
	return minutes > 0 && minutes <= availability.MinutesPerDay
}
