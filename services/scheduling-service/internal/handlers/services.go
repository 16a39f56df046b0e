package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/cronos/libs/httpx"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
)

type createServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
}

// Services lists (GET) or creates (POST) the tenant's bookable services.
func (h *SchedulingHandler) Services(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		list, err := h.store.ListServices(ctx, scope)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		items := make([]serviceResponse, 0, len(list))
		for _, s := range list {
			items = append(items, toService(s))
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"services": items})

	case http.MethodPost:
		var req createServiceRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpx.WriteError(w, http.StatusBadRequest, "missing name")
			return
		}
		if !validSlotInterval(req.DurationMinutes) {
			httpx.WriteError(w, http.StatusBadRequest, "duration_minutes must be between 1 and 1440")
			return
		}
		req.Price = strings.TrimSpace(req.Price)
		if req.Price != "" {
			if f, err := strconv.ParseFloat(req.Price, 64); err != nil || f < 0 {
				httpx.WriteError(w, http.StatusBadRequest, "price must be a non-negative decimal")
				return
			}
		}
		svc, err := h.store.CreateService(ctx, scope, model.Service{
			Name:            req.Name,
			DurationMinutes: req.DurationMinutes,
			Price:           req.Price,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, toService(svc))

	default:
		methodNotAllowed(w)
	}
}
