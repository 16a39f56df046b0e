package handlers

import (
	"time"

	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
)

type professionalResponse struct {
	ID                  string                       `json:"id"`
	Name                string                       `json:"name"`
	Email               string                       `json:"email,omitempty"`
	Specialty           string                       `json:"specialty,omitempty"`
	SlotIntervalMinutes int                          `json:"slot_interval_minutes"`
	WeeklyRules         []availability.WeeklyRule    `json:"weekly_rules,omitempty"`
	Exceptions          []availability.DateException `json:"exceptions,omitempty"`
	CreatedAt           string                       `json:"created_at"`
}

func toProfessional(p model.Professional) professionalResponse {
	return professionalResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Email:               p.Email,
		Specialty:           p.Specialty,
		SlotIntervalMinutes: p.Schedule.SlotInterval,
		WeeklyRules:         p.Schedule.Weekly,
		Exceptions:          p.Schedule.Exceptions,
		CreatedAt:           p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type serviceResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           string `json:"price"`
	CreatedAt       string `json:"created_at"`
}

func toService(s model.Service) serviceResponse {
	return serviceResponse{
		ID:              s.ID,
		Name:            s.Name,
		DurationMinutes: s.DurationMinutes,
		Price:           s.Price,
		CreatedAt:       s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type appointmentResponse struct {
	ID             string             `json:"id"`
	ProfessionalID string             `json:"professional_id"`
	ServiceID      string             `json:"service_id,omitempty"`
	ClientName     string             `json:"client_name"`
	Notes          string             `json:"notes,omitempty"`
	Date           string             `json:"date"`
	Start          availability.Clock `json:"start"`
	End            availability.Clock `json:"end"`
	Status         model.Status       `json:"status"`
	CreatedBy      string             `json:"created_by,omitempty"`
	CreatedAt      string             `json:"created_at"`
	UpdatedAt      string             `json:"updated_at"`
}

func toAppointment(a model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:             a.ID,
		ProfessionalID: a.ProfessionalID,
		ServiceID:      a.ServiceID,
		ClientName:     a.ClientName,
		Notes:          a.Notes,
		Date:           a.Date.Format(availability.DateLayout),
		Start:          a.Start,
		End:            a.End,
		Status:         a.Status,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
