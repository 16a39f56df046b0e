package model

import (
	"time"

	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
)

type Professional struct {
	ID        string
	TenantID  string
	Name      string
	Email     string
	Specialty string
	Schedule  availability.Schedule
	CreatedAt time.Time
}

// Service is a bookable offering; its duration decides the length of an appointment.
type Service struct {
	ID              string
	TenantID        string
	Name            string
	DurationMinutes int
	Price           string
	CreatedAt       time.Time
}
