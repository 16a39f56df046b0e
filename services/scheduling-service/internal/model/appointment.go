package model

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", raw)
}

// CanTransition reports whether an appointment may move from s to next. Cancelled and completed appointments
// are terminal so a released interval is never silently re-occupied.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusCompleted || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

type Appointment struct {
	ID             string
	TenantID       string
	ProfessionalID string
	ServiceID      string
	ClientName     string
	Notes          string
	Date           time.Time
	Start          availability.Clock
	End            availability.Clock
	Status         Status
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (a Appointment) Interval() availability.Interval {
	return availability.Interval{Start: a.Start, End: a.End}
}

// Bookings converts the day's appointments into engine input.
func Bookings(appts []Appointment) []availability.Booking {
	out := make([]availability.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, availability.Booking{
			Interval:  a.Interval(),
			Cancelled: a.Status == StatusCancelled,
		})
	}
	return out
}
