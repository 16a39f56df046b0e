package outbox

import (
	"encoding/json"
	"fmt"
)

// Event types; the Kafka topic of each event equals its type.
const (
	TypeAppointmentBooked        = "scheduling.appointment.booked.v1"
	TypeAppointmentStatusChanged = "scheduling.appointment.status_changed.v1"
	TypeScheduleChanged          = "scheduling.professional.schedule_changed.v1"
)

// Event is the envelope written to the outbox table in the same transaction as the change it describes.
type Event struct {
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload into an envelope.
func NewEvent(tenantID, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}

type AppointmentBooked struct {
	AppointmentID  string `json:"appointment_id"`
	TenantID       string `json:"tenant_id"`
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id,omitempty"`
	ClientName     string `json:"client_name"`
	Date           string `json:"date"`
	Start          string `json:"start"`
	End            string `json:"end"`
	Status         string `json:"status"`
	CreatedBy      string `json:"created_by,omitempty"`
}

type AppointmentStatusChanged struct {
	AppointmentID  string `json:"appointment_id"`
	TenantID       string `json:"tenant_id"`
	ProfessionalID string `json:"professional_id"`
	Date           string `json:"date"`
	From           string `json:"from"`
	To             string `json:"to"`
	ChangedBy      string `json:"changed_by,omitempty"`
}

type ScheduleChanged struct {
	ProfessionalID string `json:"professional_id"`
	TenantID       string `json:"tenant_id"`
	// Change is one of weekly_rule, exception_put, exception_deleted, slot_interval.
	Change string `json:"change"`
	// Weekday or Date identifies the changed entry when relevant.
	Weekday *int   `json:"weekday,omitempty"`
	Date    string `json:"date,omitempty"`
}
