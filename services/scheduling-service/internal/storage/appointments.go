package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/outbox"
)

const appointmentColumns = `
	id::text, tenant_id, professional_id::text, COALESCE(service_id::text, ''), client_name, notes,
	appt_date, start_minute, end_minute, status, created_by, created_at, updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ListAppointmentsForDay returns every appointment of the professional on date, cancelled ones included,
// ordered by start.
func (r *Repository) ListAppointmentsForDay(ctx context.Context, scope tenancy.Scope, professionalID string, date time.Time) ([]model.Appointment, error) {
	return listDay(ctx, r.pool, scope.TenantID, professionalID, date)
}

// AppendAppointment is the compare-and-append step of booking. Inside one transaction it takes an advisory lock
// on (tenant, professional, date), reads that day's appointments, runs check against them and, when check
// returns nil, inserts appt and its booked event. Concurrent appends for the same day therefore run one at a time
// and each check sees every committed booking.
func (r *Repository) AppendAppointment(ctx context.Context, scope tenancy.Scope, appt model.Appointment, check func(existing []model.Appointment) error) (model.Appointment, error) {
	appt.ID = uuid.NewString()
	appt.TenantID = scope.TenantID
	appt.CreatedBy = scope.ActorID
	if appt.Status == "" {
		appt.Status = model.StatusPending
	}

	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM professionals WHERE id = $1 AND tenant_id = $2)
		`, appt.ProfessionalID, scope.TenantID).Scan(&exists); err != nil {
			return notFound(err)
		}
		if !exists {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			dayLockKey(scope.TenantID, appt.ProfessionalID, appt.Date)); err != nil {
			return fmt.Errorf("lock day: %w", err)
		}

		existing, err := listDay(ctx, tx, scope.TenantID, appt.ProfessionalID, appt.Date)
		if err != nil {
			return err
		}
		if err := check(existing); err != nil {
			return err
		}

		var serviceID any
		if appt.ServiceID != "" {
			serviceID = appt.ServiceID
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, tenant_id, professional_id, service_id, client_name, notes, appt_date, start_minute, end_minute, status, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING created_at, updated_at
		`, appt.ID, appt.TenantID, appt.ProfessionalID, serviceID, appt.ClientName, appt.Notes,
			appt.Date, int(appt.Start), int(appt.End), string(appt.Status), appt.CreatedBy,
		).Scan(&appt.CreatedAt, &appt.UpdatedAt)
		if err != nil {
			if IsConflict(err) {
				return ErrOverlap
			}
			return notFound(err)
		}

		evt, err := outbox.NewEvent(scope.TenantID, "appointment", appt.ID, outbox.TypeAppointmentBooked, outbox.AppointmentBooked{
			AppointmentID:  appt.ID,
			TenantID:       appt.TenantID,
			ProfessionalID: appt.ProfessionalID,
			ServiceID:      appt.ServiceID,
			ClientName:     appt.ClientName,
			Date:           appt.Date.Format(availability.DateLayout),
			Start:          appt.Start.String(),
			End:            appt.End.String(),
			Status:         string(appt.Status),
			CreatedBy:      appt.CreatedBy,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// SetAppointmentStatus moves an appointment along its lifecycle and records the change.
func (r *Repository) SetAppointmentStatus(ctx context.Context, scope tenancy.Scope, id string, next model.Status) (model.Appointment, error) {
	var appt model.Appointment
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, id, scope.TenantID)
		var err error
		if appt, err = scanAppointment(row); err != nil {
			return notFound(err)
		}

		prev := appt.Status
		if !prev.CanTransition(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev, next)
		}
		if err := tx.QueryRow(ctx, `
			UPDATE appointments SET status = $3, updated_at = now()
			WHERE id = $1 AND tenant_id = $2
			RETURNING updated_at
		`, id, scope.TenantID, string(next)).Scan(&appt.UpdatedAt); err != nil {
			return err
		}
		appt.Status = next

		evt, err := outbox.NewEvent(scope.TenantID, "appointment", appt.ID, outbox.TypeAppointmentStatusChanged, outbox.AppointmentStatusChanged{
			AppointmentID:  appt.ID,
			TenantID:       appt.TenantID,
			ProfessionalID: appt.ProfessionalID,
			Date:           appt.Date.Format(availability.DateLayout),
			From:           string(prev),
			To:             string(next),
			ChangedBy:      scope.ActorID,
		})
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func listDay(ctx context.Context, q querier, tenantID, professionalID string, date time.Time) ([]model.Appointment, error) {
	rows, err := q.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE tenant_id = $1 AND professional_id = $2 AND appt_date = $3
		ORDER BY start_minute, id
	`, tenantID, professionalID, date)
	if err != nil {
		return nil, notFound(err)
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a          model.Appointment
		start, end int
		status     string
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.ProfessionalID, &a.ServiceID, &a.ClientName, &a.Notes,
		&a.Date, &start, &end, &status, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Start = availability.Clock(start)
	a.End = availability.Clock(end)
	a.Status = model.Status(status)
	return a, nil
}

func dayLockKey(tenantID, professionalID string, date time.Time) string {
	return "appointments:" + tenantID + ":" + professionalID + ":" + date.Format(availability.DateLayout)
}
