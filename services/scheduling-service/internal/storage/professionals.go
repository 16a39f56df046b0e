package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/outbox"
)

func (r *Repository) CreateProfessional(ctx context.Context, scope tenancy.Scope, p model.Professional) (model.Professional, error) {
	p.ID = uuid.NewString()
	p.TenantID = scope.TenantID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO professionals (id, tenant_id, name, email, specialty, slot_interval_minutes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, p.TenantID, p.Name, p.Email, p.Specialty, p.Schedule.SlotInterval).Scan(&p.CreatedAt)
	if err != nil {
		return model.Professional{}, err
	}
	p.Schedule.Weekly = nil
	p.Schedule.Exceptions = nil
	return p, nil
}

// ListProfessionals returns the tenant's professionals without their rules.
func (r *Repository) ListProfessionals(ctx context.Context, scope tenancy.Scope) ([]model.Professional, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id, name, email, specialty, slot_interval_minutes, created_at
		FROM professionals
		WHERE tenant_id = $1
		ORDER BY name, id
	`, scope.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var p model.Professional
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Specialty, &p.Schedule.SlotInterval, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProfessional loads a professional with weekly rules and date exceptions.
func (r *Repository) GetProfessional(ctx context.Context, scope tenancy.Scope, id string) (model.Professional, error) {
	var p model.Professional
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id, name, email, specialty, slot_interval_minutes, created_at
		FROM professionals
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID).Scan(&p.ID, &p.TenantID, &p.Name, &p.Email, &p.Specialty, &p.Schedule.SlotInterval, &p.CreatedAt)
	if err != nil {
		return model.Professional{}, notFound(err)
	}

	rules, err := r.pool.Query(ctx, `
		SELECT weekday, active, intervals, breaks
		FROM weekly_rules
		WHERE professional_id = $1 AND tenant_id = $2
		ORDER BY weekday
	`, id, scope.TenantID)
	if err != nil {
		return model.Professional{}, err
	}
	for rules.Next() {
		var (
			rule              availability.WeeklyRule
			intervals, breaks []byte
		)
		if err := rules.Scan(&rule.Weekday, &rule.Active, &intervals, &breaks); err != nil {
			rules.Close()
			return model.Professional{}, err
		}
		if rule.Intervals, rule.Breaks, err = decodeDay(intervals, breaks); err != nil {
			rules.Close()
			return model.Professional{}, fmt.Errorf("weekly rule %d: %w", rule.Weekday, err)
		}
		p.Schedule.Weekly = append(p.Schedule.Weekly, rule)
	}
	rules.Close()
	if err := rules.Err(); err != nil {
		return model.Professional{}, err
	}

	excs, err := r.pool.Query(ctx, `
		SELECT exception_date, active, intervals, breaks
		FROM date_exceptions
		WHERE professional_id = $1 AND tenant_id = $2
		ORDER BY exception_date
	`, id, scope.TenantID)
	if err != nil {
		return model.Professional{}, err
	}
	defer excs.Close()
	for excs.Next() {
		var (
			exc               availability.DateException
			date              time.Time
			intervals, breaks []byte
		)
		if err := excs.Scan(&date, &exc.Active, &intervals, &breaks); err != nil {
			return model.Professional{}, err
		}
		exc.Date = date.Format(availability.DateLayout)
		if exc.Intervals, exc.Breaks, err = decodeDay(intervals, breaks); err != nil {
			return model.Professional{}, fmt.Errorf("exception %s: %w", exc.Date, err)
		}
		p.Schedule.Exceptions = append(p.Schedule.Exceptions, exc)
	}
	return p, excs.Err()
}

// PutWeeklyRule replaces the rule of rule.Weekday.
func (r *Repository) PutWeeklyRule(ctx context.Context, scope tenancy.Scope, professionalID string, rule availability.WeeklyRule) error {
	intervals, breaks, err := encodeDay(rule.Intervals, rule.Breaks)
	if err != nil {
		return err
	}
	weekday := rule.Weekday
	return r.scheduleChange(ctx, scope, professionalID, outbox.ScheduleChanged{Change: "weekly_rule", Weekday: &weekday},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_rules (professional_id, tenant_id, weekday, active, intervals, breaks)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (professional_id, weekday)
				DO UPDATE SET active = EXCLUDED.active,
				              intervals = EXCLUDED.intervals,
				              breaks = EXCLUDED.breaks,
				              updated_at = now()
			`, professionalID, scope.TenantID, rule.Weekday, rule.Active, intervals, breaks)
			return err
		})
}

// PutException creates or replaces the exception for exc.Date.
func (r *Repository) PutException(ctx context.Context, scope tenancy.Scope, professionalID string, exc availability.DateException) error {
	date, err := availability.ParseDate(exc.Date)
	if err != nil {
		return err
	}
	intervals, breaks, err := encodeDay(exc.Intervals, exc.Breaks)
	if err != nil {
		return err
	}
	return r.scheduleChange(ctx, scope, professionalID, outbox.ScheduleChanged{Change: "exception_put", Date: exc.Date},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				INSERT INTO date_exceptions (professional_id, tenant_id, exception_date, active, intervals, breaks)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (professional_id, exception_date)
				DO UPDATE SET active = EXCLUDED.active,
				              intervals = EXCLUDED.intervals,
				              breaks = EXCLUDED.breaks,
				              updated_at = now()
			`, professionalID, scope.TenantID, date, exc.Active, intervals, breaks)
			return err
		})
}

func (r *Repository) DeleteException(ctx context.Context, scope tenancy.Scope, professionalID string, date time.Time) error {
	day := date.Format(availability.DateLayout)
	return r.scheduleChange(ctx, scope, professionalID, outbox.ScheduleChanged{Change: "exception_deleted", Date: day},
		func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				DELETE FROM date_exceptions
				WHERE professional_id = $1 AND tenant_id = $2 AND exception_date = $3
			`, professionalID, scope.TenantID, date)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return ErrNotFound
			}
			return nil
		})
}

func (r *Repository) UpdateSlotInterval(ctx context.Context, scope tenancy.Scope, professionalID string, minutes int) error {
	return r.scheduleChange(ctx, scope, professionalID, outbox.ScheduleChanged{Change: "slot_interval"},
		func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, `
				UPDATE professionals SET slot_interval_minutes = $3
				WHERE id = $1 AND tenant_id = $2
			`, professionalID, scope.TenantID, minutes)
			return err
		})
}

// scheduleChange locks the professional row, applies fn and records a schedule_changed event.
// The row lock serializes concurrent edits of one professional's schedule.
func (r *Repository) scheduleChange(ctx context.Context, scope tenancy.Scope, professionalID string, change outbox.ScheduleChanged, fn func(pgx.Tx) error) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `
			SELECT id::text FROM professionals
			WHERE id = $1 AND tenant_id = $2
			FOR UPDATE
		`, professionalID, scope.TenantID).Scan(&id)
		if err != nil {
			return notFound(err)
		}
		if err := fn(tx); err != nil {
			return err
		}

		change.ProfessionalID = id
		change.TenantID = scope.TenantID
		evt, err := outbox.NewEvent(scope.TenantID, "professional", id, outbox.TypeScheduleChanged, change)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
}

func encodeDay(intervals, breaks []availability.Interval) ([]byte, []byte, error) {
	if intervals == nil {
		intervals = []availability.Interval{}
	}
	if breaks == nil {
		breaks = []availability.Interval{}
	}
	iv, err := json.Marshal(intervals)
	if err != nil {
		return nil, nil, err
	}
	br, err := json.Marshal(breaks)
	if err != nil {
		return nil, nil, err
	}
	return iv, br, nil
}

func decodeDay(intervals, breaks []byte) ([]availability.Interval, []availability.Interval, error) {
	var iv, br []availability.Interval
	if len(intervals) > 0 {
		if err := json.Unmarshal(intervals, &iv); err != nil {
			return nil, nil, fmt.Errorf("%w: intervals: %v", availability.ErrInvalidSchedule, err)
		}
	}
	if len(breaks) > 0 {
		if err := json.Unmarshal(breaks, &br); err != nil {
			return nil, nil, fmt.Errorf("%w: breaks: %v", availability.ErrInvalidSchedule, err)
		}
	}
	if len(iv) == 0 {
		iv = nil
	}
	if len(br) == 0 {
		br = nil
	}
	return iv, br, nil
}
