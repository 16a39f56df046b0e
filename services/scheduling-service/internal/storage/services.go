package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/cronos/libs/tenancy"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/model"
)

func (r *Repository) CreateService(ctx context.Context, scope tenancy.Scope, svc model.Service) (model.Service, error) {
	svc.ID = uuid.NewString()
	svc.TenantID = scope.TenantID
	if svc.Price == "" {
		svc.Price = "0"
	}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (id, tenant_id, name, duration_minutes, price)
		VALUES ($1, $2, $3, $4, $5::numeric)
		RETURNING price::text, created_at
	`, svc.ID, svc.TenantID, svc.Name, svc.DurationMinutes, svc.Price).Scan(&svc.Price, &svc.CreatedAt)
	if err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (r *Repository) ListServices(ctx context.Context, scope tenancy.Scope) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, tenant_id, name, duration_minutes, price::text, created_at
		FROM services
		WHERE tenant_id = $1
		ORDER BY name, id
	`, scope.TenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.Price, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) GetService(ctx context.Context, scope tenancy.Scope, id string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, tenant_id, name, duration_minutes, price::text, created_at
		FROM services
		WHERE id = $1 AND tenant_id = $2
	`, id, scope.TenantID).Scan(&s.ID, &s.TenantID, &s.Name, &s.DurationMinutes, &s.Price, &s.CreatedAt)
	if err != nil {
		return model.Service{}, notFound(err)
	}
	return s, nil
}
