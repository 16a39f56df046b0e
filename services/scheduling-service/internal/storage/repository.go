package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/cronos/libs/db"
	"github.com/md-rashed-zaman/cronos/services/scheduling-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned when the exclusion constraint rejects an appointment that slipped past validation.
	ErrOverlap = errors.New("appointment overlaps an active appointment")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository is the tenant-scoped store. Every query filters by the scope's tenant id.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

func IsConflict(err error) bool {
	if errors.Is(err, ErrOverlap) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

// isForeignKeyViolation reports a reference to a row that does not exist, e.g. an unknown service id.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isInvalidUUID(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}

// notFound folds driver errors meaning "no such row" into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) || isInvalidUUID(err) || isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}
