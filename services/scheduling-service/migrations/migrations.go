// Package migrations embeds the scheduling schema and applies it with sql-migrate.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/md-rashed-zaman/cronos/libs/db"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed *.sql
var files embed.FS

// Source returns the embedded migrations in apply order.
func Source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: files, Root: "."}
}

// Apply runs every pending Up migration and returns how many were applied. Applied ids are recorded in
// sql-migrate's bookkeeping table, and each file runs in its own transaction.
func Apply(ctx context.Context, pool *db.Pool) (int, error) {
	// The handle borrows connections from pool, which stays owned by the caller.
	sqlDB := stdlib.OpenDBFromPool(pool.Pool)
	n, err := migrate.ExecContext(ctx, sqlDB, "postgres", Source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}
