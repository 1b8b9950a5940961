package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"warelay/migrations"
)

// Migrate applies the embedded schema. Every script is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	scripts, err := migrations.All()
	if err != nil {
		return err
	}
	for i, sql := range scripts {
		if _, err := db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
