package sqlite

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// RevenueMigrations builds a monthly revenue database.
var RevenueMigrations = migrate.NewMigrations()

func init() {
	RevenueMigrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().Model((*RevenueReport)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}

		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_artist_name ON revenue_reports(artist_name)",
			"CREATE INDEX IF NOT EXISTS idx_item_name ON revenue_reports(item_name)",
			"CREATE INDEX IF NOT EXISTS idx_region ON revenue_reports(region)",
			"CREATE INDEX IF NOT EXISTS idx_transaction_dates ON revenue_reports(transaction_date_from, transaction_date_to)",
			"CREATE INDEX IF NOT EXISTS idx_date_range ON revenue_reports(date_range_begin, date_range_end)",
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().Model((*RevenueReport)(nil)).IfExists().Exec(ctx)
		return err
	})
}
