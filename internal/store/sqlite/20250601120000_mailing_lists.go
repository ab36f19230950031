package sqlite

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// MailingMigrations builds the mailing list database.
var MailingMigrations = migrate.NewMigrations()

func init() {
	MailingMigrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		if _, err := db.NewCreateTable().Model((*MailingList)(nil)).IfNotExists().Exec(ctx); err != nil {
			return err
		}

		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_email ON mailing_lists(email)",
			"CREATE INDEX IF NOT EXISTS idx_country ON mailing_lists(country)",
			"CREATE INDEX IF NOT EXISTS idx_date_added ON mailing_lists(date_added)",
			"CREATE INDEX IF NOT EXISTS idx_purchases ON mailing_lists(num_purchases)",
			"CREATE INDEX IF NOT EXISTS idx_origin_file ON mailing_lists(origin_file)",
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().Model((*MailingList)(nil)).IfExists().Exec(ctx)
		return err
	})
}
