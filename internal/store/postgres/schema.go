package postgres

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/labelsync/internal/core"
)

var mailingSchema = []string{
	`CREATE TABLE IF NOT EXISTS mailing_lists (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL,
		fullname TEXT NOT NULL DEFAULT '',
		firstname TEXT NOT NULL DEFAULT '',
		lastname TEXT NOT NULL DEFAULT '',
		date_added TEXT NOT NULL DEFAULT '',
		country TEXT NOT NULL DEFAULT '',
		postal_code TEXT NOT NULL DEFAULT '',
		num_purchases INTEGER NOT NULL DEFAULT 0,
		total_purchases INTEGER NOT NULL DEFAULT 0,
		import_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		source_file TEXT NOT NULL,
		origin_file TEXT NOT NULL DEFAULT '',
		UNIQUE (email, source_file)
	)`,
	"CREATE INDEX IF NOT EXISTS idx_email ON mailing_lists(email)",
	"CREATE INDEX IF NOT EXISTS idx_country ON mailing_lists(country)",
	"CREATE INDEX IF NOT EXISTS idx_date_added ON mailing_lists(date_added)",
	"CREATE INDEX IF NOT EXISTS idx_purchases ON mailing_lists(total_purchases)",
	"CREATE INDEX IF NOT EXISTS idx_origin_file ON mailing_lists(origin_file)",
}

var revenueSchema = []string{
	`CREATE TABLE IF NOT EXISTS revenue_reports (
		id BIGSERIAL PRIMARY KEY,
		cat_no TEXT NOT NULL DEFAULT '',
		upc TEXT NOT NULL DEFAULT '',
		isrc TEXT NOT NULL DEFAULT '',
		sku TEXT NOT NULL DEFAULT '',
		item_type TEXT NOT NULL DEFAULT '',
		item_name TEXT NOT NULL DEFAULT '',
		container_name TEXT NOT NULL DEFAULT '',
		package TEXT NOT NULL DEFAULT '',
		artist_name TEXT NOT NULL DEFAULT '',
		label_name TEXT NOT NULL DEFAULT '',
		region TEXT NOT NULL DEFAULT '',
		quantity INTEGER NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT '',
		gross_revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		shipping DOUBLE PRECISION NOT NULL DEFAULT 0,
		taxes DOUBLE PRECISION NOT NULL DEFAULT 0,
		bandcamp_assessed_revenue_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		collection_society_share DOUBLE PRECISION NOT NULL DEFAULT 0,
		payment_processor_fees DOUBLE PRECISION NOT NULL DEFAULT 0,
		net_revenue DOUBLE PRECISION NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		transaction_date_from TEXT NOT NULL DEFAULT '',
		transaction_date_to TEXT NOT NULL DEFAULT '',
		import_date TIMESTAMPTZ NOT NULL DEFAULT now(),
		date_range_begin TEXT NOT NULL DEFAULT '',
		date_range_end TEXT NOT NULL DEFAULT '',
		source_file TEXT NOT NULL DEFAULT ''
	)`,
	"CREATE INDEX IF NOT EXISTS idx_artist_name ON revenue_reports(artist_name)",
	"CREATE INDEX IF NOT EXISTS idx_item_name ON revenue_reports(item_name)",
	"CREATE INDEX IF NOT EXISTS idx_region ON revenue_reports(region)",
	"CREATE INDEX IF NOT EXISTS idx_transaction_dates ON revenue_reports(transaction_date_from, transaction_date_to)",
	"CREATE INDEX IF NOT EXISTS idx_date_range ON revenue_reports(date_range_begin, date_range_end)",
}

// schemaFor returns the DDL statements for kind.
func schemaFor(kind core.DatasetKind) ([]string, error) {
	switch kind {
	case core.KindMails:
		return mailingSchema, nil
	case core.KindRevenue:
		return revenueSchema, nil
	default:
		return nil, &core.UnknownKindError{Kind: string(kind)}
	}
}

// ensureSchema creates the kind's table and indexes if absent.
func ensureSchema(ctx context.Context, db DBTX, kind core.DatasetKind) error {
	stmts, err := schemaFor(kind)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", kind, err)
		}
	}
	return nil
}

// Migrate ensures every registered kind's schema exists.
func Migrate(ctx context.Context, db DBTX) error {
	for _, kind := range core.Kinds() {
		if err := ensureSchema(ctx, db, kind); err != nil {
			return err
		}
	}
	return nil
}
