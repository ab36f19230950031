package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// Rows per INSERT statement. Postgres allows 65535 bind parameters.
const (
	mailingBatchSize = 1000
	revenueBatchSize = 500
)

var mailingColumns = []string{
	"email", "fullname", "firstname", "lastname", "date_added", "country",
	"postal_code", "num_purchases", "total_purchases", "import_date",
	"source_file", "origin_file",
}

var revenueColumns = []string{
	"cat_no", "upc", "isrc", "sku", "item_type", "item_name", "container_name",
	"package", "artist_name", "label_name", "region", "quantity", "currency",
	"gross_revenue", "shipping", "taxes", "bandcamp_assessed_revenue_share",
	"collection_society_share", "payment_processor_fees", "net_revenue", "url",
	"transaction_date_from", "transaction_date_to", "import_date",
	"date_range_begin", "date_range_end", "source_file",
}

// upsertSuffix replaces every non-key column of an existing row.
const upsertSuffix = `ON CONFLICT (email, source_file) DO UPDATE SET
	fullname = EXCLUDED.fullname,
	firstname = EXCLUDED.firstname,
	lastname = EXCLUDED.lastname,
	date_added = EXCLUDED.date_added,
	country = EXCLUDED.country,
	postal_code = EXCLUDED.postal_code,
	num_purchases = EXCLUDED.num_purchases,
	total_purchases = EXCLUDED.total_purchases,
	import_date = EXCLUDED.import_date,
	origin_file = EXCLUDED.origin_file`

// Store writes datasets into one shared database. Both kinds live side by
// side; revenue runs are told apart by import_date.
type Store struct {
	pool *pgxpool.Pool
	log  *slog.Logger
	now  func() time.Time
}

var _ core.Store = (*Store)(nil)

// New wraps an open pool. Closing the Store leaves the pool open.
func New(pool *pgxpool.Pool, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{pool: pool, log: log, now: time.Now}
}

// Location returns the database name.
func (s *Store) Location() string {
	return "postgres:" + s.pool.Config().ConnConfig.Database
}

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error { return nil }

// EnsureSchema creates the kind's table and indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context, kind core.DatasetKind) error {
	if err := ensureSchema(ctx, s.pool, kind); err != nil {
		return err
	}
	s.log.Debug("schema ensured", "db", s.Location(), "kind", kind)
	return nil
}

// UpsertSubscribers inserts rows, replacing any existing row with the same
// (email, source_file). All batches commit together.
func (s *Store) UpsertSubscribers(ctx context.Context, rows []core.SubscriberRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	at := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	for start := 0; start < len(rows); start += mailingBatchSize {
		end := min(start+mailingBatchSize, len(rows))
		if _, err := exec(ctx, tx, upsertSubscribersStmt(rows[start:end], at)); err != nil {
			return 0, fmt.Errorf("upsert mailing_lists: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(rows), nil
}

// InsertRevenue appends rows. Nothing is replaced.
func (s *Store) InsertRevenue(ctx context.Context, rows []core.RevenueRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	at := s.now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	for start := 0; start < len(rows); start += revenueBatchSize {
		end := min(start+revenueBatchSize, len(rows))
		if _, err := exec(ctx, tx, insertRevenueStmt(rows[start:end], at)); err != nil {
			return 0, fmt.Errorf("insert revenue_reports: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(rows), nil
}

func upsertSubscribersStmt(rows []core.SubscriberRow, at time.Time) sq.InsertBuilder {
	b := psql.Insert("mailing_lists").Columns(mailingColumns...)
	for _, r := range rows {
		b = b.Values(
			r.Email, r.FullName, r.FirstName, r.LastName, r.DateAdded, r.Country,
			r.PostalCode, r.NumPurchases, r.TotalPurchases, at,
			r.SourceFile, r.OriginFile,
		)
	}
	return b.Suffix(upsertSuffix)
}

func insertRevenueStmt(rows []core.RevenueRow, at time.Time) sq.InsertBuilder {
	b := psql.Insert("revenue_reports").Columns(revenueColumns...)
	for _, r := range rows {
		b = b.Values(
			r.CatNo, r.UPC, r.ISRC, r.SKU, r.ItemType, r.ItemName, r.ContainerName,
			r.Package, r.ArtistName, r.LabelName, r.Region, r.Quantity, r.Currency,
			r.GrossRevenue, r.Shipping, r.Taxes, r.BandcampShare,
			r.CollectionSocietyShare, r.ProcessorFees, r.NetRevenue, r.URL,
			r.TransactionDateFrom, r.TransactionDateTo, at,
			r.DateRangeBegin, r.DateRangeEnd, r.SourceFile,
		)
	}
	return b
}

// Opener hands every run the same pool-backed Store.
type Opener struct {
	Pool *pgxpool.Pool
	Log  *slog.Logger
}

// Open implements core.StoreOpener.
func (o Opener) Open(ctx context.Context, spec core.DatasetSpec, cfg core.RunConfig) (core.Store, error) {
	return New(o.Pool, o.Log), nil
}
