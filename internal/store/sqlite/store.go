package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// Rows per INSERT statement, kept well under SQLite's bound-variable limit.
const (
	mailingBatchSize = 500
	revenueBatchSize = 250
)

// Store writes one dataset kind into its own SQLite file.
type Store struct {
	db   *bun.DB
	path string
	log  *slog.Logger
	now  func() time.Time
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the SQLite file at path.
func Open(path string, debug bool, log *slog.Logger) (*Store, error) {
	db, err := NewDB(path, debug)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, path: path, log: log, now: time.Now}, nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *bun.DB { return s.db }

// Location returns the database file path.
func (s *Store) Location() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema applies the kind's migrations. Already-applied migrations
// are skipped, so it is safe to call on every run.
func (s *Store) EnsureSchema(ctx context.Context, kind core.DatasetKind) error {
	var migrations *migrate.Migrations
	switch kind {
	case core.KindMails:
		migrations = MailingMigrations
	case core.KindRevenue:
		migrations = RevenueMigrations
	default:
		return &core.UnknownKindError{Kind: string(kind)}
	}

	migrator := migrate.NewMigrator(s.db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", kind, err)
	}
	if !group.IsZero() {
		s.log.Info("schema migrated", "db", s.path, "kind", kind, "group", group.String())
	}
	return nil
}

// UpsertSubscribers inserts rows, replacing any existing row with the same
// (email, source_file).
func (s *Store) UpsertSubscribers(ctx context.Context, rows []core.SubscriberRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	at := s.now().UTC()
	models := make([]MailingList, len(rows))
	for i, r := range rows {
		models[i] = mailingListFromRow(r, at)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(models); start += mailingBatchSize {
			end := min(start+mailingBatchSize, len(models))
			batch := models[start:end]
			_, err := tx.NewInsert().
				Model(&batch).
				On("CONFLICT (email, source_file) DO UPDATE").
				Set("fullname = EXCLUDED.fullname").
				Set("firstname = EXCLUDED.firstname").
				Set("lastname = EXCLUDED.lastname").
				Set("date_added = EXCLUDED.date_added").
				Set("country = EXCLUDED.country").
				Set("postal_code = EXCLUDED.postal_code").
				Set("num_purchases = EXCLUDED.num_purchases").
				Set("total_purchases = EXCLUDED.total_purchases").
				Set("import_date = EXCLUDED.import_date").
				Set("origin_file = EXCLUDED.origin_file").
				Exec(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("upsert mailing_lists: %w", err)
	}
	return len(models), nil
}

// InsertRevenue appends rows. Every call adds new rows; nothing is
// replaced.
func (s *Store) InsertRevenue(ctx context.Context, rows []core.RevenueRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	at := s.now().UTC()
	models := make([]RevenueReport, len(rows))
	for i, r := range rows {
		models[i] = revenueReportFromRow(r, at)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for start := 0; start < len(models); start += revenueBatchSize {
			end := min(start+revenueBatchSize, len(models))
			batch := models[start:end]
			if _, err := tx.NewInsert().Model(&batch).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("insert revenue_reports: %w", err)
	}
	return len(models), nil
}

// Opener opens the per-kind SQLite file under the run's output directory.
type Opener struct {
	Debug bool
	Log   *slog.Logger
}

// Open implements core.StoreOpener.
func (o Opener) Open(ctx context.Context, spec core.DatasetSpec, cfg core.RunConfig) (core.Store, error) {
	return Open(cfg.StorePath(spec), o.Debug, o.Log)
}
