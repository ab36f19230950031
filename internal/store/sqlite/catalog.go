package sqlite

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// Catalog answers dashboard queries from the SQLite files in an output
// directory: the mailing list database and the most recent monthly revenue
// database. A missing file reads as an empty dataset.
type Catalog struct {
	dir   string
	debug bool
	log   *slog.Logger
}

var _ core.Catalog = (*Catalog)(nil)

// NewCatalog returns a catalog over dir.
func NewCatalog(dir string, debug bool, log *slog.Logger) *Catalog {
	if log == nil {
		log = slog.Default()
	}
	return &Catalog{dir: dir, debug: debug, log: log}
}

// MailingPath returns the mailing list database path.
func (c *Catalog) MailingPath() string {
	spec, _ := core.Get(core.KindMails)
	return core.SanitizePath(filepath.Join(c.dir, spec.StoreFileName(time.Now())))
}

// RevenuePath returns the newest monthly revenue database, or "" when none
// exists.
func (c *Catalog) RevenuePath() string {
	spec, _ := core.Get(core.KindRevenue)
	matches, err := filepath.Glob(filepath.Join(c.dir, spec.StorePrefix+"_*.db"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	// YYYY-MM stamps sort lexically.
	sort.Strings(matches)
	return matches[len(matches)-1]
}

// withDB opens path read-side and runs fn. ok is false when the file does
// not exist yet.
func (c *Catalog) withDB(path string, fn func(db *bun.DB) error) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	db, err := NewDB(path, c.debug)
	if err != nil {
		return false, err
	}
	defer db.Close()
	return true, fn(db)
}

// SubscriberSummary returns row and purchase totals plus the top countries.
func (c *Catalog) SubscriberSummary(ctx context.Context) (*core.SubscriberSummary, error) {
	sum := &core.SubscriberSummary{TopCountries: []core.CountryCount{}}
	_, err := c.withDB(c.MailingPath(), func(db *bun.DB) error {
		var lastImport string
		err := db.NewSelect().
			Model((*MailingList)(nil)).
			ColumnExpr("COUNT(*)").
			ColumnExpr("COALESCE(SUM(m.total_purchases), 0)").
			ColumnExpr("COALESCE(MAX(m.import_date), '')").
			Scan(ctx, &sum.Rows, &sum.TotalPurchases, &lastImport)
		if err != nil {
			return err
		}
		if t, ok := parseStoredTime(lastImport); ok {
			sum.LastImport = &t
		}

		return db.NewSelect().
			Model((*MailingList)(nil)).
			ColumnExpr("m.country AS country").
			ColumnExpr("COUNT(*) AS subscribers").
			Where("m.country <> ''").
			Group("m.country").
			OrderExpr("subscribers DESC, country").
			Limit(10).
			Scan(ctx, &sum.TopCountries)
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// ListSubscribers pages through mailing list rows, newest import first.
func (c *Catalog) ListSubscribers(ctx context.Context, f core.SubscriberFilter) (*core.Page[core.SubscriberRow], error) {
	f.Paging = f.Paging.Normalize()
	page := &core.Page[core.SubscriberRow]{Rows: []core.SubscriberRow{}, Page: f.Page, PageSize: f.PageSize}

	_, err := c.withDB(c.MailingPath(), func(db *bun.DB) error {
		var models []MailingList
		q := db.NewSelect().Model(&models)
		if f.Country != "" {
			q = q.Where("m.country = ?", f.Country)
		}
		if f.Search != "" {
			pattern := core.ContainsPattern(strings.ToLower(f.Search))
			q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				return q.Where(`LOWER(m.email) LIKE ? ESCAPE '\'`, pattern).
					WhereOr(`LOWER(m.fullname) LIKE ? ESCAPE '\'`, pattern)
			})
		}
		count, err := q.
			OrderExpr("m.import_date DESC, m.email").
			Limit(f.PageSize).
			Offset(f.Offset()).
			ScanAndCount(ctx)
		if err != nil {
			return err
		}
		page.Total = int64(count)
		for _, m := range models {
			page.Rows = append(page.Rows, m.row())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// ListRevenue pages through revenue rows, newest import first.
func (c *Catalog) ListRevenue(ctx context.Context, f core.RevenueFilter) (*core.Page[core.StoredRevenue], error) {
	f.Paging = f.Paging.Normalize()
	page := &core.Page[core.StoredRevenue]{Rows: []core.StoredRevenue{}, Page: f.Page, PageSize: f.PageSize}

	_, err := c.withDB(c.RevenuePath(), func(db *bun.DB) error {
		var models []RevenueReport
		q := db.NewSelect().Model(&models)
		if f.Artist != "" {
			q = q.Where("r.artist_name = ?", f.Artist)
		}
		if f.Region != "" {
			q = q.Where("r.region = ?", f.Region)
		}
		count, err := q.
			OrderExpr("r.import_date DESC, r.artist_name, r.item_name").
			Limit(f.PageSize).
			Offset(f.Offset()).
			ScanAndCount(ctx)
		if err != nil {
			return err
		}
		page.Total = int64(count)
		for _, m := range models {
			page.Rows = append(page.Rows, m.stored())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Artists returns every artist name seen in revenue rows or implied by a
// mailing list origin file, sorted.
func (c *Catalog) Artists(ctx context.Context) ([]string, error) {
	set := make(map[string]struct{})

	_, err := c.withDB(c.RevenuePath(), func(db *bun.DB) error {
		var names []string
		err := db.NewSelect().
			Model((*RevenueReport)(nil)).
			ColumnExpr("DISTINCT r.artist_name").
			Where("r.artist_name <> ''").
			Scan(ctx, &names)
		for _, n := range names {
			set[n] = struct{}{}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	_, err = c.withDB(c.MailingPath(), func(db *bun.DB) error {
		var origins []string
		err := db.NewSelect().
			Model((*MailingList)(nil)).
			ColumnExpr("DISTINCT m.origin_file").
			Where("m.origin_file LIKE 'mailing_list-%.csv'").
			Scan(ctx, &origins)
		for _, o := range origins {
			if name := artistFromOrigin(o); name != "" {
				set[name] = struct{}{}
			}
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	artists := make([]string, 0, len(set))
	for a := range set {
		artists = append(artists, a)
	}
	sort.Strings(artists)
	return artists, nil
}

// artistFromOrigin maps a fetched mailing list file such as
// "mailing_list-luna.csv" to its artist subdomain, or "" for other names.
func artistFromOrigin(origin string) string {
	artist, ok := core.ArtistFromSourceFile(filepath.Base(origin))
	if !ok {
		return ""
	}
	return artist
}

// ArtistRevenue aggregates one artist's revenue rows. An artist without
// rows yields a zero summary.
func (c *Catalog) ArtistRevenue(ctx context.Context, artist string) (*core.ArtistRevenue, error) {
	stats := &core.ArtistRevenue{Artist: artist}
	_, err := c.withDB(c.RevenuePath(), func(db *bun.DB) error {
		return db.NewSelect().
			Model((*RevenueReport)(nil)).
			ColumnExpr("? AS artist", artist).
			ColumnExpr("COUNT(*) AS transactions").
			ColumnExpr("COALESCE(SUM(r.gross_revenue), 0) AS gross_revenue").
			ColumnExpr("COALESCE(SUM(r.net_revenue), 0) AS net_revenue").
			ColumnExpr("COALESCE(SUM(r.quantity), 0) AS quantity").
			ColumnExpr("COUNT(DISTINCT r.item_name) AS unique_items").
			ColumnExpr("COALESCE(MIN(r.transaction_date_from), '') AS first_transaction").
			ColumnExpr("COALESCE(MAX(r.transaction_date_to), '') AS last_transaction").
			ColumnExpr("COALESCE(AVG(r.gross_revenue), 0) AS avg_transaction").
			Where("r.artist_name = ?", artist).
			Scan(ctx, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ArtistItems aggregates one artist's revenue per item, best sellers first.
func (c *Catalog) ArtistItems(ctx context.Context, artist string) ([]core.ItemRevenue, error) {
	return c.items(ctx, artist)
}

// Albums aggregates revenue per item across all artists.
func (c *Catalog) Albums(ctx context.Context) ([]core.ItemRevenue, error) {
	return c.items(ctx, "")
}

func (c *Catalog) items(ctx context.Context, artist string) ([]core.ItemRevenue, error) {
	items := []core.ItemRevenue{}
	_, err := c.withDB(c.RevenuePath(), func(db *bun.DB) error {
		q := db.NewSelect().
			Model((*RevenueReport)(nil)).
			ColumnExpr("r.artist_name AS artist_name").
			ColumnExpr("r.item_name AS item_name").
			ColumnExpr("r.item_type AS item_type").
			ColumnExpr("COALESCE(SUM(r.quantity), 0) AS quantity").
			ColumnExpr("COALESCE(SUM(r.gross_revenue), 0) AS gross_revenue").
			ColumnExpr("COALESCE(SUM(r.net_revenue), 0) AS net_revenue").
			ColumnExpr("COUNT(*) AS transactions").
			ColumnExpr("COALESCE(MIN(r.transaction_date_from), '') AS first_sale").
			ColumnExpr("COALESCE(MAX(r.transaction_date_to), '') AS last_sale").
			Group("r.artist_name", "r.item_name", "r.item_type").
			OrderExpr("net_revenue DESC, item_name")
		if artist != "" {
			q = q.Where("r.artist_name = ?", artist)
		}
		return q.Scan(ctx, &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ArtistMailing aggregates subscribers whose winning row came from the
// artist's mailing list file.
func (c *Catalog) ArtistMailing(ctx context.Context, artist string) (*core.ArtistMailing, error) {
	stats := &core.ArtistMailing{}
	_, err := c.withDB(c.MailingPath(), func(db *bun.DB) error {
		return db.NewSelect().
			Model((*MailingList)(nil)).
			ColumnExpr("COUNT(DISTINCT m.email) AS subscribers").
			ColumnExpr("COALESCE(SUM(m.total_purchases), 0) AS total_purchases").
			ColumnExpr("COUNT(DISTINCT m.country) AS countries").
			Where("m.origin_file = ?", core.ArtistSourceFile(artist)).
			Scan(ctx, stats)
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// parseStoredTime reads the text form bun uses for time columns in SQLite.
func parseStoredTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		time.RFC3339Nano,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
