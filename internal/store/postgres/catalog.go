package postgres

import (
	"context"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// Catalog answers dashboard queries from the shared database.
type Catalog struct {
	db DBTX
}

var _ core.Catalog = (*Catalog)(nil)

// NewCatalog returns a catalog over db. Call Migrate first so that both
// tables exist.
func NewCatalog(db DBTX) *Catalog {
	return &Catalog{db: db}
}

// SubscriberSummary returns row and purchase totals plus the top countries.
func (c *Catalog) SubscriberSummary(ctx context.Context) (*core.SubscriberSummary, error) {
	sum := &core.SubscriberSummary{TopCountries: []core.CountryCount{}}

	var last *time.Time
	err := queryRow(ctx, c.db,
		psql.Select("COUNT(*)", "COALESCE(SUM(total_purchases), 0)", "MAX(import_date)").
			From("mailing_lists"),
		&sum.Rows, &sum.TotalPurchases, &last)
	if err != nil {
		return nil, err
	}
	sum.LastImport = last

	err = query(ctx, c.db, topCountriesStmt(), func(rows pgx.Rows) error {
		var cc core.CountryCount
		if err := rows.Scan(&cc.Country, &cc.Subscribers); err != nil {
			return err
		}
		sum.TopCountries = append(sum.TopCountries, cc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func topCountriesStmt() sq.SelectBuilder {
	return psql.Select("country", "COUNT(*) AS subscribers").
		From("mailing_lists").
		Where(sq.NotEq{"country": ""}).
		GroupBy("country").
		OrderBy("subscribers DESC", "country").
		Limit(10)
}

// subscriberWhere turns a filter into a predicate shared by the count and
// page queries.
func subscriberWhere(f core.SubscriberFilter) sq.And {
	where := sq.And{}
	if f.Country != "" {
		where = append(where, sq.Eq{"country": f.Country})
	}
	if f.Search != "" {
		pattern := core.ContainsPattern(f.Search)
		where = append(where, sq.Or{
			sq.ILike{"email": pattern},
			sq.ILike{"fullname": pattern},
		})
	}
	return where
}

// ListSubscribers pages through mailing list rows, newest import first.
func (c *Catalog) ListSubscribers(ctx context.Context, f core.SubscriberFilter) (*core.Page[core.SubscriberRow], error) {
	f.Paging = f.Paging.Normalize()
	page := &core.Page[core.SubscriberRow]{Rows: []core.SubscriberRow{}, Page: f.Page, PageSize: f.PageSize}
	where := subscriberWhere(f)

	if err := queryRow(ctx, c.db, psql.Select("COUNT(*)").From("mailing_lists").Where(where), &page.Total); err != nil {
		return nil, err
	}

	stmt := psql.Select(
		"email", "fullname", "firstname", "lastname", "date_added", "country",
		"postal_code", "num_purchases", "total_purchases", "source_file", "origin_file",
	).
		From("mailing_lists").
		Where(where).
		OrderBy("import_date DESC", "email").
		Limit(uint64(f.PageSize)).
		Offset(uint64(f.Offset()))

	err := query(ctx, c.db, stmt, func(rows pgx.Rows) error {
		var r core.SubscriberRow
		err := rows.Scan(&r.Email, &r.FullName, &r.FirstName, &r.LastName, &r.DateAdded, &r.Country,
			&r.PostalCode, &r.NumPurchases, &r.TotalPurchases, &r.SourceFile, &r.OriginFile)
		if err != nil {
			return err
		}
		page.Rows = append(page.Rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func revenueWhere(f core.RevenueFilter) sq.Eq {
	where := sq.Eq{}
	if f.Artist != "" {
		where["artist_name"] = f.Artist
	}
	if f.Region != "" {
		where["region"] = f.Region
	}
	return where
}

// ListRevenue pages through revenue rows, newest import first.
func (c *Catalog) ListRevenue(ctx context.Context, f core.RevenueFilter) (*core.Page[core.StoredRevenue], error) {
	f.Paging = f.Paging.Normalize()
	page := &core.Page[core.StoredRevenue]{Rows: []core.StoredRevenue{}, Page: f.Page, PageSize: f.PageSize}
	where := revenueWhere(f)

	if err := queryRow(ctx, c.db, psql.Select("COUNT(*)").From("revenue_reports").Where(where), &page.Total); err != nil {
		return nil, err
	}

	stmt := psql.Select(revenueColumns...).
		From("revenue_reports").
		Where(where).
		OrderBy("import_date DESC", "artist_name", "item_name").
		Limit(uint64(f.PageSize)).
		Offset(uint64(f.Offset()))

	err := query(ctx, c.db, stmt, func(rows pgx.Rows) error {
		var s core.StoredRevenue
		r := &s.RevenueRow
		err := rows.Scan(
			&r.CatNo, &r.UPC, &r.ISRC, &r.SKU, &r.ItemType, &r.ItemName, &r.ContainerName,
			&r.Package, &r.ArtistName, &r.LabelName, &r.Region, &r.Quantity, &r.Currency,
			&r.GrossRevenue, &r.Shipping, &r.Taxes, &r.BandcampShare,
			&r.CollectionSocietyShare, &r.ProcessorFees, &r.NetRevenue, &r.URL,
			&r.TransactionDateFrom, &r.TransactionDateTo, &s.ImportDate,
			&r.DateRangeBegin, &r.DateRangeEnd, &r.SourceFile,
		)
		if err != nil {
			return err
		}
		page.Rows = append(page.Rows, s)
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
	collect := func(rows pgx.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		if artist, ok := core.ArtistFromSourceFile(name); ok {
			name = artist
		}
		set[name] = struct{}{}
		return nil
	}

	revenue := psql.Select("DISTINCT artist_name").From("revenue_reports").Where(sq.NotEq{"artist_name": ""})
	if err := query(ctx, c.db, revenue, collect); err != nil {
		return nil, err
	}
	origins := psql.Select("DISTINCT origin_file").From("mailing_lists").Where(sq.Like{"origin_file": "mailing_list-%.csv"})
	if err := query(ctx, c.db, origins, collect); err != nil {
		return nil, err
	}

	artists := make([]string, 0, len(set))
	for a := range set {
		artists = append(artists, a)
	}
	sort.Strings(artists)
	return artists, nil
}

// ArtistRevenue aggregates one artist's revenue rows.
func (c *Catalog) ArtistRevenue(ctx context.Context, artist string) (*core.ArtistRevenue, error) {
	stats := &core.ArtistRevenue{Artist: artist}
	stmt := psql.Select(
		"COUNT(*)",
		"COALESCE(SUM(gross_revenue), 0)",
		"COALESCE(SUM(net_revenue), 0)",
		"COALESCE(SUM(quantity), 0)",
		"COUNT(DISTINCT item_name)",
		"COALESCE(MIN(transaction_date_from), '')",
		"COALESCE(MAX(transaction_date_to), '')",
		"COALESCE(AVG(gross_revenue), 0)",
	).
		From("revenue_reports").
		Where(sq.Eq{"artist_name": artist})

	err := queryRow(ctx, c.db, stmt,
		&stats.Transactions, &stats.GrossRevenue, &stats.NetRevenue, &stats.Quantity,
		&stats.UniqueItems, &stats.FirstTransaction, &stats.LastTransaction, &stats.AvgTransaction)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ArtistItems aggregates one artist's revenue per item, best sellers first.
func (c *Catalog) ArtistItems(ctx context.Context, artist string) ([]core.ItemRevenue, error) {
	return c.items(ctx, itemsStmt(artist))
}

// Albums aggregates revenue per item across all artists.
func (c *Catalog) Albums(ctx context.Context) ([]core.ItemRevenue, error) {
	return c.items(ctx, itemsStmt(""))
}

func itemsStmt(artist string) sq.SelectBuilder {
	stmt := psql.Select(
		"artist_name",
		"item_name",
		"item_type",
		"COALESCE(SUM(quantity), 0)",
		"COALESCE(SUM(gross_revenue), 0)",
		"COALESCE(SUM(net_revenue), 0) AS net",
		"COUNT(*)",
		"COALESCE(MIN(transaction_date_from), '')",
		"COALESCE(MAX(transaction_date_to), '')",
	).
		From("revenue_reports").
		GroupBy("artist_name", "item_name", "item_type").
		OrderBy("net DESC", "item_name")
	if artist != "" {
		stmt = stmt.Where(sq.Eq{"artist_name": artist})
	}
	return stmt
}

func (c *Catalog) items(ctx context.Context, stmt sq.SelectBuilder) ([]core.ItemRevenue, error) {
	items := []core.ItemRevenue{}
	err := query(ctx, c.db, stmt, func(rows pgx.Rows) error {
		var it core.ItemRevenue
		err := rows.Scan(&it.Artist, &it.ItemName, &it.ItemType, &it.Quantity,
			&it.GrossRevenue, &it.NetRevenue, &it.Transactions, &it.FirstSale, &it.LastSale)
		if err != nil {
			return err
		}
		items = append(items, it)
		return nil
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
	stmt := psql.Select(
		"COUNT(DISTINCT email)",
		"COALESCE(SUM(total_purchases), 0)",
		"COUNT(DISTINCT country)",
	).
		From("mailing_lists").
		Where(sq.Eq{"origin_file": core.ArtistSourceFile(artist)})

	if err := queryRow(ctx, c.db, stmt, &stats.Subscribers, &stats.TotalPurchases, &stats.Countries); err != nil {
		return nil, err
	}
	return stats, nil
}
