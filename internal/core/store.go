package core

import (
	"context"
	"strings"
	"time"
)

// Store is the relational sink for one dataset kind. Implementations must
// make EnsureSchema idempotent, key subscriber upserts on
// (email, source_file), and never deduplicate revenue rows.
type Store interface {
	// Location describes where rows land (a file path or a database name).
	Location() string
	EnsureSchema(ctx context.Context, kind DatasetKind) error
	UpsertSubscribers(ctx context.Context, rows []SubscriberRow) (int, error)
	InsertRevenue(ctx context.Context, rows []RevenueRow) (int, error)
	Close() error
}

// StoreOpener opens the Store a run writes to.
type StoreOpener interface {
	Open(ctx context.Context, spec DatasetSpec, cfg RunConfig) (Store, error)
}

// StoreOpenerFunc adapts a function to StoreOpener.
type StoreOpenerFunc func(ctx context.Context, spec DatasetSpec, cfg RunConfig) (Store, error)

// Open calls f.
func (f StoreOpenerFunc) Open(ctx context.Context, spec DatasetSpec, cfg RunConfig) (Store, error) {
	return f(ctx, spec, cfg)
}

// Catalog answers the dashboard's read-only questions about stored data.
type Catalog interface {
	SubscriberSummary(ctx context.Context) (*SubscriberSummary, error)
	ListSubscribers(ctx context.Context, f SubscriberFilter) (*Page[SubscriberRow], error)
	ListRevenue(ctx context.Context, f RevenueFilter) (*Page[StoredRevenue], error)
	Artists(ctx context.Context) ([]string, error)
	ArtistRevenue(ctx context.Context, artist string) (*ArtistRevenue, error)
	ArtistItems(ctx context.Context, artist string) ([]ItemRevenue, error)
	ArtistMailing(ctx context.Context, artist string) (*ArtistMailing, error)
	Albums(ctx context.Context) ([]ItemRevenue, error)
}

// Page is one page of a listing.
type Page[T any] struct {
	Rows     []T   `json:"rows"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// TotalPages returns the page count for the listing.
func (p *Page[T]) TotalPages() int {
	if p.PageSize <= 0 {
		return 1
	}
	n := int((p.Total + int64(p.PageSize) - 1) / int64(p.PageSize))
	if n == 0 {
		return 1
	}
	return n
}

// Paging is shared by listing filters.
type Paging struct {
	Page     int
	PageSize int
}

// Normalize clamps paging to sensible bounds.
func (p Paging) Normalize() Paging {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 50
	}
	if p.PageSize > 500 {
		p.PageSize = 500
	}
	return p
}

// Offset returns the row offset of the page.
func (p Paging) Offset() int {
	return (p.Page - 1) * p.PageSize
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsPattern returns a LIKE pattern matching s literally anywhere in a
// value. Wildcards in s are escaped with a backslash.
func ContainsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

// SubscriberFilter narrows a subscriber listing.
type SubscriberFilter struct {
	Paging
	Country string
	Search  string // substring of email or full name
}

// RevenueFilter narrows a revenue listing.
type RevenueFilter struct {
	Paging
	Artist string
	Region string
}

// SubscriberSummary is the headline view of the mailing list table.
type SubscriberSummary struct {
	Rows           int64          `json:"rows"`
	TotalPurchases int64          `json:"total_purchases"`
	TopCountries   []CountryCount `json:"top_countries"`
	LastImport     *time.Time     `json:"last_import,omitempty"`
}

// CountryCount is a subscriber count per country.
type CountryCount struct {
	Country     string `json:"country" bun:"country"`
	Subscribers int64  `json:"subscribers" bun:"subscribers"`
}

// StoredRevenue is a revenue row as read back, with its import timestamp.
type StoredRevenue struct {
	RevenueRow
	ImportDate time.Time `json:"import_date"`
}

// ArtistRevenue aggregates one artist's revenue rows.
type ArtistRevenue struct {
	Artist           string  `json:"artist" bun:"artist"`
	Transactions     int64   `json:"transactions" bun:"transactions"`
	GrossRevenue     float64 `json:"gross_revenue" bun:"gross_revenue"`
	NetRevenue       float64 `json:"net_revenue" bun:"net_revenue"`
	Quantity         int64   `json:"quantity" bun:"quantity"`
	UniqueItems      int64   `json:"unique_items" bun:"unique_items"`
	FirstTransaction string  `json:"first_transaction" bun:"first_transaction"`
	LastTransaction  string  `json:"last_transaction" bun:"last_transaction"`
	AvgTransaction   float64 `json:"avg_transaction" bun:"avg_transaction"`
}

// ItemRevenue aggregates revenue per item (album, track, merch).
type ItemRevenue struct {
	Artist       string  `json:"artist" bun:"artist_name"`
	ItemName     string  `json:"item_name" bun:"item_name"`
	ItemType     string  `json:"item_type" bun:"item_type"`
	Quantity     int64   `json:"quantity" bun:"quantity"`
	GrossRevenue float64 `json:"gross_revenue" bun:"gross_revenue"`
	NetRevenue   float64 `json:"net_revenue" bun:"net_revenue"`
	Transactions int64   `json:"transactions" bun:"transactions"`
	FirstSale    string  `json:"first_sale" bun:"first_sale"`
	LastSale     string  `json:"last_sale" bun:"last_sale"`
}

// ArtistMailing aggregates the subscribers attributed to one artist's file.
type ArtistMailing struct {
	Subscribers    int64 `json:"subscribers" bun:"subscribers"`
	TotalPurchases int64 `json:"total_purchases" bun:"total_purchases"`
	Countries      int64 `json:"countries" bun:"countries"`
}

// ArtistSourceFile returns the mailing list file name the fetcher writes
// for an artist subdomain.
func ArtistSourceFile(artist string) string {
	return "mailing_list-" + artist + ".csv"
}

// ArtistFromSourceFile reverses ArtistSourceFile. ok is false for names
// that do not follow the pattern.
func ArtistFromSourceFile(name string) (artist string, ok bool) {
	rest, found := strings.CutPrefix(name, "mailing_list-")
	if !found {
		return "", false
	}
	artist, found = strings.CutSuffix(rest, ".csv")
	if !found || artist == "" {
		return "", false
	}
	return artist, true
}
