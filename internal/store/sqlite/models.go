package sqlite

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// MailingList is one merged subscriber. (email, source_file) is the upsert
// key: re-running over the same files replaces the row.
type MailingList struct {
	bun.BaseModel `bun:"table:mailing_lists,alias:m"`

	ID             int64     `bun:"id,pk,autoincrement" json:"id"`
	Email          string    `bun:"email,notnull,unique:email_source" json:"email"`
	FullName       string    `bun:"fullname" json:"fullname"`
	FirstName      string    `bun:"firstname" json:"firstname"`
	LastName       string    `bun:"lastname" json:"lastname"`
	DateAdded      string    `bun:"date_added" json:"date_added"`
	Country        string    `bun:"country" json:"country"`
	PostalCode     string    `bun:"postal_code" json:"postal_code"`
	NumPurchases   int       `bun:"num_purchases" json:"num_purchases"`
	TotalPurchases int       `bun:"total_purchases" json:"total_purchases"`
	ImportDate     time.Time `bun:"import_date,notnull" json:"import_date"`
	SourceFile     string    `bun:"source_file,notnull,unique:email_source" json:"source_file"`
	OriginFile     string    `bun:"origin_file" json:"origin_file"`
}

// RevenueReport is one revenue transaction row with run provenance. Rows
// are never deduplicated.
type RevenueReport struct {
	bun.BaseModel `bun:"table:revenue_reports,alias:r"`

	ID                     int64     `bun:"id,pk,autoincrement" json:"id"`
	CatNo                  string    `bun:"cat_no" json:"cat_no"`
	UPC                    string    `bun:"upc" json:"upc"`
	ISRC                   string    `bun:"isrc" json:"isrc"`
	SKU                    string    `bun:"sku" json:"sku"`
	ItemType               string    `bun:"item_type" json:"item_type"`
	ItemName               string    `bun:"item_name" json:"item_name"`
	ContainerName          string    `bun:"container_name" json:"container_name"`
	Package                string    `bun:"package" json:"package"`
	ArtistName             string    `bun:"artist_name" json:"artist_name"`
	LabelName              string    `bun:"label_name" json:"label_name"`
	Region                 string    `bun:"region" json:"region"`
	Quantity               int       `bun:"quantity,type:integer" json:"quantity"`
	Currency               string    `bun:"currency" json:"currency"`
	GrossRevenue           float64   `bun:"gross_revenue,type:real" json:"gross_revenue"`
	Shipping               float64   `bun:"shipping,type:real" json:"shipping"`
	Taxes                  float64   `bun:"taxes,type:real" json:"taxes"`
	BandcampShare          float64   `bun:"bandcamp_assessed_revenue_share,type:real" json:"bandcamp_assessed_revenue_share"`
	CollectionSocietyShare float64   `bun:"collection_society_share,type:real" json:"collection_society_share"`
	ProcessorFees          float64   `bun:"payment_processor_fees,type:real" json:"payment_processor_fees"`
	NetRevenue             float64   `bun:"net_revenue,type:real" json:"net_revenue"`
	URL                    string    `bun:"url" json:"url"`
	TransactionDateFrom    string    `bun:"transaction_date_from" json:"transaction_date_from"`
	TransactionDateTo      string    `bun:"transaction_date_to" json:"transaction_date_to"`
	ImportDate             time.Time `bun:"import_date,notnull" json:"import_date"`
	DateRangeBegin         string    `bun:"date_range_begin" json:"date_range_begin"`
	DateRangeEnd           string    `bun:"date_range_end" json:"date_range_end"`
	SourceFile             string    `bun:"source_file" json:"source_file"`
}

func mailingListFromRow(r core.SubscriberRow, at time.Time) MailingList {
	return MailingList{
		Email:          r.Email,
		FullName:       r.FullName,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		DateAdded:      r.DateAdded,
		Country:        r.Country,
		PostalCode:     r.PostalCode,
		NumPurchases:   r.NumPurchases,
		TotalPurchases: r.TotalPurchases,
		ImportDate:     at,
		SourceFile:     r.SourceFile,
		OriginFile:     r.OriginFile,
	}
}

func (m MailingList) row() core.SubscriberRow {
	return core.SubscriberRow{
		Email:          m.Email,
		FullName:       m.FullName,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		DateAdded:      m.DateAdded,
		Country:        m.Country,
		PostalCode:     m.PostalCode,
		NumPurchases:   m.NumPurchases,
		TotalPurchases: m.TotalPurchases,
		SourceFile:     m.SourceFile,
		OriginFile:     m.OriginFile,
	}
}

func revenueReportFromRow(r core.RevenueRow, at time.Time) RevenueReport {
	return RevenueReport{
		CatNo:                  r.CatNo,
		UPC:                    r.UPC,
		ISRC:                   r.ISRC,
		SKU:                    r.SKU,
		ItemType:               r.ItemType,
		ItemName:               r.ItemName,
		ContainerName:          r.ContainerName,
		Package:                r.Package,
		ArtistName:             r.ArtistName,
		LabelName:              r.LabelName,
		Region:                 r.Region,
		Quantity:               r.Quantity,
		Currency:               r.Currency,
		GrossRevenue:           r.GrossRevenue,
		Shipping:               r.Shipping,
		Taxes:                  r.Taxes,
		BandcampShare:          r.BandcampShare,
		CollectionSocietyShare: r.CollectionSocietyShare,
		ProcessorFees:          r.ProcessorFees,
		NetRevenue:             r.NetRevenue,
		URL:                    r.URL,
		TransactionDateFrom:    r.TransactionDateFrom,
		TransactionDateTo:      r.TransactionDateTo,
		ImportDate:             at,
		DateRangeBegin:         r.DateRangeBegin,
		DateRangeEnd:           r.DateRangeEnd,
		SourceFile:             r.SourceFile,
	}
}

func (r RevenueReport) stored() core.StoredRevenue {
	return core.StoredRevenue{
		RevenueRow: core.RevenueRow{
			CatNo:                  r.CatNo,
			UPC:                    r.UPC,
			ISRC:                   r.ISRC,
			SKU:                    r.SKU,
			ItemType:               r.ItemType,
			ItemName:               r.ItemName,
			ContainerName:          r.ContainerName,
			Package:                r.Package,
			ArtistName:             r.ArtistName,
			LabelName:              r.LabelName,
			Region:                 r.Region,
			Quantity:               r.Quantity,
			Currency:               r.Currency,
			GrossRevenue:           r.GrossRevenue,
			Shipping:               r.Shipping,
			Taxes:                  r.Taxes,
			BandcampShare:          r.BandcampShare,
			CollectionSocietyShare: r.CollectionSocietyShare,
			ProcessorFees:          r.ProcessorFees,
			NetRevenue:             r.NetRevenue,
			URL:                    r.URL,
			TransactionDateFrom:    r.TransactionDateFrom,
			TransactionDateTo:      r.TransactionDateTo,
			DateRangeBegin:         r.DateRangeBegin,
			DateRangeEnd:           r.DateRangeEnd,
			SourceFile:             r.SourceFile,
		},
		ImportDate: r.ImportDate,
	}
}
