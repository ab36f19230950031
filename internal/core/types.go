package core

import (
	"path/filepath"
	"time"
)

// DatasetKind identifies one of the two fixed record shapes.
type DatasetKind string

const (
	KindMails   DatasetKind = "mails"
	KindRevenue DatasetKind = "revenue"
)

// ParseKind converts a user-supplied kind ("mails", "revenue", or the
// dashboard aliases "mailing" and "reports") to a DatasetKind.
func ParseKind(s string) (DatasetKind, error) {
	switch s {
	case "mails", "mail", "mailing":
		return KindMails, nil
	case "revenue", "revenues", "reports":
		return KindRevenue, nil
	}
	return "", &UnknownKindError{Kind: s}
}

// SourceFile is one downloaded CSV belonging to a dataset kind.
// The pipeline only ever reads it.
type SourceFile struct {
	Path         string
	Kind         DatasetKind
	DiscoveredAt time.Time
}

// Name returns the base name of the file.
func (f SourceFile) Name() string {
	return filepath.Base(f.Path)
}

// RawRecord is one parsed CSV row aligned positionally with the canonical
// header of its kind. len(Fields) always equals the canonical column count.
type RawRecord struct {
	Source SourceFile
	Kind   DatasetKind
	Line   int
	Fields []string
}

// SubscriberRecord is a mailing list row with named fields.
type SubscriberRecord struct {
	Email        string
	FullName     string
	FirstName    string
	LastName     string
	DateAdded    string
	Country      string
	PostalCode   string
	NumPurchases string
}

// Fields returns the record in canonical column order.
func (r SubscriberRecord) Fields() []string {
	return []string{
		r.Email, r.FullName, r.FirstName, r.LastName,
		r.DateAdded, r.Country, r.PostalCode, r.NumPurchases,
	}
}

// RevenueRecord is a revenue report row with named fields.
type RevenueRecord struct {
	CatNo                  string
	UPC                    string
	ISRC                   string
	SKU                    string
	ItemType               string
	ItemName               string
	ContainerName          string
	Package                string
	ArtistName             string
	LabelName              string
	Region                 string
	Quantity               string
	Currency               string
	GrossRevenue           string
	Shipping               string
	Taxes                  string
	BandcampShare          string
	CollectionSocietyShare string
	ProcessorFees          string
	NetRevenue             string
	URL                    string
	TransactionDateFrom    string
	TransactionDateTo      string
}

// Fields returns the record in canonical column order.
func (r RevenueRecord) Fields() []string {
	return []string{
		r.CatNo, r.UPC, r.ISRC, r.SKU, r.ItemType, r.ItemName, r.ContainerName,
		r.Package, r.ArtistName, r.LabelName, r.Region, r.Quantity, r.Currency,
		r.GrossRevenue, r.Shipping, r.Taxes, r.BandcampShare,
		r.CollectionSocietyShare, r.ProcessorFees, r.NetRevenue, r.URL,
		r.TransactionDateFrom, r.TransactionDateTo,
	}
}

// MergedSubscriber is the single surviving entry for one identity.
type MergedSubscriber struct {
	Identity       string
	Record         SubscriberRecord // winning row, Email replaced by Identity
	Origin         string           // base name of the file the winning row came from
	DateAdded      time.Time
	TotalPurchases int
}

// SubscriberRow is a mailing list row ready for the relational store.
type SubscriberRow struct {
	Email          string
	FullName       string
	FirstName      string
	LastName       string
	DateAdded      string
	Country        string
	PostalCode     string
	NumPurchases   int
	TotalPurchases int
	SourceFile     string
	OriginFile     string
}

// RevenueRow is a revenue row ready for the relational store, carrying the
// run's provenance.
type RevenueRow struct {
	CatNo                  string
	UPC                    string
	ISRC                   string
	SKU                    string
	ItemType               string
	ItemName               string
	ContainerName          string
	Package                string
	ArtistName             string
	LabelName              string
	Region                 string
	Quantity               int
	Currency               string
	GrossRevenue           float64
	Shipping               float64
	Taxes                  float64
	BandcampShare          float64
	CollectionSocietyShare float64
	ProcessorFees          float64
	NetRevenue             float64
	URL                    string
	TransactionDateFrom    string
	TransactionDateTo      string
	DateRangeBegin         string
	DateRangeEnd           string
	SourceFile             string
}

// RunPhase is the pipeline state reported to observers.
type RunPhase string

const (
	PhaseIdle         RunPhase = "idle"
	PhaseDiscovering  RunPhase = "discovering"
	PhaseReading      RunPhase = "reading"
	PhaseMerging      RunPhase = "merging"
	PhaseWritingFlat  RunPhase = "writing_flat"
	PhaseWritingStore RunPhase = "writing_store"
	PhaseReporting    RunPhase = "reporting"
)

// Progress is a point-in-time view of a running consolidation.
type Progress struct {
	RunID   string      `json:"run_id"`
	Kind    DatasetKind `json:"kind"`
	Phase   RunPhase    `json:"phase"`
	File    string      `json:"file,omitempty"`
	FileIdx int         `json:"file_index"` // 1-based while reading
	FileN   int         `json:"file_count"`
	Records int         `json:"records"`
}

// Percent estimates completion for progress bars. Reading dominates, so
// it occupies the 5-80 range.
func (p Progress) Percent() int {
	switch p.Phase {
	case PhaseDiscovering:
		return 2
	case PhaseReading:
		if p.FileN == 0 {
			return 5
		}
		return 5 + (75 * p.FileIdx / p.FileN)
	case PhaseMerging:
		return 82
	case PhaseWritingFlat:
		return 86
	case PhaseWritingStore:
		return 92
	case PhaseReporting:
		return 98
	case PhaseIdle:
		return 100
	}
	return 0
}

// Observer receives phase changes. It is called synchronously from the
// pipeline goroutine and must not block.
type Observer func(Progress)

// RunReport summarizes one consolidation run.
type RunReport struct {
	RunID                  string             `json:"run_id"`
	Kind                   DatasetKind        `json:"kind"`
	FilesDiscovered        int                `json:"files_discovered"`
	FilesProcessed         int                `json:"files_processed"`
	FailedFiles            []string           `json:"failed_files,omitempty"`
	UniqueIdentitiesOrRows int                `json:"unique_identities_or_rows"`
	Totals                 map[string]float64 `json:"totals"`
	OutputFlatPath         string             `json:"output_flat_path,omitempty"`
	OutputStorePath        string             `json:"output_store_path,omitempty"`
	StoreRowsWritten       int                `json:"store_rows_written"`
	RowsSkipped            int                `json:"rows_skipped"`
	Warnings               int                `json:"warnings"`
	NothingToDo            bool               `json:"nothing_to_do"`
	StartedAt              time.Time          `json:"started_at"`
	FinishedAt             time.Time          `json:"finished_at"`
}

// Duration returns how long the run took.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
