package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DatasetSpec declares everything the pipeline needs to know about one
// dataset kind: where its sources live, the canonical header, and how its
// outputs are named.
type DatasetSpec struct {
	Kind  DatasetKind
	Label string

	// SourceSubdir is the directory under the source root holding raw files.
	SourceSubdir string
	// SourcePattern is the glob matched inside SourceSubdir.
	SourcePattern string
	// OutputPrefix marks a file as a prior consolidated output. Files whose
	// base name starts with it are never consumed as sources.
	OutputPrefix string
	// StorePrefix is the base name prefix of the embedded store file.
	StorePrefix string
	// MonthStamped outputs carry the run's YYYY-MM in their file names.
	MonthStamped bool

	// Header is the canonical column list, in order.
	Header []string
	// FlatExcluded lists columns dropped from the flat file but kept in the
	// relational store.
	FlatExcluded []string
}

// Width returns the canonical column count.
func (s DatasetSpec) Width() int {
	return len(s.Header)
}

// FlatHeader returns Header without the FlatExcluded columns.
func (s DatasetSpec) FlatHeader() []string {
	out := make([]string, 0, len(s.Header))
	for _, col := range s.Header {
		if !s.excluded(col) {
			out = append(out, col)
		}
	}
	return out
}

// FlatProject keeps only the flat-file columns of a canonical-width row.
func (s DatasetSpec) FlatProject(fields []string) []string {
	if len(s.FlatExcluded) == 0 {
		return fields
	}
	out := make([]string, 0, len(fields))
	for i, col := range s.Header {
		if i < len(fields) && !s.excluded(col) {
			out = append(out, fields[i])
		}
	}
	return out
}

func (s DatasetSpec) excluded(col string) bool {
	for _, ex := range s.FlatExcluded {
		if ex == col {
			return true
		}
	}
	return false
}

// FlatFileName returns the consolidated flat file name for a run at now.
func (s DatasetSpec) FlatFileName(now time.Time) string {
	if s.MonthStamped {
		return s.OutputPrefix + now.Format("2006-01") + ".csv"
	}
	return s.OutputPrefix + ".csv"
}

// StoreFileName returns the embedded store file name for a run at now.
func (s DatasetSpec) StoreFileName(now time.Time) string {
	if s.MonthStamped {
		return s.StorePrefix + "_" + now.Format("2006-01") + ".db"
	}
	return s.StorePrefix + ".db"
}

// IsOutputName reports whether a base name belongs to a prior consolidated
// output of this kind.
func (s DatasetSpec) IsOutputName(name string) bool {
	return strings.HasPrefix(name, s.OutputPrefix)
}

var (
	registry   = make(map[DatasetKind]DatasetSpec)
	registryMu sync.RWMutex
)

// Register adds a dataset spec to the registry.
// Panics if the kind is already registered.
func Register(spec DatasetSpec) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[spec.Kind]; exists {
		panic(fmt.Sprintf("dataset kind already registered: %s", spec.Kind))
	}
	registry[spec.Kind] = spec
}

// Get returns the spec for a kind.
func Get(kind DatasetKind) (DatasetSpec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	spec, ok := registry[kind]
	return spec, ok
}

// MustGet returns the spec for a kind or an UnknownKindError.
func MustGet(kind DatasetKind) (DatasetSpec, error) {
	spec, ok := Get(kind)
	if !ok {
		return DatasetSpec{}, &UnknownKindError{Kind: string(kind)}
	}
	return spec, nil
}

// All returns every registered spec sorted by kind.
func All() []DatasetSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]DatasetSpec, 0, len(registry))
	for _, spec := range registry {
		result = append(result, spec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Kind < result[j].Kind
	})
	return result
}

// Kinds returns the registered dataset kinds in sorted order.
func Kinds() []DatasetKind {
	specs := All()
	kinds := make([]DatasetKind, len(specs))
	for i, s := range specs {
		kinds[i] = s.Kind
	}
	return kinds
}

// Mailing list column positions.
const (
	colEmail = iota
	colFullName
	colFirstName
	colLastName
	colDateAdded
	colCountry
	colPostalCode
	colNumPurchases
)

// MailingHeader is the canonical mailing list header.
var MailingHeader = []string{
	"email", "fullname", "firstname", "lastname",
	"date added", "country", "postal code", "num purchases",
}

// RevenueHeader is the canonical revenue report header.
var RevenueHeader = []string{
	"Cat no.", "UPC", "ISRC", "SKU", "Item type", "Item name", "Container name",
	"Package", "Artist name", "Label name", "Region", "Quantity", "Currency",
	"Gross revenue", "Shipping", "Taxes", "Bandcamp assessed revenue share",
	"Collection society share", "Payment processor fees", "Net revenue", "URL",
	"Transaction date from", "Transaction date to",
}

func init() {
	Register(DatasetSpec{
		Kind:          KindMails,
		Label:         "Mailing lists",
		SourceSubdir:  "mails",
		SourcePattern: "mailing_list*.csv",
		OutputPrefix:  "consolidated_bandcamp_mailing_list",
		StorePrefix:   "bandcamp_mailing_lists",
		Header:        MailingHeader,
	})
	Register(DatasetSpec{
		Kind:          KindRevenue,
		Label:         "Revenue reports",
		SourceSubdir:  "revenues",
		SourcePattern: "*.csv",
		OutputPrefix:  "consolidated_bandcamp_reports_",
		StorePrefix:   "bandcamp_revenue_reports",
		MonthStamped:  true,
		Header:        RevenueHeader,
		FlatExcluded: []string{
			"UPC", "ISRC", "SKU", "Collection society share",
			"Container name", "URL", "Transaction date from", "Transaction date to",
		},
	})
}
