package core

// convert.go turns raw CSV strings into the typed values the merger and the
// relational store need.
//
// Two policies apply:
//   - Merge-time parsing (date added, purchase counts) never fails. Bad
//     dates become "now" and bad counts become zero.
//   - Store-time coercion (quantity, money columns) is strict. A bad value
//     yields a *CoercionError and the caller skips that row.

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateAddedLayout is the mailing list export's date format, e.g.
// "Jan 31 2025 09:11 PM UTC". Day and hour may be unpadded.
const DateAddedLayout = "Jan 2 2006 3:04 PM UTC"

// numericRegex validates that a string is a plain decimal number.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseDateAdded parses a mailing list date. The second return value is
// false when s does not match DateAddedLayout. The meridiem and zone are
// matched case-insensitively.
func ParseDateAdded(s string) (time.Time, bool) {
	t, err := time.Parse(DateAddedLayout, strings.ToUpper(strings.TrimSpace(s)))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseCount parses an integer count, treating empty or malformed input as
// zero.
func ParseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// ParseInt parses a required integer column. Empty means zero.
func ParseInt(column, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, &CoercionError{Column: column, Value: s, Err: err}
	}
	return n, nil
}

// ParseAmount parses a money column. Empty means zero.
func ParseAmount(column, s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !numericRegex.MatchString(s) {
		return 0, &CoercionError{Column: column, Value: s}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &CoercionError{Column: column, Value: s, Err: err}
	}
	return f, nil
}

// ToSubscriberRow converts a merged subscriber to its relational form.
// NumPurchases is the winning row's own count; TotalPurchases is the merged
// sum.
func ToSubscriberRow(m MergedSubscriber, sourceList string) (SubscriberRow, error) {
	num, err := ParseInt("num purchases", m.Record.NumPurchases)
	if err != nil {
		return SubscriberRow{}, err
	}
	return SubscriberRow{
		Email:          m.Identity,
		FullName:       m.Record.FullName,
		FirstName:      m.Record.FirstName,
		LastName:       m.Record.LastName,
		DateAdded:      m.Record.DateAdded,
		Country:        m.Record.Country,
		PostalCode:     m.Record.PostalCode,
		NumPurchases:   num,
		TotalPurchases: m.TotalPurchases,
		SourceFile:     sourceList,
		OriginFile:     m.Origin,
	}, nil
}

// ToRevenueRow converts a revenue record to its relational form, stamping
// the run's declared date range and the originating file name.
func ToRevenueRow(rec RevenueRecord, cfg RunConfig, sourceFile string) (RevenueRow, error) {
	row := RevenueRow{
		CatNo:               rec.CatNo,
		UPC:                 rec.UPC,
		ISRC:                rec.ISRC,
		SKU:                 rec.SKU,
		ItemType:            rec.ItemType,
		ItemName:            rec.ItemName,
		ContainerName:       rec.ContainerName,
		Package:             rec.Package,
		ArtistName:          rec.ArtistName,
		LabelName:           rec.LabelName,
		Region:              rec.Region,
		Currency:            rec.Currency,
		URL:                 rec.URL,
		TransactionDateFrom: rec.TransactionDateFrom,
		TransactionDateTo:   rec.TransactionDateTo,
		DateRangeBegin:      cfg.DateBegin,
		DateRangeEnd:        cfg.DateEnd,
		SourceFile:          sourceFile,
	}

	var err error
	if row.Quantity, err = ParseInt("Quantity", rec.Quantity); err != nil {
		return RevenueRow{}, err
	}

	amounts := []struct {
		column string
		raw    string
		dst    *float64
	}{
		{"Gross revenue", rec.GrossRevenue, &row.GrossRevenue},
		{"Shipping", rec.Shipping, &row.Shipping},
		{"Taxes", rec.Taxes, &row.Taxes},
		{"Bandcamp assessed revenue share", rec.BandcampShare, &row.BandcampShare},
		{"Collection society share", rec.CollectionSocietyShare, &row.CollectionSocietyShare},
		{"Payment processor fees", rec.ProcessorFees, &row.ProcessorFees},
		{"Net revenue", rec.NetRevenue, &row.NetRevenue},
	}
	for _, a := range amounts {
		if *a.dst, err = ParseAmount(a.column, a.raw); err != nil {
			return RevenueRow{}, err
		}
	}

	return row, nil
}

// SourceList joins the base names of files, sorted, with ", ". It is the
// second half of the mailing list upsert key, so it must not depend on
// discovery order.
func SourceList(files []SourceFile) string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f.Path)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
