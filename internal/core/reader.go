package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ReadResult holds the records parsed from one source file.
type ReadResult struct {
	Records        []RawRecord
	Header         []string
	Empty          bool // file had no lines at all
	HeaderMismatch bool
	BlankRows      int
	Warnings       int
}

// ReadRecords parses a decoded CSV stream into RawRecords for src.Kind.
//
// The first row is the header. A header that differs from the canonical
// one is logged and otherwise ignored: fields are taken by position. Rows
// where every cell is blank are dropped, and every surviving row is padded
// or truncated to the canonical width.
func ReadRecords(r io.Reader, src SourceFile, spec DatasetSpec, log *slog.Logger) (*ReadResult, error) {
	if log == nil {
		log = slog.Default()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	res := &ReadResult{}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		res.Empty = true
		res.Warnings++
		log.Warn("empty file skipped", "file", src.Name(), "kind", src.Kind)
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header in %s: %w", src.Name(), err)
	}
	res.Header = header

	if !equalHeaders(header, spec.Header) {
		res.HeaderMismatch = true
		res.Warnings++
		log.Warn("header mismatch, reading columns by position",
			"file", src.Name(),
			"kind", src.Kind,
			"expected", strings.Join(spec.Header, ","),
			"found", strings.Join(header, ","),
		)
	}

	width := spec.Width()
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("invalid csv in %s line %d: %w", src.Name(), line, err)
		}

		if isEmptyRow(row) {
			res.BlankRows++
			continue
		}

		res.Records = append(res.Records, RawRecord{
			Source: src,
			Kind:   src.Kind,
			Line:   line,
			Fields: fitWidth(row, width),
		})
	}

	return res, nil
}

// equalHeaders compares a file header with the canonical one exactly,
// ignoring only surrounding whitespace.
func equalHeaders(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return false
		}
	}
	return true
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fitWidth pads row with empty strings or truncates it to exactly width.
func fitWidth(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// SubscriberFromRaw maps a mailing list RawRecord to its named fields.
func SubscriberFromRaw(rec RawRecord) SubscriberRecord {
	f := fitWidth(rec.Fields, len(MailingHeader))
	return SubscriberRecord{
		Email:        f[colEmail],
		FullName:     f[colFullName],
		FirstName:    f[colFirstName],
		LastName:     f[colLastName],
		DateAdded:    f[colDateAdded],
		Country:      f[colCountry],
		PostalCode:   f[colPostalCode],
		NumPurchases: f[colNumPurchases],
	}
}

// RevenueFromRaw maps a revenue RawRecord to its named fields.
func RevenueFromRaw(rec RawRecord) RevenueRecord {
	f := fitWidth(rec.Fields, len(RevenueHeader))
	return RevenueRecord{
		CatNo:                  f[0],
		UPC:                    f[1],
		ISRC:                   f[2],
		SKU:                    f[3],
		ItemType:               f[4],
		ItemName:               f[5],
		ContainerName:          f[6],
		Package:                f[7],
		ArtistName:             f[8],
		LabelName:              f[9],
		Region:                 f[10],
		Quantity:               f[11],
		Currency:               f[12],
		GrossRevenue:           f[13],
		Shipping:               f[14],
		Taxes:                  f[15],
		BandcampShare:          f[16],
		CollectionSocietyShare: f[17],
		ProcessorFees:          f[18],
		NetRevenue:             f[19],
		URL:                    f[20],
		TransactionDateFrom:    f[21],
		TransactionDateTo:      f[22],
	}
}
