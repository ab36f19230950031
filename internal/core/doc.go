// Package core consolidates per-artist Bandcamp exports.
//
// It knows two dataset kinds, mailing lists and revenue reports, each
// declared once as a [DatasetSpec] in the registry. A [Pipeline] run for a
// kind moves through these phases:
//
//  1. Discover source files under <source>/<subdir>, skipping prior outputs
//  2. Decode each file with the first encoding that accepts it
//     (utf-8-sig, utf-8, latin-1, windows-1252)
//  3. Parse rows positionally against the canonical header
//  4. Merge mailing list rows by email; keep revenue rows as-is
//  5. Write the flat CSV atomically
//  6. Write the relational store through a [Store]
//
// # Merge rule
//
// For each email the field values come from the earliest-dated row, while
// the purchase count is summed over all rows. Unparseable dates are
// replaced by the run clock so they lose every comparison.
//
// # Failure handling
//
// Unreadable or undecodable files are skipped and listed in
// [RunReport.FailedFiles]. Rows with bad numbers are kept out of the store
// and counted in [RunReport.RowsSkipped]. Only output failures abort a run.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]:
//
//   - DB001-DB006: store errors
//   - FILE001-FILE006: file and archive errors
//   - VAL001-VAL002: numbers and dates
//   - RUN001-RUN005: job control
//   - FETCH001-FETCH003: downloads
//   - RATE001: request throttling
package core
