package core

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IdentityMerger folds mailing list records into one entry per email.
//
// For each identity the field values come from the earliest-dated row seen,
// while the purchase total is the sum over every row for that identity.
// A row whose date cannot be parsed is dated "now" so it never beats a
// well-formed date.
type IdentityMerger struct {
	now     func() time.Time
	log     *slog.Logger
	entries map[string]*MergedSubscriber

	skippedEmpty int
	badDates     int
}

// NewIdentityMerger creates an empty merger. now supplies the substitute
// date for unparseable values.
func NewIdentityMerger(now func() time.Time, log *slog.Logger) *IdentityMerger {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &IdentityMerger{
		now:     now,
		log:     log,
		entries: make(map[string]*MergedSubscriber),
	}
}

// Identity returns the dedup key for an email: trimmed and lower-cased.
func Identity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Add folds one record into the merge map.
func (m *IdentityMerger) Add(rec RawRecord) {
	sub := SubscriberFromRaw(rec)

	id := Identity(sub.Email)
	if id == "" {
		m.skippedEmpty++
		return
	}

	date, ok := ParseDateAdded(sub.DateAdded)
	if !ok {
		date = m.now()
		m.badDates++
		m.log.Warn("could not parse date added, using current time",
			"file", rec.Source.Name(),
			"row", rec.Line,
			"email", id,
			"value", sub.DateAdded,
		)
	}

	count := ParseCount(sub.NumPurchases)

	existing, seen := m.entries[id]
	if !seen {
		m.entries[id] = &MergedSubscriber{
			Identity:       id,
			Record:         sub,
			Origin:         rec.Source.Name(),
			DateAdded:      date,
			TotalPurchases: count,
		}
		return
	}

	existing.TotalPurchases += count
	if date.Before(existing.DateAdded) {
		existing.Record = sub
		existing.Origin = rec.Source.Name()
		existing.DateAdded = date
	}
}

// AddAll folds a batch of records.
func (m *IdentityMerger) AddAll(recs []RawRecord) {
	for _, r := range recs {
		m.Add(r)
	}
}

// Len returns the number of unique identities.
func (m *IdentityMerger) Len() int {
	return len(m.entries)
}

// TotalPurchases returns the purchase sum across all identities.
func (m *IdentityMerger) TotalPurchases() int {
	total := 0
	for _, e := range m.entries {
		total += e.TotalPurchases
	}
	return total
}

// SkippedEmpty returns how many records had no identity.
func (m *IdentityMerger) SkippedEmpty() int {
	return m.skippedEmpty
}

// BadDates returns how many records had an unparseable date.
func (m *IdentityMerger) BadDates() int {
	return m.badDates
}

// Result returns the merged entries ordered by ascending date added, ties
// broken by identity. The winning record's email is replaced by the
// identity.
func (m *IdentityMerger) Result() []MergedSubscriber {
	out := make([]MergedSubscriber, 0, len(m.entries))
	for _, e := range m.entries {
		merged := *e
		merged.Record.Email = e.Identity
		out = append(out, merged)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateAdded.Equal(out[j].DateAdded) {
			return out[i].DateAdded.Before(out[j].DateAdded)
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

// FlatRow renders a merged entry as a flat file row: canonical columns with
// the identity in the email column and the merged total in the purchases
// column.
func (s MergedSubscriber) FlatRow() []string {
	rec := s.Record
	rec.Email = s.Identity
	rec.NumPurchases = strconv.Itoa(s.TotalPurchases)
	return rec.Fields()
}
