// Package report renders a one-page PDF summary next to each consolidated
// flat file.
package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/JonMunkholm/labelsync/internal/core"
)

const topCountries = 5

// Stat is one headline figure.
type Stat struct {
	Label string
	Value string
}

// Table is a titled grid of text cells.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// Summary is the content of one PDF.
type Summary struct {
	Title     string
	Generated time.Time
	Stats     []Stat
	Tables    []Table
}

// Reporter builds summaries from a run report and, when available, the
// catalog of stored rows.
type Reporter struct {
	cat core.Catalog
	log *slog.Logger
	now func() time.Time
}

// New creates a Reporter. cat may be nil, in which case only run totals
// are reported.
func New(cat core.Catalog, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{cat: cat, log: log, now: time.Now}
}

// PathFor returns the PDF path for a flat file.
func PathFor(flatPath string) string {
	return strings.TrimSuffix(flatPath, ".csv") + ".pdf"
}

// Generate writes the summary PDF for rep and returns its path. Runs that
// produced no flat file get no PDF.
func (r *Reporter) Generate(ctx context.Context, rep *core.RunReport) (string, error) {
	if rep == nil || rep.OutputFlatPath == "" {
		return "", nil
	}

	s, err := r.Build(ctx, rep)
	if err != nil {
		return "", err
	}

	path := PathFor(rep.OutputFlatPath)
	if err := core.WriteAtomic(path, func(w io.Writer) error { return Render(w, s) }); err != nil {
		return "", err
	}
	r.log.Info("summary report written", "kind", rep.Kind, "path", path)
	return path, nil
}

// Regenerate rewrites the PDF for an existing flat file, taking its
// figures from the catalog instead of a run report.
func (r *Reporter) Regenerate(ctx context.Context, kind core.DatasetKind, flatPath string) (string, error) {
	if r.cat == nil {
		return "", fmt.Errorf("regenerate %s report: no catalog", kind)
	}
	rep := &core.RunReport{RunID: "stored data", Kind: kind, OutputFlatPath: flatPath, Totals: map[string]float64{}}

	switch kind {
	case core.KindMails:
		sum, err := r.cat.SubscriberSummary(ctx)
		if err != nil {
			return "", fmt.Errorf("subscriber summary: %w", err)
		}
		rep.UniqueIdentitiesOrRows = int(sum.Rows)
		rep.Totals["unique_emails"] = float64(sum.Rows)
		rep.Totals["total_purchases"] = float64(sum.TotalPurchases)
	case core.KindRevenue:
		artists, err := r.cat.Artists(ctx)
		if err != nil {
			return "", fmt.Errorf("list artists: %w", err)
		}
		for _, a := range artists {
			ar, err := r.cat.ArtistRevenue(ctx, a)
			if err != nil {
				return "", fmt.Errorf("artist revenue %s: %w", a, err)
			}
			if ar == nil {
				continue
			}
			rep.UniqueIdentitiesOrRows += int(ar.Transactions)
			rep.Totals["quantity"] += float64(ar.Quantity)
			rep.Totals["gross_revenue"] += ar.GrossRevenue
			rep.Totals["net_revenue"] += ar.NetRevenue
		}
		rep.Totals["rows"] = float64(rep.UniqueIdentitiesOrRows)
	default:
		return "", &core.UnknownKindError{Kind: string(kind)}
	}
	return r.Generate(ctx, rep)
}

// Build assembles the summary for rep.
func (r *Reporter) Build(ctx context.Context, rep *core.RunReport) (*Summary, error) {
	spec, err := core.MustGet(rep.Kind)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Title:     spec.Label + " summary",
		Generated: r.now(),
		Stats: []Stat{
			{"Run", rep.RunID},
			{"Files processed", fmt.Sprintf("%d of %d", rep.FilesProcessed, rep.FilesDiscovered)},
		},
	}
	if len(rep.FailedFiles) > 0 {
		s.Stats = append(s.Stats, Stat{"Failed files", strings.Join(rep.FailedFiles, ", ")})
	}

	switch rep.Kind {
	case core.KindMails:
		err = r.mailing(ctx, rep, s)
	case core.KindRevenue:
		err = r.revenue(ctx, rep, s)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Reporter) mailing(ctx context.Context, rep *core.RunReport, s *Summary) error {
	s.Stats = append(s.Stats,
		Stat{"Unique subscribers", strconv.Itoa(rep.UniqueIdentitiesOrRows)},
		Stat{"Total purchases", formatCount(rep.Totals["total_purchases"])},
	)
	if r.cat == nil {
		return nil
	}

	sum, err := r.cat.SubscriberSummary(ctx)
	if err != nil {
		return fmt.Errorf("subscriber summary: %w", err)
	}

	countries := sum.TopCountries
	if len(countries) > topCountries {
		countries = countries[:topCountries]
	}
	t := Table{Title: "Top countries", Header: []string{"Country", "Subscribers"}}
	for _, c := range countries {
		name := c.Country
		if name == "" {
			name = "(unknown)"
		}
		t.Rows = append(t.Rows, []string{name, strconv.FormatInt(c.Subscribers, 10)})
	}
	s.Tables = append(s.Tables, t)
	return nil
}

func (r *Reporter) revenue(ctx context.Context, rep *core.RunReport, s *Summary) error {
	s.Stats = append(s.Stats,
		Stat{"Rows", strconv.Itoa(rep.UniqueIdentitiesOrRows)},
		Stat{"Quantity", formatCount(rep.Totals["quantity"])},
		Stat{"Gross revenue", formatMoney(rep.Totals["gross_revenue"])},
		Stat{"Net revenue", formatMoney(rep.Totals["net_revenue"])},
	)
	if r.cat == nil {
		return nil
	}

	artists, err := r.cat.Artists(ctx)
	if err != nil {
		return fmt.Errorf("list artists: %w", err)
	}

	var rows []*core.ArtistRevenue
	for _, a := range artists {
		ar, err := r.cat.ArtistRevenue(ctx, a)
		if err != nil {
			return fmt.Errorf("artist revenue %s: %w", a, err)
		}
		if ar == nil || ar.Transactions == 0 {
			continue
		}
		rows = append(rows, ar)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].NetRevenue > rows[j].NetRevenue
	})

	t := Table{
		Title:  "Net revenue by artist",
		Header: []string{"Artist", "Transactions", "Quantity", "Gross", "Net"},
	}
	for _, ar := range rows {
		t.Rows = append(t.Rows, []string{
			ar.Artist,
			strconv.FormatInt(ar.Transactions, 10),
			strconv.FormatInt(ar.Quantity, 10),
			formatMoney(ar.GrossRevenue),
			formatMoney(ar.NetRevenue),
		})
	}
	s.Tables = append(s.Tables, t)
	return nil
}

// Render draws s as an A4 PDF.
func Render(w io.Writer, s *Summary) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(s.Title, true)
	pdf.SetCreator("labelsync", true)
	pdf.SetCreationDate(s.Generated)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(s.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, "Generated "+s.Generated.Format("2006-01-02 15:04"), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	for _, st := range s.Stats {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(55, 7, tr(st.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(st.Value), "", "L", false)
	}

	for _, t := range s.Tables {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 13)
		pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")

		if len(t.Rows) == 0 {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.CellFormat(0, 7, "No data", "", 1, "L", false, 0, "")
			continue
		}

		widths := columnWidths(180, len(t.Header))
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range t.Header {
			pdf.CellFormat(widths[i], 7, tr(h), "1", 0, align(i), true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Helvetica", "", 10)
		for _, row := range t.Rows {
			for i := range t.Header {
				cell := ""
				if i < len(row) {
					cell = row[i]
				}
				pdf.CellFormat(widths[i], 6, tr(cell), "1", 0, align(i), false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	return pdf.Output(w)
}

// columnWidths gives the first column twice the share of the others.
func columnWidths(total float64, n int) []float64 {
	if n == 0 {
		return nil
	}
	unit := total / float64(n+1)
	widths := make([]float64, n)
	for i := range widths {
		widths[i] = unit
	}
	widths[0] = unit * 2
	return widths
}

func align(col int) string {
	if col == 0 {
		return "L"
	}
	return "R"
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatCount(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}
