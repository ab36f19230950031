package views

import (
	"context"
	"net/url"
	"strconv"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/extract"
)

func stat(h *html, label, value string) {
	h.raw(`<div class="card stat">`)
	h.text(label)
	h.raw("<b>")
	h.text(value)
	h.raw("</b></div>")
}

// sourceArtist names the artist a subscriber row was imported for.
func sourceArtist(file string) string {
	if a, ok := core.ArtistFromSourceFile(file); ok {
		return a
	}
	return file
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

// MailDatabase lists stored subscribers with a country/search filter.
func MailDatabase(sum *core.SubscriberSummary, page *core.Page[core.SubscriberRow], query url.Values) templ.Component {
	body := component(func(_ context.Context, h *html) {
		h.raw(`<div class="stats">`)
		stat(h, "Subscribers", itoa(sum.Rows))
		stat(h, "Total purchases", itoa(sum.TotalPurchases))
		if sum.LastImport != nil {
			stat(h, "Last import", sum.LastImport.Format("2006-01-02 15:04"))
		}
		h.raw("</div>")

		h.raw(`<form class="card" method="get">`)
		h.rawf(`<input name="search" placeholder="email or name" value="%s"> `, esc(query.Get("search")))
		h.rawf(`<input name="country" placeholder="country" value="%s"> `, esc(query.Get("country")))
		h.raw(`<button type="submit">Filter</button></form>`)

		h.raw(`<div class="card">`)
		h.openTable("Email", "Name", "Country", "Postal code", "Added", "Purchases", "Artist")
		for _, s := range page.Rows {
			h.row(s.Email, s.FullName, s.Country, s.PostalCode, s.DateAdded,
				strconv.Itoa(s.TotalPurchases), sourceArtist(s.SourceFile))
		}
		h.closeTable()
		h.pager("/mail-database", query, page.Page, page.TotalPages())
		h.raw("</div>")
	})
	return Layout("Subscribers", "/mail-database", body)
}

// RevenueDatabase lists stored revenue rows with an artist/region filter.
func RevenueDatabase(page *core.Page[core.StoredRevenue], artists []string, query url.Values) templ.Component {
	body := component(func(_ context.Context, h *html) {
		h.raw(`<form class="card" method="get"><select name="artist"><option value="">All artists</option>`)
		selected := query.Get("artist")
		for _, a := range artists {
			sel := ""
			if a == selected {
				sel = " selected"
			}
			h.rawf(`<option value="%s"%s>%s</option>`, esc(a), sel, esc(a))
		}
		h.raw(`</select> `)
		h.rawf(`<input name="region" placeholder="region" value="%s"> `, esc(query.Get("region")))
		h.raw(`<button type="submit">Filter</button></form>`)

		h.raw(`<div class="card"><p>`)
		h.text(itoa(page.Total) + " rows")
		h.raw("</p>")
		h.openTable("Date", "Artist", "Item", "Type", "Region", "Qty", "Currency", "Gross", "Net")
		for _, r := range page.Rows {
			h.row(r.TransactionDateFrom, r.ArtistName, r.ItemName, r.ItemType, r.Region,
				strconv.Itoa(r.Quantity), r.Currency, money(r.GrossRevenue), money(r.NetRevenue))
		}
		h.closeTable()
		h.pager("/database", query, page.Page, page.TotalPages())
		h.raw("</div>")
	})
	return Layout("Revenue", "/database", body)
}

// ArtistRow is one line of the artists overview.
type ArtistRow struct {
	Artist  string
	Revenue *core.ArtistRevenue
	Mailing *core.ArtistMailing
}

// Artists renders the overview table.
func Artists(rows []ArtistRow) templ.Component {
	body := component(func(_ context.Context, h *html) {
		h.raw(`<div class="card">`)
		if len(rows) == 0 {
			h.raw("<p>No artists yet. Run a revenue consolidation first.</p></div>")
			return
		}
		h.openTable("Artist", "Transactions", "Gross", "Net", "Items", "Subscribers")
		for _, r := range rows {
			var tx, items, subs int64
			var gross, net float64
			if r.Revenue != nil {
				tx, items = r.Revenue.Transactions, r.Revenue.UniqueItems
				gross, net = r.Revenue.GrossRevenue, r.Revenue.NetRevenue
			}
			if r.Mailing != nil {
				subs = r.Mailing.Subscribers
			}
			h.rawf(`<tr><td><a href="%s">%s</a></td>`, esc(artistHref(r.Artist)), esc(r.Artist))
			h.rawf(`<td>%d</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td></tr>`, tx, money(gross), money(net), items, subs)
		}
		h.closeTable()
		h.raw("</div>")
	})
	return Layout("Artists", "/artists-overview", body)
}

// ArtistDetail shows one artist's totals and per-item sales.
func ArtistDetail(rev *core.ArtistRevenue, items []core.ItemRevenue, mail *core.ArtistMailing) templ.Component {
	body := component(func(_ context.Context, h *html) {
		h.raw(`<div class="stats">`)
		stat(h, "Transactions", itoa(rev.Transactions))
		stat(h, "Gross revenue", money(rev.GrossRevenue))
		stat(h, "Net revenue", money(rev.NetRevenue))
		stat(h, "Average sale", money(rev.AvgTransaction))
		if mail != nil {
			stat(h, "Subscribers", itoa(mail.Subscribers))
		}
		h.raw("</div>")
		if rev.FirstTransaction != "" {
			h.raw("<p>Sales from ")
			h.text(rev.FirstTransaction)
			h.raw(" to ")
			h.text(rev.LastTransaction)
			h.raw("</p>")
		}
		h.raw(`<div class="card">`)
		h.openTable("Item", "Type", "Qty", "Gross", "Net", "First sale", "Last sale")
		for _, it := range items {
			h.row(it.ItemName, it.ItemType, itoa(it.Quantity), money(it.GrossRevenue),
				money(it.NetRevenue), it.FirstSale, it.LastSale)
		}
		h.closeTable()
		h.raw("</div>")
	})
	return Layout(rev.Artist, "/artists-overview", body)
}

// Albums lists extracted album folders next to album sales.
func Albums(extracted []extract.ArtistAlbums, sales []core.ItemRevenue) templ.Component {
	body := component(func(_ context.Context, h *html) {
		h.raw(`<div class="card"><h2>Extracted</h2>`)
		if len(extracted) == 0 {
			h.raw("<p>No extracted albums.</p>")
		}
		for _, a := range extracted {
			h.raw("<h3>")
			h.text(a.Artist)
			h.raw("</h3><ul>")
			for _, name := range a.Albums {
				h.raw("<li>")
				h.text(name)
				h.raw("</li>")
			}
			h.raw("</ul>")
		}
		h.raw(`</div><div class="card"><h2>Sales</h2>`)
		h.openTable("Artist", "Album", "Qty", "Net")
		for _, s := range sales {
			h.row(orUnknown(s.Artist), s.ItemName, itoa(s.Quantity), money(s.NetRevenue))
		}
		h.closeTable()
		h.raw("</div>")
	})
	return Layout("Albums", "/albums", body)
}
