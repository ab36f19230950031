// Package views renders the dashboard's pages and partials as templ
// components.
package views

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/a-h/templ"
)

// html accumulates output and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err != nil {
		return
	}
	_, h.err = io.WriteString(h.w, s)
}

// text writes s escaped.
func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// rawf formats into raw HTML; string arguments must already be escaped.
func (h *html) rawf(format string, args ...any) {
	h.raw(fmt.Sprintf(format, args...))
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err != nil || c == nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// component adapts a body writer to templ.Component.
func component(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}

func esc(s string) string { return templ.EscapeString(s) }

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// artistHref links to an artist detail page.
func artistHref(name string) string {
	return "/artist/" + url.PathEscape(name)
}

// table writes a header row and returns after opening <tbody>.
func (h *html) openTable(cols ...string) {
	h.raw(`<table class="grid"><thead><tr>`)
	for _, c := range cols {
		h.raw("<th>")
		h.text(c)
		h.raw("</th>")
	}
	h.raw("</tr></thead><tbody>")
}

func (h *html) closeTable() {
	h.raw("</tbody></table>")
}

// row writes escaped cells.
func (h *html) row(cells ...string) {
	h.raw("<tr>")
	for _, c := range cells {
		h.raw("<td>")
		h.text(c)
		h.raw("</td>")
	}
	h.raw("</tr>")
}

// pager writes previous/next links preserving query.
func (h *html) pager(path string, query url.Values, page, pages int) {
	if pages <= 1 {
		return
	}
	link := func(p int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(p))
		return esc(path + "?" + q.Encode())
	}
	h.raw(`<nav class="pager">`)
	if page > 1 {
		h.rawf(`<a href="%s">&larr; Previous</a>`, link(page-1))
	}
	h.rawf(`<span>Page %d of %d</span>`, page, pages)
	if page < pages {
		h.rawf(`<a href="%s">Next &rarr;</a>`, link(page+1))
	}
	h.raw(`</nav>`)
}
