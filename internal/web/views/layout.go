package views

import (
	"context"

	"github.com/a-h/templ"
)

type navItem struct {
	href, label string
}

var nav = []navItem{
	{"/", "Utilities"},
	{"/mails", "Mailing lists"},
	{"/reports", "Revenue reports"},
	{"/mail-database", "Subscribers"},
	{"/database", "Revenue"},
	{"/artists-overview", "Artists"},
	{"/albums", "Albums"},
}

const style = `
body{font-family:system-ui,sans-serif;margin:0;color:#1d1d1f;background:#f6f6f8}
header{background:#1da0c3;color:#fff;padding:.75rem 1.5rem}
header a{color:#fff;margin-right:1rem;text-decoration:none}
header a.active{font-weight:600;text-decoration:underline}
main{padding:1.5rem;max-width:72rem;margin:auto}
.card{background:#fff;border-radius:6px;padding:1rem 1.25rem;margin-bottom:1rem;box-shadow:0 1px 2px #0002}
.stats{display:flex;gap:1rem;flex-wrap:wrap}
.stat{flex:1;min-width:10rem}
.stat b{display:block;font-size:1.4rem}
table.grid{border-collapse:collapse;width:100%;font-size:.9rem}
table.grid th,table.grid td{border-bottom:1px solid #e3e3e8;padding:.35rem .5rem;text-align:left}
.alert{border-radius:6px;padding:.75rem 1rem;background:#fde8e8;color:#8a1c1c}
.alert small{display:block;color:#5a2a2a}
progress{width:100%}
.pager{display:flex;gap:1rem;margin-top:.75rem}
`

// Layout wraps a page body with the navigation shell.
func Layout(title, active string, body templ.Component) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		h.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		h.raw("<title>")
		h.text(title)
		h.raw(" · labelsync</title><style>")
		h.raw(style)
		h.raw(`</style><script src="https://unpkg.com/htmx.org@1.9.12"></script></head><body><header><nav>`)
		for _, n := range nav {
			class := ""
			if n.href == active {
				class = ` class="active"`
			}
			h.rawf(`<a href="%s"%s>%s</a>`, esc(n.href), class, esc(n.label))
		}
		h.raw("</nav></header><main><h1>")
		h.text(title)
		h.raw("</h1>")
		h.render(ctx, body)
		h.raw("</main></body></html>")
	})
}

// ErrorAlert is the partial returned to HTMX requests that fail.
func ErrorAlert(message, action, code string) templ.Component {
	return component(func(_ context.Context, h *html) {
		h.raw(`<div class="alert" role="alert">`)
		h.text(message)
		if action != "" {
			h.raw("<small>")
			h.text(action)
			h.raw("</small>")
		}
		if code != "" {
			h.raw("<small>Code: ")
			h.text(code)
			h.raw("</small>")
		}
		h.raw("</div>")
	})
}

// ErrorPage renders a full page around ErrorAlert.
func ErrorPage(title, message, action, code string) templ.Component {
	return Layout(title, "", ErrorAlert(message, action, code))
}
