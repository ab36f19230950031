package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/extract"
	"github.com/JonMunkholm/labelsync/internal/web/views"
)

var errArtistNotFound = errors.New("artist not found")

// kindStatusFor collects what a run card shows for spec.
func (s *Server) kindStatusFor(spec core.DatasetSpec) views.KindStatus {
	ks := views.KindStatus{Spec: spec}
	if snap, ok := s.app.Runner().Latest(spec.Kind); ok {
		ks.Latest = &snap
	}
	if _, err := core.LatestOutput(s.cfg.Paths.ReportsDir(), spec); err == nil {
		ks.Download = "/api/reports/" + string(spec.Kind) + "/download"
	}
	return ks
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	var kinds []views.KindStatus
	for _, spec := range core.All() {
		kinds = append(kinds, s.kindStatusFor(spec))
	}
	s.render(w, r, http.StatusOK, views.Home(kinds))
}

func (s *Server) handleKindPage(kind core.DatasetKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec, err := core.MustGet(kind)
		if err != nil {
			s.respondError(w, r, err, http.StatusNotFound)
			return
		}
		ks := s.kindStatusFor(spec)
		s.respond(w, r, ks, func() templ.Component { return views.KindPage(ks) })
	}
}

// subscribersPage is the JSON form of /mail-database.
type subscribersPage struct {
	Summary *core.SubscriberSummary        `json:"summary"`
	Page    *core.Page[core.SubscriberRow] `json:"page"`
}

func (s *Server) handleMailDatabase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.SubscriberFilter{
		Paging:  parsePaging(r),
		Country: strings.TrimSpace(q.Get("country")),
		Search:  strings.TrimSpace(q.Get("search")),
	}

	var out subscribersPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		out.Summary, err = s.app.Catalog().SubscriberSummary(ctx)
		return err
	})
	g.Go(func() (err error) {
		out.Page, err = s.app.Catalog().ListSubscribers(ctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.respond(w, r, out, func() templ.Component {
		return views.MailDatabase(out.Summary, out.Page, pageQuery(q))
	})
}

func (s *Server) handleRevenueDatabase(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.RevenueFilter{
		Paging: parsePaging(r),
		Artist: strings.TrimSpace(q.Get("artist")),
		Region: strings.TrimSpace(q.Get("region")),
	}

	var (
		page    *core.Page[core.StoredRevenue]
		artists []string
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		page, err = s.app.Catalog().ListRevenue(ctx, filter)
		return err
	})
	g.Go(func() (err error) {
		artists, err = s.app.Catalog().Artists(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.respond(w, r, page, func() templ.Component {
		return views.RevenueDatabase(page, artists, pageQuery(q))
	})
}

// maxOverviewWorkers bounds concurrent catalog queries on the overview.
const maxOverviewWorkers = 4

func (s *Server) handleArtistsOverview(w http.ResponseWriter, r *http.Request) {
	cat := s.app.Catalog()
	artists, err := cat.Artists(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	rows := make([]views.ArtistRow, len(artists))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(maxOverviewWorkers)
	for i, name := range artists {
		g.Go(func() error {
			rev, err := cat.ArtistRevenue(ctx, name)
			if err != nil {
				return err
			}
			mail, err := cat.ArtistMailing(ctx, name)
			if err != nil {
				return err
			}
			rows[i] = views.ArtistRow{Artist: name, Revenue: rev, Mailing: mail}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.respond(w, r, rows, func() templ.Component { return views.Artists(rows) })
}

// artistDetail is the JSON form of /artist/{name}.
type artistDetail struct {
	Revenue *core.ArtistRevenue `json:"revenue"`
	Items   []core.ItemRevenue  `json:"items"`
	Mailing *core.ArtistMailing `json:"mailing"`
}

func (s *Server) handleArtistDetail(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.TrimSpace(name) == "" {
		s.respondError(w, r, errArtistNotFound, http.StatusNotFound)
		return
	}

	cat := s.app.Catalog()
	var out artistDetail
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		out.Revenue, err = cat.ArtistRevenue(ctx, name)
		return err
	})
	g.Go(func() (err error) {
		out.Items, err = cat.ArtistItems(ctx, name)
		return err
	})
	g.Go(func() (err error) {
		out.Mailing, err = cat.ArtistMailing(ctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if out.Revenue.Transactions == 0 && (out.Mailing == nil || out.Mailing.Subscribers == 0) {
		s.respondError(w, r, errArtistNotFound, http.StatusNotFound)
		return
	}
	s.respond(w, r, out, func() templ.Component {
		return views.ArtistDetail(out.Revenue, out.Items, out.Mailing)
	})
}

// albumsPage is the JSON form of /albums.
type albumsPage struct {
	Extracted []extract.ArtistAlbums `json:"extracted"`
	Sales     []core.ItemRevenue     `json:"sales"`
}

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	var out albumsPage
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		out.Extracted, err = s.app.Albums()
		return err
	})
	g.Go(func() (err error) {
		out.Sales, err = s.app.Catalog().Albums(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	s.respond(w, r, out, func() templ.Component { return views.Albums(out.Extracted, out.Sales) })
}

// pageQuery keeps the filter parameters for pager links.
func pageQuery(q url.Values) url.Values {
	out := url.Values{}
	for k, v := range q {
		if k != "page" {
			out[k] = v
		}
	}
	return out
}
