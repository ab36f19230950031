package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/jobs"
)

// parseIntParam parses a positive integer query parameter.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func parsePaging(r *http.Request) core.Paging {
	return core.Paging{
		Page:     parseIntParam(r, "page", 1),
		PageSize: parseIntParam(r, "page_size", 50),
	}.Normalize()
}

// runRequest is the body of POST /api/runs/{kind}.
type runRequest struct {
	Fetch bool   `json:"fetch"`
	Force bool   `json:"force"`
	Begin string `json:"begin"`
	End   string `json:"end"`
}

// parseRunOptions reads run options from a JSON body or a form.
func parseRunOptions(w http.ResponseWriter, r *http.Request) (jobs.Options, error) {
	var req runRequest
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		if r.ContentLength != 0 {
			if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
				return jobs.Options{}, fmt.Errorf("invalid request body: %w", err)
			}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return jobs.Options{}, fmt.Errorf("invalid form: %w", err)
		}
		req.Fetch = formBool(r.Form.Get("fetch"))
		req.Force = formBool(r.Form.Get("force"))
		req.Begin = strings.TrimSpace(r.Form.Get("begin"))
		req.End = strings.TrimSpace(r.Form.Get("end"))
	}

	for _, d := range []string{req.Begin, req.End} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return jobs.Options{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", d)
		}
	}
	if req.Begin != "" && req.End != "" && req.End < req.Begin {
		return jobs.Options{}, fmt.Errorf("invalid date range: %s is before %s", req.End, req.Begin)
	}

	return jobs.Options{Fetch: req.Fetch, Force: req.Force, Begin: req.Begin, End: req.End}, nil
}

func formBool(v string) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return v == "on"
	}
	return b
}

// render writes a component as a full HTML response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		s.logError(r, "render", err)
	}
}

// respond renders JSON for API clients and the component otherwise.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, v any, c func() templ.Component) {
	if wantsJSON(r) && !isHTMX(r) {
		writeJSON(w, http.StatusOK, v)
		return
	}
	s.render(w, r, http.StatusOK, c())
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	s.log(r).Error(msg, "path", r.URL.Path, "error", err)
}
