package web

// errors.go renders failures for the three kinds of client: HTMX swaps
// get an alert partial, API callers get JSON, browsers get a page.
// Every error is mapped through core.MapError first and logged with
// the request ID.

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/jobs"
	"github.com/JonMunkholm/labelsync/internal/logging"
	"github.com/JonMunkholm/labelsync/internal/web/views"
)

// ErrorResponse is the JSON body of API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError maps err to a user message and renders it for the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{"path", r.URL.Path, "method", r.Method, "status", status, "error", err, "code", msg.Code}
	if status >= http.StatusInternalServerError {
		log.Error("request error", attrs...)
	} else {
		log.Warn("request error", attrs...)
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = views.ErrorAlert(msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	case wantsJSON(r):
		writeJSON(w, status, ErrorResponse{
			Error:   msg.Message,
			Message: msg.Message,
			Action:  msg.Action,
			Code:    msg.Code,
		})
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_ = views.ErrorPage(http.StatusText(status), msg.Message, msg.Action, msg.Code).Render(r.Context(), w)
	}
}

// statusFor picks the HTTP status for errors the handlers pass through.
func statusFor(err error) int {
	var unknown *core.UnknownKindError
	switch {
	case errors.Is(err, jobs.ErrTaskNotFound), errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrRunInProgress):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON reports whether the client should get JSON. API routes
// default to JSON.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}
