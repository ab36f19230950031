package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/jobs"
	"github.com/JonMunkholm/labelsync/internal/logging"
	"github.com/JonMunkholm/labelsync/internal/web/views"
)

func (s *Server) log(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context())
}

// kindParam resolves the {kind} URL parameter, accepting the dashboard
// aliases.
func kindParam(r *http.Request) (core.DatasetSpec, error) {
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return core.DatasetSpec{}, err
	}
	return core.MustGet(kind)
}

// runAccepted is the JSON answer to a started run.
type runAccepted struct {
	TaskID      string `json:"task_id"`
	Kind        string `json:"kind"`
	StatusURL   string `json:"status_url"`
	ProgressURL string `json:"progress_url"`
}

// handleStartRun starts a consolidation task. A second run of the same
// kind while one is live is refused with 409.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	spec, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	opts, err := parseRunOptions(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	runner := s.app.Runner()
	id, err := runner.Start(spec.Kind, opts)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.log(r).Info("run started", "task_id", id, "kind", string(spec.Kind), "fetch", opts.Fetch, "force", opts.Force)

	if isHTMX(r) {
		snap, err := runner.Get(id)
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		s.render(w, r, http.StatusAccepted, views.TaskStatus(snap))
		return
	}

	w.Header().Set("Location", "/api/tasks/"+id)
	writeJSON(w, http.StatusAccepted, runAccepted{
		TaskID:      id,
		Kind:        string(spec.Kind),
		StatusURL:   "/api/tasks/" + id,
		ProgressURL: "/api/tasks/" + id + "/progress",
	})
}

// kindStatus is the JSON answer of the per-kind status endpoint.
type kindStatus struct {
	Kind    string         `json:"kind"`
	Running bool           `json:"running"`
	Latest  *jobs.Snapshot `json:"latest,omitempty"`
}

// handleRunStatus reports whether a kind is running and its latest task.
func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	spec, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	runner := s.app.Runner()
	out := kindStatus{Kind: string(spec.Kind), Running: runner.Running(spec.Kind)}
	if snap, ok := runner.Latest(spec.Kind); ok {
		out.Latest = &snap
	}

	if isHTMX(r) {
		if out.Latest == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.render(w, r, http.StatusOK, views.TaskStatus(*out.Latest))
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Runner().Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	if isHTMX(r) {
		s.render(w, r, http.StatusOK, views.TaskStatus(snap))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.app.Runner().Cancel(id); err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	s.log(r).Info("run cancelled", "task_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "status": "cancelling"})
}

// progressEvent is one SSE data payload.
type progressEvent struct {
	core.Progress
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

// handleTaskProgress streams a task's progress as server-sent events and
// finishes with a "complete" event when the task ends. The event ID is the
// percentage, so a reconnecting client sending Last-Event-ID skips what it
// has already seen.
func (s *Server) handleTaskProgress(w http.ResponseWriter, r *http.Request) {
	lastID := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			lastID = n
		}
	}

	ch, err := s.app.Runner().Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			pct := p.Percent()
			if pct < lastID {
				continue
			}
			data, err := json.Marshal(progressEvent{Progress: p, Percent: pct, Label: views.PhaseText(p)})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", pct, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleDownload serves the newest consolidated flat file of a kind.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	spec, err := kindParam(r)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	path, err := core.LatestOutput(s.cfg.Paths.ReportsDir(), spec)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}
