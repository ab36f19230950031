package views

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/labelsync/internal/core"
	"github.com/JonMunkholm/labelsync/internal/jobs"
)

// KindStatus is what a kind page shows about the latest run.
type KindStatus struct {
	Spec     core.DatasetSpec
	Latest   *jobs.Snapshot
	Download string // empty when no flat output exists yet
}

// Utilities is the landing page: one card per dataset kind.
func Utilities(kinds []KindStatus) templ.Component {
	return component(func(ctx context.Context, h *html) {
		h.raw(`<div class="stats">`)
		for _, k := range kinds {
			h.raw(`<div class="card stat"><h2>`)
			h.text(k.Spec.Label)
			h.raw("</h2>")
			h.render(ctx, RunForm(k.Spec))
			h.rawf(`<div id="task-%s">`, esc(string(k.Spec.Kind)))
			if k.Latest != nil {
				h.render(ctx, TaskStatus(*k.Latest))
			}
			h.raw("</div>")
			if k.Download != "" {
				h.rawf(`<p><a href="%s">Download latest</a></p>`, esc(k.Download))
			}
			h.raw("</div>")
		}
		h.raw("</div>")
	})
}

// Home is the landing page.
func Home(kinds []KindStatus) templ.Component {
	return Layout("Utilities", "/", Utilities(kinds))
}

// KindPage is the run page of one dataset kind.
func KindPage(k KindStatus) templ.Component {
	return Layout(k.Spec.Label, activeFor(k.Spec.Kind), Utilities([]KindStatus{k}))
}

func activeFor(kind core.DatasetKind) string {
	if kind == core.KindRevenue {
		return "/reports"
	}
	return "/mails"
}

// RunForm starts a run through HTMX and swaps in the task partial.
func RunForm(spec core.DatasetSpec) templ.Component {
	return component(func(_ context.Context, h *html) {
		kind := esc(string(spec.Kind))
		h.rawf(`<form hx-post="/api/runs/%s" hx-target="#task-%s" hx-swap="innerHTML">`, kind, kind)
		h.raw(`<label><input type="checkbox" name="fetch" value="true"> Download from Bandcamp first</label><br>`)
		h.raw(`<label><input type="checkbox" name="force" value="true"> Force re-download</label><br>`)
		if spec.Kind == core.KindRevenue {
			h.raw(`<label>From <input type="date" name="begin"></label> `)
			h.raw(`<label>To <input type="date" name="end"></label><br>`)
		}
		h.raw(`<button type="submit">Run</button></form>`)
	})
}

// TaskStatus renders a task snapshot. While the task is live the
// partial subscribes to its progress stream and reloads when done.
func TaskStatus(s jobs.Snapshot) templ.Component {
	return component(func(ctx context.Context, h *html) {
		id := esc(s.ID)
		h.rawf(`<div class="task" id="status-%s" data-task="%s">`, id, id)
		h.raw("<p>Status: <b>")
		h.text(string(s.Status))
		h.raw("</b>")
		if !s.Status.Done() {
			h.raw(` <button hx-post="/api/tasks/`)
			h.raw(id)
			h.raw(`/cancel" hx-swap="none">Cancel</button>`)
		}
		h.raw("</p>")
		if !s.Status.Done() {
			h.rawf(`<progress max="100" value="%d"></progress><p class="phase">`, s.Progress.Percent())
			h.text(PhaseText(s.Progress))
			h.raw("</p>")
			h.raw(progressScript)
		}
		if s.Error != "" {
			h.render(ctx, ErrorAlert(s.Error, "", ""))
		}
		if s.Report != nil {
			h.render(ctx, Report(s.Report))
		}
		h.raw("</div>")
	})
}

// PhaseText describes a progress update for humans.
func PhaseText(p core.Progress) string {
	if p.Phase == core.PhaseReading && p.FileN > 0 {
		return "reading " + p.File + " (" + strconv.Itoa(p.FileIdx) + "/" + strconv.Itoa(p.FileN) + ")"
	}
	if p.Phase == "" {
		return "queued"
	}
	return string(p.Phase)
}

// Report summarizes a finished run.
func Report(r *core.RunReport) templ.Component {
	return component(func(_ context.Context, h *html) {
		if r.NothingToDo {
			h.raw("<p>No source files found. Nothing to do.</p>")
			return
		}
		h.raw("<dl>")
		item := func(k, v string) {
			h.raw("<dt>")
			h.text(k)
			h.raw("</dt><dd>")
			h.text(v)
			h.raw("</dd>")
		}
		item("Files", strconv.Itoa(r.FilesProcessed)+" of "+strconv.Itoa(r.FilesDiscovered))
		if r.Kind == core.KindMails {
			item("Unique subscribers", strconv.Itoa(r.UniqueIdentitiesOrRows))
		} else {
			item("Rows", strconv.Itoa(r.UniqueIdentitiesOrRows))
		}
		keys := make([]string, 0, len(r.Totals))
		for k := range r.Totals {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			item(k, money(r.Totals[k]))
		}
		item("Stored rows", strconv.Itoa(r.StoreRowsWritten))
		if r.RowsSkipped > 0 {
			item("Skipped rows", strconv.Itoa(r.RowsSkipped))
		}
		if r.Warnings > 0 {
			item("Warnings", strconv.Itoa(r.Warnings))
		}
		for _, f := range r.FailedFiles {
			item("Failed file", f)
		}
		item("Duration", r.Duration().Round(time.Millisecond).String())
		h.raw("</dl>")
	})
}

// progressScript follows the task's SSE stream, updates the bar, and
// refetches the partial on completion. It looks up its own container
// so several tasks can share a page.
const progressScript = `<script>
(function(){
  var box = document.currentScript.closest('[data-task]');
  if (!box || !window.EventSource) return;
  var id = box.dataset.task;
  var es = new EventSource('/api/tasks/' + encodeURIComponent(id) + '/progress');
  es.addEventListener('progress', function(e){
    var p = JSON.parse(e.data);
    var bar = box.querySelector('progress');
    if (bar) bar.value = p.percent;
    var ph = box.querySelector('.phase');
    if (ph) ph.textContent = p.label;
  });
  es.addEventListener('complete', function(){
    es.close();
    if (window.htmx) {
      htmx.ajax('GET', '/api/tasks/' + encodeURIComponent(id), {target: box, swap: 'outerHTML'});
    }
  });
  es.onerror = function(){ es.close(); };
})();
</script>`
