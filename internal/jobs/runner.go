// Package jobs runs consolidations in the background for the dashboard and
// the scheduler.
//
// A Runner admits at most one in-flight task per dataset kind. A second
// Start for a busy kind fails with ErrRunInProgress instead of queueing, so
// two runs never write the same flat file or store at once. Finished tasks
// stay queryable for the configured retention and are then forgotten.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/labelsync/internal/core"
)

// ErrRunInProgress is returned when the kind already has a pending or
// running task.
var ErrRunInProgress = errors.New("run already in progress")

// ErrTaskNotFound is returned for unknown or expired task IDs.
var ErrTaskNotFound = errors.New("task not found")

// DefaultRetention is how long finished tasks stay queryable.
const DefaultRetention = 30 * time.Minute

// DefaultTimeout bounds a single task.
const DefaultTimeout = 30 * time.Minute

// Status is a task's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Done reports whether the status is terminal.
func (s Status) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Options tune one run.
type Options struct {
	Fetch bool   `json:"fetch"`
	Force bool   `json:"force"`
	Begin string `json:"begin,omitempty"` // revenue window, YYYY-MM-DD
	End   string `json:"end,omitempty"`
}

// Request is what a Work function receives.
type Request struct {
	ID      string
	Kind    core.DatasetKind
	Options Options
	Observe core.Observer
}

// Work performs one task. Observe must be passed to the pipeline so that
// subscribers see progress.
type Work func(ctx context.Context, req Request) (*core.RunReport, error)

// Snapshot is a point-in-time copy of a task.
type Snapshot struct {
	ID         string           `json:"id"`
	Kind       core.DatasetKind `json:"kind"`
	Options    Options          `json:"options"`
	Status     Status           `json:"status"`
	Progress   core.Progress    `json:"progress"`
	Report     *core.RunReport  `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

type task struct {
	id      string
	kind    core.DatasetKind
	options Options
	cancel  context.CancelFunc
	done    chan struct{}

	mu        sync.Mutex
	status    Status
	progress  core.Progress
	report    *core.RunReport
	err       error
	created   time.Time
	started   time.Time
	finished  time.Time
	listeners []chan core.Progress
}

// Runner tracks background tasks.
type Runner struct {
	work      Work
	retention time.Duration
	timeout   time.Duration
	log       *slog.Logger
	newID     func() string

	mu     sync.RWMutex
	tasks  map[string]*task
	slots  map[core.DatasetKind]string // kind -> in-flight task
	latest map[core.DatasetKind]string // kind -> most recent task

	wg sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithRetention sets how long finished tasks stay queryable.
func WithRetention(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithTimeout bounds each task.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRunner creates a Runner executing work.
func NewRunner(work Work, opts ...Option) *Runner {
	r := &Runner{
		work:      work,
		retention: DefaultRetention,
		timeout:   DefaultTimeout,
		log:       slog.Default(),
		newID:     func() string { return uuid.New().String() },
		tasks:     make(map[string]*task),
		slots:     make(map[core.DatasetKind]string),
		latest:    make(map[core.DatasetKind]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start admits a task for kind and runs it in the background. It returns
// the task ID immediately.
func (r *Runner) Start(kind core.DatasetKind, opts Options) (string, error) {
	if _, ok := core.Get(kind); !ok {
		return "", &core.UnknownKindError{Kind: string(kind)}
	}

	r.mu.Lock()
	if id, busy := r.slots[kind]; busy {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %s (task %s)", ErrRunInProgress, kind, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	t := &task{
		id:      r.newID(),
		kind:    kind,
		options: opts,
		cancel:  cancel,
		done:    make(chan struct{}),
		status:  StatusPending,
		created: time.Now(),
	}
	t.progress = core.Progress{RunID: t.id, Kind: kind}

	r.tasks[t.id] = t
	r.slots[kind] = t.id
	r.latest[kind] = t.id
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(ctx, t)

	return t.id, nil
}

func (r *Runner) run(ctx context.Context, t *task) {
	defer r.wg.Done()
	defer t.cancel()

	log := r.log.With("task_id", t.id, "kind", string(t.kind))

	t.mu.Lock()
	t.status = StatusRunning
	t.started = time.Now()
	t.mu.Unlock()
	log.Info("task started", "fetch", t.options.Fetch, "force", t.options.Force)

	report, err := r.work(ctx, Request{
		ID:      t.id,
		Kind:    t.kind,
		Options: t.options,
		Observe: t.observe,
	})

	t.mu.Lock()
	t.report = report
	t.err = err
	t.finished = time.Now()
	if err != nil {
		t.status = StatusFailed
	} else {
		t.status = StatusCompleted
	}
	elapsed := t.finished.Sub(t.started)
	t.mu.Unlock()

	if err != nil {
		log.Error("task failed", "error", err, "duration_ms", elapsed.Milliseconds())
	} else {
		log.Info("task completed", "duration_ms", elapsed.Milliseconds())
	}

	r.mu.Lock()
	if r.slots[t.kind] == t.id {
		delete(r.slots, t.kind)
	}
	r.mu.Unlock()

	t.notify()
	t.closeListeners()
	close(t.done)
	r.cleanup(t.id, r.retention)
}

// observe records progress and fans it out to listeners.
func (t *task) observe(p core.Progress) {
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
	t.notify()
}

// notify sends the current progress to all listeners.
func (t *task) notify() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.listeners {
		select {
		case ch <- t.progress:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels.
func (t *task) closeListeners() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.listeners {
		close(ch)
	}
	t.listeners = nil
}

func (t *task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		ID:        t.id,
		Kind:      t.kind,
		Options:   t.options,
		Status:    t.status,
		Progress:  t.progress,
		Report:    t.report,
		CreatedAt: t.created,
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	if !t.started.IsZero() {
		started := t.started
		s.StartedAt = &started
	}
	if !t.finished.IsZero() {
		finished := t.finished
		s.FinishedAt = &finished
	}
	return s
}

// cleanup forgets the task after a delay.
func (r *Runner) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.tasks, id)
		r.mu.Unlock()
	})
}

func (r *Runner) lookup(id string) (*task, error) {
	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Get returns a snapshot of the task.
func (r *Runner) Get(id string) (Snapshot, error) {
	t, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshot(), nil
}

// Latest returns the most recent task for kind, if still retained.
func (r *Runner) Latest(kind core.DatasetKind) (Snapshot, bool) {
	r.mu.RLock()
	t, ok := r.tasks[r.latest[kind]]
	r.mu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Running reports whether kind has an in-flight task.
func (r *Runner) Running(kind core.DatasetKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, busy := r.slots[kind]
	return busy
}

// Active returns the number of in-flight tasks.
func (r *Runner) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.slots)
}

// Subscribe returns a channel of progress updates. The current progress is
// sent immediately; the channel is closed when the task finishes. For an
// already finished task the channel holds the final progress and is closed.
func (r *Runner) Subscribe(id string) (<-chan core.Progress, error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan core.Progress, 10)

	t.mu.Lock()
	defer t.mu.Unlock()
	ch <- t.progress
	if t.status.Done() {
		close(ch)
		return ch, nil
	}
	t.listeners = append(t.listeners, ch)
	return ch, nil
}

// Cancel cancels a pending or running task.
func (r *Runner) Cancel(id string) error {
	t, err := r.lookup(id)
	if err != nil {
		return err
	}
	t.cancel()
	return nil
}

// Result blocks until the task finishes or ctx ends.
func (r *Runner) Result(ctx context.Context, id string) (*core.RunReport, error) {
	t, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.report, t.err
}

// Wait blocks until all in-flight tasks complete or ctx is cancelled.
// Used for graceful shutdown.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
