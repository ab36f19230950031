package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JonMunkholm/labelsync/internal/core"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(work Work, opts ...Option) *Runner {
	return NewRunner(work, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func reportWork(ctx context.Context, req Request) (*core.RunReport, error) {
	return &core.RunReport{RunID: req.ID, Kind: req.Kind, FilesProcessed: 1}, nil
}

// blockingWork runs until release is closed or ctx ends.
func blockingWork(release <-chan struct{}) Work {
	return func(ctx context.Context, req Request) (*core.RunReport, error) {
		select {
		case <-release:
			return &core.RunReport{RunID: req.ID, Kind: req.Kind}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func TestRunner_StartAndResult(t *testing.T) {
	r := newTestRunner(reportWork)

	id, err := r.Start(core.KindMails, Options{})
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := r.Result(ctx, id)
	if err != nil {
		t.Fatalf("Result() error: %v", err)
	}
	if report.RunID != id {
		t.Errorf("RunID = %q, want %q", report.RunID, id)
	}

	snap, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if snap.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", snap.Status, StatusCompleted)
	}
	if snap.StartedAt == nil || snap.FinishedAt == nil {
		t.Error("StartedAt/FinishedAt should be set")
	}
	if r.Running(core.KindMails) {
		t.Error("Running(mails) = true after completion")
	}

	latest, ok := r.Latest(core.KindMails)
	if !ok || latest.ID != id {
		t.Errorf("Latest(mails) = %q, %v, want %q", latest.ID, ok, id)
	}
}

func TestRunner_OneTaskPerKind(t *testing.T) {
	release := make(chan struct{})
	r := newTestRunner(blockingWork(release))

	first, err := r.Start(core.KindMails, Options{})
	if err != nil {
		t.Fatalf("first Start() error: %v", err)
	}

	if _, err := r.Start(core.KindMails, Options{}); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Start(mails) = %v, want ErrRunInProgress", err)
	}

	// A different kind has its own slot.
	other, err := r.Start(core.KindRevenue, Options{})
	if err != nil {
		t.Fatalf("Start(revenue) error: %v", err)
	}
	if got := r.Active(); got != 2 {
		t.Errorf("Active() = %d, want 2", got)
	}

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, id := range []string{first, other} {
		if _, err := r.Result(ctx, id); err != nil {
			t.Fatalf("Result(%s) error: %v", id, err)
		}
	}

	if _, err := r.Start(core.KindMails, Options{}); err != nil {
		t.Errorf("Start(mails) after completion error: %v", err)
	}
}

func TestRunner_UnknownKind(t *testing.T) {
	r := newTestRunner(reportWork)
	_, err := r.Start("invoices", Options{})
	var unknown *core.UnknownKindError
	if !errors.As(err, &unknown) {
		t.Errorf("Start(invoices) = %v, want UnknownKindError", err)
	}
}

func TestRunner_FailedTask(t *testing.T) {
	boom := errors.New("output write failed: disk full")
	r := newTestRunner(func(ctx context.Context, req Request) (*core.RunReport, error) {
		return &core.RunReport{RunID: req.ID}, boom
	})

	id, _ := r.Start(core.KindRevenue, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	report, err := r.Result(ctx, id)
	if !errors.Is(err, boom) {
		t.Errorf("Result() error = %v, want %v", err, boom)
	}
	if report == nil {
		t.Error("partial report should be kept")
	}

	snap, _ := r.Get(id)
	if snap.Status != StatusFailed {
		t.Errorf("Status = %s, want %s", snap.Status, StatusFailed)
	}
	if snap.Error != boom.Error() {
		t.Errorf("Error = %q, want %q", snap.Error, boom.Error())
	}
}

func TestRunner_Subscribe(t *testing.T) {
	release := make(chan struct{})
	r := newTestRunner(func(ctx context.Context, req Request) (*core.RunReport, error) {
		<-release
		req.Observe(core.Progress{RunID: req.ID, Phase: core.PhaseReading, FileIdx: 1, FileN: 2})
		req.Observe(core.Progress{RunID: req.ID, Phase: core.PhaseWritingFlat})
		return &core.RunReport{RunID: req.ID}, nil
	})

	id, _ := r.Start(core.KindMails, Options{})
	ch, err := r.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	close(release)

	var phases []core.RunPhase
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case p, ok := <-ch:
			if !ok {
				done = true
				break
			}
			phases = append(phases, p.Phase)
		case <-timeout:
			t.Fatal("timed out waiting for channel close")
		}
	}

	if len(phases) < 2 {
		t.Fatalf("got %d updates, want at least 2", len(phases))
	}
	if last := phases[len(phases)-1]; last != core.PhaseWritingFlat {
		t.Errorf("last phase = %s, want %s", last, core.PhaseWritingFlat)
	}
}

func TestRunner_SubscribeFinished(t *testing.T) {
	r := newTestRunner(reportWork)
	id, _ := r.Start(core.KindMails, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Result(ctx, id)

	ch, err := r.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	if _, ok := <-ch; !ok {
		t.Error("expected final progress before close")
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestRunner_Cancel(t *testing.T) {
	r := newTestRunner(blockingWork(make(chan struct{})))
	id, _ := r.Start(core.KindMails, Options{})

	if err := r.Cancel(id); err != nil {
		t.Fatalf("Cancel() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.Result(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("Result() error = %v, want context.Canceled", err)
	}
	if err := r.Cancel("missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Cancel(missing) = %v, want ErrTaskNotFound", err)
	}
}

func TestRunner_Timeout(t *testing.T) {
	r := newTestRunner(blockingWork(make(chan struct{})), WithTimeout(20*time.Millisecond))
	id, _ := r.Start(core.KindMails, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.Result(ctx, id); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Result() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestRunner_Wait(t *testing.T) {
	release := make(chan struct{})
	r := newTestRunner(blockingWork(release))
	r.Start(core.KindMails, Options{})

	// Should timeout while the task is blocked
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); err != context.DeadlineExceeded {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}

	close(release)
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := r.Wait(ctx2); err != nil {
		t.Errorf("Wait() after release = %v, want nil", err)
	}
}

func TestRunner_Retention(t *testing.T) {
	r := newTestRunner(reportWork, WithRetention(10*time.Millisecond))
	id, _ := r.Start(core.KindMails, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Result(ctx, id)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Get(id); errors.Is(err, ErrTaskNotFound) {
			if _, ok := r.Latest(core.KindMails); ok {
				t.Error("Latest(mails) should be gone with the task")
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("task was not forgotten after retention")
}

func TestRunner_Scheduler(t *testing.T) {
	var calls atomic.Int32
	r := newTestRunner(func(ctx context.Context, req Request) (*core.RunReport, error) {
		calls.Add(1)
		return &core.RunReport{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.StartScheduler(ctx, 10*time.Millisecond, []core.DatasetKind{core.KindMails}, Options{})
		close(stopped)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-stopped

	if got := calls.Load(); got < 2 {
		t.Errorf("scheduled runs = %d, want at least 2", got)
	}
}

func TestRunner_SchedulerDisabled(t *testing.T) {
	r := newTestRunner(reportWork)
	done := make(chan struct{})
	go func() {
		r.StartScheduler(context.Background(), 0, core.Kinds(), Options{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("StartScheduler with zero interval should return immediately")
	}
}
