package sync

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/fueltrack/internal/logging"
	"github.com/dmitrijs2005/fueltrack/internal/model"
	"github.com/sethvargo/go-retry"
)

// Scheduler is the background actor: a timer-driven loop that flushes all
// unsynced rows and prunes synced ones. It owns its state, is started and
// stopped explicitly, and takes ad-hoc sync requests over a command channel
// so the foreground never touches its internals.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	// onProgress receives the aggregate report of every pass.
	onProgress func(Progress)
	// onError is the background error sink: system-faulted failures land
	// here instead of crashing the foreground.
	onError func(error)

	log logging.Logger

	cmds chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Actor is the scheduler's editor identity, distinct from the interactive
// actor so edit-lock attribution works.
func (s *Scheduler) Actor() model.ActorID { return model.ActorBackground }

func NewScheduler(engine *Engine, interval time.Duration,
	onProgress func(Progress), onError func(error), log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{
		engine:     engine,
		interval:   interval,
		onProgress: onProgress,
		onError:    onError,
		log:        log,
		cmds:       make(chan struct{}, 1),
	}
}

// Start launches the loop. Idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true
	go s.run(ctx)
}

// Stop halts the loop and waits for an in-progress pass to finish. All
// outstanding sync locks are released so a later start (or another process)
// begins clean; late network completions fail their token guard.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.started = false
	s.mu.Unlock()

	cancel()
	<-done

	ctx, cancelRelease := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelRelease()
	if _, err := s.engine.GlobalCancelSync(ctx); err != nil {
		s.report(err)
	}
}

// SyncNow requests an immediate pass. Non-blocking; collapses with an
// already-pending request.
func (s *Scheduler) SyncNow() {
	select {
	case s.cmds <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pass(ctx)
		case <-s.cmds:
			s.pass(ctx)
		}
	}
}

// pass runs one flush-all plus prune. System-faulted store errors are
// retried with exponential backoff before being handed to the error sink;
// remote-level failures are per-row outcomes inside the Progress report,
// not errors.
func (s *Scheduler) pass(ctx context.Context) {
	var p Progress
	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		p, err = s.engine.FlushAll(ctx)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		s.report(err)
		return
	}

	s.log.Debug(ctx, "flush pass complete",
		"total", p.Total, "flushed", p.Flushed, "failed", p.Failed,
		"skipped", p.Skipped, "auth_required", p.AuthRequired)

	if s.onProgress != nil {
		s.onProgress(p)
	}

	if p.AuthRequired {
		// No point pruning; the pass was cut short.
		return
	}
	if _, err := s.engine.Prune(ctx); err != nil {
		s.report(err)
	}
}

func (s *Scheduler) report(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	s.log.Error(context.Background(), "background pass failed", "error", err)
}
