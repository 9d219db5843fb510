package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/observability"
)

// ErrClosed is returned when a job is registered with a poller that has
// already been torn down.
var ErrClosed = errors.New("poller is closed")

// Fetcher reads job state from the remote service. Implemented by the
// transport client.
type Fetcher interface {
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
}

// CompletionFunc is invoked exactly once per job when it transitions into
// the completed state, with the job id and its transcription result.
type CompletionFunc func(jobID, result string)

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	Interval   time.Duration          // reconciliation period (default 1s)
	OnComplete CompletionFunc         // completion notifications (optional)
	Metrics    *observability.Metrics // metrics recorder (optional)
}

// Poller owns the tracked job set and reconciles it against the server.
//
// The poller is either idle or active. It goes active on the first
// registration, runs one immediate reconciliation pass, then re-passes on a
// fixed interval. It goes idle again once a pass leaves no job in an active
// state. Terminal jobs stay visible until ClearCompleted; going idle stops
// network activity, nothing more.
//
// All passes run on a single goroutine, so a slow pass delays the next tick
// instead of overlapping it.
type Poller struct {
	fetcher    Fetcher
	interval   time.Duration
	onComplete CompletionFunc
	metrics    *observability.Metrics
	logger     *slog.Logger

	tracked *tracker

	mu         sync.Mutex
	active     bool
	closed     bool
	cancelLoop context.CancelFunc
	wg         sync.WaitGroup
}

// NewPoller creates an idle poller.
func NewPoller(fetcher Fetcher, cfg PollerConfig) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		fetcher:    fetcher,
		interval:   interval,
		onComplete: cfg.OnComplete,
		metrics:    cfg.Metrics,
		logger:     slog.With("component", "poller"),
		tracked:    newTracker(),
	}
}

// placeholder builds the provisional record inserted at registration time,
// shown to consumers until the first real fetch replaces it.
func placeholder(id string) Job {
	now := time.Now()
	return Job{
		ID:        id,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Track registers a freshly submitted job and activates the polling cycle
// if it is idle. The inserted record is a provisional placeholder; the
// first successful fetch replaces it wholesale.
func (p *Poller) Track(id string) error {
	inserted := p.tracked.register(placeholder(id))
	if inserted && p.metrics != nil {
		p.metrics.RecordJobTracked(context.Background())
	}
	return p.activate()
}

// Resume activates the polling cycle without registering a job. With an
// empty tracked set the first pass adopts whatever the server lists, which
// lets a consumer pick up jobs submitted elsewhere.
func (p *Poller) Resume() error {
	return p.activate()
}

// activate starts the polling loop unless it is already running.
func (p *Poller) activate() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.active {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.active = true
	p.cancelLoop = cancel

	p.wg.Add(1)
	go p.runLoop(ctx)
	return nil
}

// runLoop performs an immediate pass and then one pass per tick until the
// tracked set quiesces or the poller is closed.
func (p *Poller) runLoop(ctx context.Context) {
	defer p.wg.Done()

	if done := p.passAndMaybeIdle(ctx); done {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := p.passAndMaybeIdle(ctx); done {
				return
			}
		}
	}
}

// passAndMaybeIdle runs one pass, then decides under the lock whether the
// loop should go idle. Re-checking the tracked set under the lock closes
// the race with a Track that lands between the pass and the decision: either
// the new job is seen here and the loop stays active, or the loop has
// already flipped to idle and Track starts a fresh one.
func (p *Poller) passAndMaybeIdle(ctx context.Context) bool {
	p.reconcile(ctx)

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return true
	}
	if p.tracked.hasActive() {
		p.mu.Unlock()
		return false
	}

	p.active = false
	cancel := p.cancelLoop
	p.cancelLoop = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.logger.Info("Polling idle, all tracked jobs settled")
	return true
}

// reconcile executes one reconciliation pass over the tracked set.
func (p *Poller) reconcile(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.RecordPollCycle(ctx)
	}

	// Empty set: the server may know about jobs this poller has not seen
	// (submitted concurrently, or before a restart). Adopt the listing
	// wholesale and defer per-job polling to the next tick.
	if p.tracked.empty() {
		p.adoptListing(ctx)
		return
	}

	ids := p.tracked.activeIDs()
	for _, id := range ids {
		fetched, err := p.fetcher.GetJob(ctx, id)
		if err != nil {
			// Transient: the local record stays as-is, retried next tick.
			if p.metrics != nil {
				p.metrics.RecordPollError(ctx)
			}
			p.logger.Debug("Job fetch failed, will retry", "jobId", id, "error", err)
			continue
		}
		if ctx.Err() != nil {
			// Response landed after teardown; discard it.
			return
		}

		finished, notify := p.tracked.replace(*fetched)
		if finished {
			p.recordFinished(ctx, fetched.Status)
			p.logger.Info("Job reached terminal state", "jobId", fetched.ID, "status", fetched.Status)
		}
		if notify && p.onComplete != nil {
			p.onComplete(fetched.ID, fetched.Result)
		}
	}
}

// adoptListing fetches the full job listing and adopts unknown jobs.
// Already-tracked ids win over their listed copies.
func (p *Poller) adoptListing(ctx context.Context) {
	jobs, err := p.fetcher.ListJobs(ctx)
	if err != nil {
		p.logger.Debug("Job listing failed, will retry", "error", err)
		if p.metrics != nil {
			p.metrics.RecordPollError(ctx)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	adopted := 0
	for _, j := range jobs {
		if p.tracked.adopt(j) {
			adopted++
			if p.metrics != nil {
				p.metrics.RecordJobTracked(ctx)
			}
		}
	}
	if adopted > 0 {
		p.logger.Info("Adopted jobs from server listing", "count", adopted)
	}
}

func (p *Poller) recordFinished(ctx context.Context, s Status) {
	if p.metrics == nil {
		return
	}
	outcome := "completed"
	if s == StatusFailed {
		outcome = "failed"
	}
	p.metrics.RecordJobFinished(ctx, outcome)
}

// Jobs returns all tracked jobs in display order.
func (p *Poller) Jobs() []Job {
	jobs := p.tracked.snapshot()
	SortForDisplay(jobs)
	return jobs
}

// Job returns a single tracked job by id.
func (p *Poller) Job(id string) (Job, bool) {
	return p.tracked.get(id)
}

// Active reports whether the polling cycle is currently running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// ClearCompleted removes terminal jobs from the tracked set. This is the
// only eviction path; the reconciliation cycle never removes records.
func (p *Poller) ClearCompleted() int {
	removed := p.tracked.clearTerminal()
	if removed > 0 && p.metrics != nil {
		p.metrics.RecordJobsCleared(context.Background(), removed)
	}
	return removed
}

// Close stops the polling cycle and waits for any in-flight pass to wind
// down. No network activity originates from the poller afterwards.
func (p *Poller) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel := p.cancelLoop
	p.cancelLoop = nil
	p.active = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}
