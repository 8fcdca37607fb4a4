// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package worksync

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taibuivan/yomira/internal/platform/apperr"
	"github.com/taibuivan/yomira/internal/platform/clockutil"
	"github.com/taibuivan/yomira/internal/platform/constants"
)

// historyCap bounds the terminal-job ring buffer so a long-lived process
// never accumulates unbounded history.
const historyCap = 500

// shutdownGrace is how long a worker is given to finish its current job
// once Stop is called (§4.6: "bounded grace window ≈5s").
const shutdownGrace = 5 * time.Second

// storeRetryBackoff is the pause before a job step is retried after a store
// error (§4.6: "Store errors during a job are retried once; repeated store
// errors fail the job but keep the worker alive").
const storeRetryBackoff = 500 * time.Millisecond

// CacheInvalidator drops a book's cached state, consumed only by
// [Engine.ForceResync]. Satisfied structurally by [catalog.Manager].
type CacheInvalidator interface {
	InvalidateBook(ctx context.Context, bookID string) error
}

// Engine is the JobEngine of §4.6: a priority queue of SyncBook jobs drained
// by a fixed pool of workers, with dedup and per-worker rate limiting.
type Engine struct {
	syncer      BookSyncer
	invalidator CacheInvalidator
	clock       clockutil.Clock
	logger      *slog.Logger

	workers      int
	rateInterval time.Duration
	queue        *jobQueue

	mu          sync.Mutex
	active      map[string]*Job
	recentDone  map[string]time.Time // bookID -> completion time, for dedup horizon
	history     []*Job               // bounded ring, most recent last
	completedN  int64
	failedN     int64
	running     bool

	onComplete func(bookID string, state JobState, errMsg string)

	done chan struct{}
	wg   sync.WaitGroup
}

// Config bundles Engine construction parameters.
type Config struct {
	Workers      int
	RateInterval time.Duration // minimum spacing between job starts, per worker
}

// NewEngine constructs an [Engine] backed by syncer. invalidator may be nil;
// [Engine.ForceResync] with clearCache=true then becomes a no-op for the
// cache-clear step (still enqueues the resync job).
func NewEngine(syncer BookSyncer, invalidator CacheInvalidator, cfg Config, clock clockutil.Clock, logger *slog.Logger) *Engine {
	workers := cfg.Workers
	if workers <= 0 {
		workers = constants.DefaultJobWorkers
	}
	interval := cfg.RateInterval
	if interval <= 0 {
		interval = time.Duration(constants.DefaultJobRateLimitSeconds * float64(time.Second))
	}

	return &Engine{
		syncer:       syncer,
		invalidator:  invalidator,
		clock:        clock,
		logger:       logger,
		workers:      workers,
		rateInterval: interval,
		queue:        newJobQueue(),
		active:       make(map[string]*Job),
		recentDone:   make(map[string]time.Time),
		done:         make(chan struct{}),
	}
}

// SetOnComplete registers a callback invoked once per terminal job,
// regardless of whether it was enqueued by [Engine.Enqueue] or
// [Engine.ForceResync]. Used by [Scheduler] to mark its SyncQueueEntry rows
// completed/failed per §4.7 step 4. Must be called before Start.
func (e *Engine) SetOnComplete(fn func(bookID string, state JobState, errMsg string)) {
	e.onComplete = fn
}

// Start launches the worker pool. Must be called once before Enqueue.
func (e *Engine) Start() {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.runWorkerSupervised()
	}
}

// Stop signals every worker to finish its current job and exit, waiting up
// to [shutdownGrace] before returning.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()

	close(e.done)

	waited := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(shutdownGrace):
		e.logger.Warn("job_engine_shutdown_grace_exceeded")
	}
}

// Enqueue schedules a SyncBook job for bookID, satisfying
// [catalog.JobEnqueuer]. When an active job already exists for bookID, its
// id is returned; when a successful completion is within
// [constants.JobCompletionHorizon], an empty id is returned. Both suppressed
// cases return a nil error.
func (e *Engine) Enqueue(ctx context.Context, bookID string, priority int) (string, error) {
	return e.enqueue(bookID, priority, true)
}

func (e *Engine) enqueue(bookID string, priority int, dedup bool) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dedup {
		if existing, ok := e.active[bookID]; ok {
			return existing.ID, nil
		}
		if completedAt, ok := e.recentDone[bookID]; ok {
			if e.clock.Now().Sub(completedAt) < constants.JobCompletionHorizon {
				return "", nil
			}
			delete(e.recentDone, bookID)
		}
	}

	job := &Job{
		ID:         uuid.NewString(),
		BookID:     bookID,
		Priority:   priority,
		EnqueuedAt: e.clock.Now(),
		State:      JobQueued,
	}
	e.queue.push(job)
	return job.ID, nil
}

// ForceResync is the admin force-resync operation (§4.6, §8 scenario 5):
// priority must be ≥ [constants.PriorityManualTrigger]. When an active job
// already covers bookID, no second job is started — the caller should treat
// this as "already_syncing" per §7's HTTP mapping.
func (e *Engine) ForceResync(ctx context.Context, bookID string, priority int, clearCache bool) (jobID string, alreadySyncing bool, err error) {
	if priority < constants.PriorityManualTrigger {
		priority = constants.PriorityManualTrigger
	}

	e.mu.Lock()
	if existing, ok := e.active[bookID]; ok {
		e.mu.Unlock()
		return existing.ID, true, nil
	}
	e.mu.Unlock()

	if clearCache && e.invalidator != nil {
		if invalidateErr := e.invalidator.InvalidateBook(ctx, bookID); invalidateErr != nil {
			return "", false, invalidateErr
		}
	}

	id, _ := e.enqueue(bookID, priority, false)
	return id, false, nil
}

// Stats reports the snapshot described by §4.6's stats() contract.
type Stats struct {
	QueueSize      int      `json:"queue_size"`
	ActiveIDs      []string `json:"active_ids"`
	CompletedCount int64    `json:"completed_count"`
	FailedCount    int64    `json:"failed_count"`
	WorkerCount    int      `json:"worker_count"`
	Running        bool     `json:"running"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.active))
	for bookID := range e.active {
		ids = append(ids, bookID)
	}

	return Stats{
		QueueSize:      e.queue.len(),
		ActiveIDs:      ids,
		CompletedCount: atomic.LoadInt64(&e.completedN),
		FailedCount:    atomic.LoadInt64(&e.failedN),
		WorkerCount:    e.workers,
		Running:        e.running,
	}
}

// History returns a copy of the bounded terminal-job ring buffer, most
// recent last.
func (e *Engine) History() []*Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*Job, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory empties the terminal-job ring buffer.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}

// # Worker loop

func (e *Engine) runWorkerSupervised() {
	defer e.wg.Done()
	for {
		crashed := e.runWorker()
		if !crashed {
			return
		}
		e.logger.Error("job_worker_panicked_restarting")
		select {
		case <-e.done:
			return
		default:
		}
	}
}

// runWorker drains jobs until done is closed or it panics (reported via the
// bool return so the supervisor can restart it, per §4.6's "worker that
// panics unexpectedly is restarted by the pool supervisor").
func (e *Engine) runWorker() (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
		}
	}()

	for {
		job := e.queue.pop(e.done)
		if job == nil {
			return false
		}

		e.runJob(job)

		select {
		case <-e.done:
			return false
		case <-time.After(e.rateInterval):
		}
	}
}

// runSyncerStep runs step once, and if it fails with a store-classified
// error ([apperr.StoreBusy] or [apperr.StoreFatal]) waits storeRetryBackoff
// and runs it exactly once more before giving up. Upstream errors
// (UPSTREAM_*) are never retried here — the fetcher already exhausted its
// own retry budget per §4.3 before returning one.
func (e *Engine) runSyncerStep(ctx context.Context, bookID, stepName string, step func(context.Context, string) error) error {
	err := step(ctx, bookID)
	if err == nil || !isStoreError(err) {
		return err
	}

	e.logger.Warn("sync_job_store_error_retrying", slog.String("book_id", bookID), slog.String("step", stepName), slog.Any("error", err))

	select {
	case <-time.After(storeRetryBackoff):
	case <-ctx.Done():
		return err
	}

	return step(ctx, bookID)
}

func isStoreError(err error) bool {
	appErr := apperr.As(err)
	return appErr != nil && (appErr.Code == "STORE_BUSY" || appErr.Code == "STORE_FATAL")
}

func (e *Engine) runJob(job *Job) {
	e.mu.Lock()
	job.State = JobActive
	e.active[job.BookID] = job
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-e.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer cancel()

	err := e.runSyncerStep(ctx, job.BookID, "refresh_book_info", e.syncer.RefreshBookInfo)
	if err == nil {
		err = e.runSyncerStep(ctx, job.BookID, "sync_chapter_list", e.syncer.SyncChapterList)
	}

	e.mu.Lock()

	delete(e.active, job.BookID)

	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		atomic.AddInt64(&e.failedN, 1)
		e.logger.Warn("sync_job_failed", slog.String("book_id", job.BookID), slog.Any("error", err))
	} else {
		job.State = JobDone
		atomic.AddInt64(&e.completedN, 1)
		e.recentDone[job.BookID] = e.clock.Now()
	}

	e.history = append(e.history, job)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}

	onComplete := e.onComplete
	e.mu.Unlock()

	if onComplete != nil {
		onComplete(job.BookID, job.State, job.Error)
	}
}
