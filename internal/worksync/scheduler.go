// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package worksync

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/clockutil"
	"github.com/taibuivan/yomira/internal/platform/constants"
)

// Scheduler is the DeferredScheduler of §4.7: owns the durable
// SyncQueueEntry table, tracks reads, and drains the queue at a slow,
// blocking-safe pace on a nightly trigger (or on demand).
type Scheduler struct {
	queue        QueueStore
	catalogStore catalog.Store
	jobs         catalog.JobEnqueuer

	triggerHour   int
	triggerMinute int
	rateInterval  time.Duration

	clock  clockutil.Clock
	logger *slog.Logger

	mu          sync.Mutex
	lastRunDate string // "2006-01-02" of the last nightly pass, to run once/day

	done chan struct{}
	wg   sync.WaitGroup
}

// SchedulerConfig bundles Scheduler construction parameters, mirroring the
// MIDNIGHT_SYNC_* config keys of §6.
type SchedulerConfig struct {
	TriggerHour   int
	TriggerMinute int
	RateInterval  time.Duration
}

// NewScheduler constructs a [Scheduler]. jobs is typically an [*Engine],
// consumed here only through [catalog.JobEnqueuer] to avoid importing the
// concrete type.
func NewScheduler(queue QueueStore, catalogStore catalog.Store, jobs catalog.JobEnqueuer, cfg SchedulerConfig, clock clockutil.Clock, logger *slog.Logger) *Scheduler {
	interval := cfg.RateInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Scheduler{
		queue:         queue,
		catalogStore:  catalogStore,
		jobs:          jobs,
		triggerHour:   cfg.TriggerHour,
		triggerMinute: cfg.TriggerMinute,
		rateInterval:  interval,
		clock:         clock,
		logger:        logger,
		done:          make(chan struct{}),
	}
}

// TrackAccess satisfies [catalog.AccessTracker] (§4.7): idempotent upsert —
// insert at priority 0 / access_count 1 if absent; otherwise increment
// access_count, bump accessed_at, and reset a terminal entry to pending.
func (s *Scheduler) TrackAccess(ctx context.Context, bookID string) error {
	existing, err := s.queue.Get(ctx, bookID)
	if err != nil {
		return err
	}

	now := s.clock.Now()

	if existing == nil {
		return s.queue.Upsert(ctx, &QueueEntry{
			BookID:      bookID,
			AddedAt:     now,
			AccessedAt:  now,
			AccessCount: 1,
			Priority:    constants.PriorityUserAccess,
			Status:      QueuePending,
		})
	}

	existing.AccessCount++
	existing.AccessedAt = now
	if existing.Status == QueueComplete || existing.Status == QueueFailed {
		existing.Status = QueuePending
	}
	return s.queue.Upsert(ctx, existing)
}

// EnqueueUnfinishedBooks upserts a pending queue entry at
// [constants.PriorityNightly] for every book whose status is not
// "completed" (§4.7).
func (s *Scheduler) EnqueueUnfinishedBooks(ctx context.Context) error {
	books, err := s.catalogStore.ListUnfinishedBooks(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, book := range books {
		existing, err := s.queue.Get(ctx, book.BookID)
		if err != nil {
			s.logger.Warn("nightly_enqueue_lookup_failed", slog.String("book_id", book.BookID), slog.Any("error", err))
			continue
		}

		if existing == nil {
			existing = &QueueEntry{
				BookID:      book.BookID,
				AddedAt:     now,
				AccessedAt:  now,
				AccessCount: 0,
				Priority:    constants.PriorityNightly,
				Status:      QueuePending,
			}
		} else if existing.Status == QueueComplete || existing.Status == QueueFailed {
			existing.Status = QueuePending
		} else if existing.Status == QueueSyncing {
			continue // already in flight, leave it alone
		}

		if upsertErr := s.queue.Upsert(ctx, existing); upsertErr != nil {
			s.logger.Warn("nightly_enqueue_upsert_failed", slog.String("book_id", book.BookID), slog.Any("error", upsertErr))
		}
	}
	return nil
}

// ClearTerminal removes completed/failed entries to bound the table.
func (s *Scheduler) ClearTerminal(ctx context.Context) error {
	return s.queue.ClearTerminal(ctx)
}

// Run starts the minute-granularity wall-clock watcher (§4.7: "a background
// task wakes every minute, compares wall-clock to the trigger"). Returns
// immediately; call Stop to shut it down.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(1)
	go s.watch(ctx)
}

// Stop signals the wall-clock watcher to exit. The in-progress sync pass, if
// any, is allowed to finish its current entry (§5: "in-flight enqueues are
// not aborted").
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

func (s *Scheduler) watch(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(constants.SchedulerTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.maybeTrigger(ctx)
		}
	}
}

func (s *Scheduler) maybeTrigger(ctx context.Context) {
	now := s.clock.Now()
	if now.Hour() != s.triggerHour || now.Minute() != s.triggerMinute {
		return
	}

	today := now.Format("2006-01-02")

	s.mu.Lock()
	if s.lastRunDate == today {
		s.mu.Unlock()
		return
	}
	s.lastRunDate = today
	s.mu.Unlock()

	if err := s.RunSyncPass(ctx); err != nil {
		s.logger.Error("nightly_sync_pass_failed", slog.Any("error", err))
	}
}

// RunSyncPass executes the §4.7 sync pass: enqueue unfinished books, then
// drain pending entries in priority order, pacing enqueues by rateInterval.
// Interruptible between entries (§5); an in-flight enqueue is not aborted.
func (s *Scheduler) RunSyncPass(ctx context.Context) error {
	if err := s.EnqueueUnfinishedBooks(ctx); err != nil {
		return err
	}

	pending, err := s.queue.ListPending(ctx)
	if err != nil {
		return err
	}

	sortQueueEntries(pending)

	for _, entry := range pending {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		default:
		}

		entry.Status = QueueSyncing
		entry.LastAttempt = s.clock.Now()
		if err := s.queue.Upsert(ctx, entry); err != nil {
			s.logger.Warn("sync_pass_mark_syncing_failed", slog.String("book_id", entry.BookID), slog.Any("error", err))
			continue
		}

		if _, err := s.jobs.Enqueue(ctx, entry.BookID, entry.Priority); err != nil {
			s.logger.Warn("sync_pass_enqueue_failed", slog.String("book_id", entry.BookID), slog.Any("error", err))
			s.queue.UpdateStatus(ctx, entry.BookID, QueueFailed) //nolint:errcheck
			continue
		}

		select {
		case <-time.After(s.rateInterval):
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		}
	}

	return nil
}

// HandleJobComplete is registered with [Engine.SetOnComplete]: it mirrors a
// finished job's outcome onto that book's queue entry (§4.7 step 4). A job
// for a book with no queue entry (shouldn't normally happen, since every
// Enqueue path goes through TrackAccess or EnqueueUnfinishedBooks) is
// ignored.
func (s *Scheduler) HandleJobComplete(bookID string, state JobState, _ string) {
	ctx := context.Background()

	entry, err := s.queue.Get(ctx, bookID)
	if err != nil || entry == nil {
		return
	}

	switch state {
	case JobDone:
		entry.Status = QueueComplete
	case JobFailed:
		entry.Status = QueueFailed
	default:
		return
	}

	if err := s.queue.Upsert(ctx, entry); err != nil {
		s.logger.Warn("queue_entry_outcome_update_failed", slog.String("book_id", bookID), slog.Any("error", err))
	}
}

// sortQueueEntries orders pending entries by priority desc, access_count
// desc, accessed_at asc (§3 invariant I6).
func sortQueueEntries(entries []*QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.AccessedAt.Before(b.AccessedAt)
	})
}
