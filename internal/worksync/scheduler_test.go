// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package worksync_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/clockutil"
	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/worksync"
)

// memQueueStore is an in-memory [worksync.QueueStore] test double.
type memQueueStore struct {
	mu      sync.Mutex
	entries map[string]*worksync.QueueEntry
}

func newMemQueueStore() *memQueueStore {
	return &memQueueStore{entries: make(map[string]*worksync.QueueEntry)}
}

func (s *memQueueStore) Get(ctx context.Context, bookID string) (*worksync.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[bookID]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (s *memQueueStore) Upsert(ctx context.Context, entry *worksync.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.BookID] = &cp
	return nil
}

func (s *memQueueStore) ListPending(ctx context.Context) ([]*worksync.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*worksync.QueueEntry
	for _, entry := range s.entries {
		if entry.Status == worksync.QueuePending {
			cp := *entry
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memQueueStore) UpdateStatus(ctx context.Context, bookID string, status worksync.QueueStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[bookID]; ok {
		entry.Status = status
	}
	return nil
}

func (s *memQueueStore) ClearTerminal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.entries {
		if entry.Status == worksync.QueueComplete || entry.Status == worksync.QueueFailed {
			delete(s.entries, id)
		}
	}
	return nil
}

// stubCatalogStore implements [catalog.Store] with only ListUnfinishedBooks
// behaving meaningfully; every other method is unreachable from Scheduler
// and returns a zero value.
type stubCatalogStore struct {
	unfinished []*catalog.Book
}

func (s *stubCatalogStore) ListCategories(ctx context.Context) ([]*catalog.Category, error) { return nil, nil }
func (s *stubCatalogStore) UpsertCategory(ctx context.Context, c *catalog.Category) error     { return nil }
func (s *stubCatalogStore) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	return nil, nil
}
func (s *stubCatalogStore) UpsertBook(ctx context.Context, book *catalog.Book) error { return nil }
func (s *stubCatalogStore) ListBooksInCategory(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	return nil, nil
}
func (s *stubCatalogStore) LinkBookToCategory(ctx context.Context, categoryID, bookID string) error {
	return nil
}
func (s *stubCatalogStore) ListUnfinishedBooks(ctx context.Context) ([]*catalog.Book, error) {
	return s.unfinished, nil
}
func (s *stubCatalogStore) GetChapterRef(ctx context.Context, bookID string, number int) (*catalog.Chapter, error) {
	return nil, nil
}
func (s *stubCatalogStore) ListChapters(ctx context.Context, bookID string) ([]*catalog.Chapter, error) {
	return nil, nil
}
func (s *stubCatalogStore) UpsertChaptersBatch(ctx context.Context, chapters []*catalog.Chapter) (int, error) {
	return 0, nil
}
func (s *stubCatalogStore) GetContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	return nil, nil
}
func (s *stubCatalogStore) UpsertContent(ctx context.Context, content *catalog.ChapterContent) error {
	return nil
}
func (s *stubCatalogStore) DeleteBookState(ctx context.Context, bookID string) error { return nil }
func (s *stubCatalogStore) CountBooks(ctx context.Context) (int, error)              { return 0, nil }
func (s *stubCatalogStore) CountChapters(ctx context.Context) (int, error)           { return 0, nil }
func (s *stubCatalogStore) ClearAllContent(ctx context.Context) error                { return nil }

// recordingJobEnqueuer implements [catalog.JobEnqueuer], recording every
// enqueue call in order.
type recordingJobEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingJobEnqueuer) Enqueue(ctx context.Context, bookID string, priority int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, bookID)
	return "job-" + bookID, nil
}

func (r *recordingJobEnqueuer) callOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	copy(out, r.calls)
	return out
}

func newTestScheduler(queue *memQueueStore, store catalog.Store, jobs catalog.JobEnqueuer, clock clockutil.Clock) *worksync.Scheduler {
	return worksync.NewScheduler(queue, store, jobs, worksync.SchedulerConfig{RateInterval: time.Millisecond}, clock, testLogger())
}

/*
TestScheduler_TrackAccessInsertsNewEntry verifies the first access to a
book creates a pending entry at PriorityUserAccess with access_count 1.
*/
func TestScheduler_TrackAccessInsertsNewEntry(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, &recordingJobEnqueuer{}, clock)

	require.NoError(t, scheduler.TrackAccess(context.Background(), "b1"))

	entry, err := queue.Get(context.Background(), "b1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.AccessCount)
	assert.Equal(t, constants.PriorityUserAccess, entry.Priority)
	assert.Equal(t, worksync.QueuePending, entry.Status)
}

/*
TestScheduler_TrackAccessIncrementsExisting verifies repeated access bumps
access_count and accessed_at.
*/
func TestScheduler_TrackAccessIncrementsExisting(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, &recordingJobEnqueuer{}, clock)

	require.NoError(t, scheduler.TrackAccess(context.Background(), "b1"))
	clock.Advance(time.Hour)
	require.NoError(t, scheduler.TrackAccess(context.Background(), "b1"))

	entry, err := queue.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, entry.AccessCount)
	assert.Equal(t, clock.Now(), entry.AccessedAt)
}

/*
TestScheduler_TrackAccessResetsTerminalEntryToPending verifies accessing a
book whose entry is already completed/failed re-queues it.
*/
func TestScheduler_TrackAccessResetsTerminalEntryToPending(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Now())
	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{
		BookID: "b1", Status: worksync.QueueComplete, AccessCount: 3,
	}))
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, &recordingJobEnqueuer{}, clock)

	require.NoError(t, scheduler.TrackAccess(context.Background(), "b1"))

	entry, err := queue.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, worksync.QueuePending, entry.Status)
	assert.Equal(t, 4, entry.AccessCount)
}

/*
TestScheduler_EnqueueUnfinishedBooksSkipsInFlightEntries verifies a book
already marked syncing is left untouched by the nightly sweep.
*/
func TestScheduler_EnqueueUnfinishedBooksSkipsInFlightEntries(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Now())
	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{
		BookID: "syncing-book", Status: worksync.QueueSyncing, Priority: 1,
	}))
	store := &stubCatalogStore{unfinished: []*catalog.Book{{BookID: "syncing-book"}, {BookID: "new-book"}}}
	scheduler := newTestScheduler(queue, store, &recordingJobEnqueuer{}, clock)

	require.NoError(t, scheduler.EnqueueUnfinishedBooks(context.Background()))

	unchanged, err := queue.Get(context.Background(), "syncing-book")
	require.NoError(t, err)
	assert.Equal(t, worksync.QueueSyncing, unchanged.Status)
	assert.Equal(t, 1, unchanged.Priority, "an in-flight entry's priority must not be overwritten")

	fresh, err := queue.Get(context.Background(), "new-book")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, constants.PriorityNightly, fresh.Priority)
	assert.Equal(t, worksync.QueuePending, fresh.Status)
}

/*
TestScheduler_RunSyncPassDrainsInPriorityOrder verifies entries are
enqueued to the job engine highest-priority first, matching invariant I6.
*/
func TestScheduler_RunSyncPassDrainsInPriorityOrder(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Now())
	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{BookID: "low", Priority: 1, Status: worksync.QueuePending}))
	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{BookID: "high", Priority: 10, Status: worksync.QueuePending}))

	jobs := &recordingJobEnqueuer{}
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, jobs, clock)

	require.NoError(t, scheduler.RunSyncPass(context.Background()))

	assert.Equal(t, []string{"high", "low"}, jobs.callOrder())

	highEntry, err := queue.Get(context.Background(), "high")
	require.NoError(t, err)
	assert.Equal(t, worksync.QueueSyncing, highEntry.Status)
}

/*
TestScheduler_HandleJobCompleteMirrorsOutcome verifies a completed job
marks its queue entry completed, and a failed job marks it failed.
*/
func TestScheduler_HandleJobCompleteMirrorsOutcome(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Now())
	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{BookID: "b1", Status: worksync.QueueSyncing}))
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, &recordingJobEnqueuer{}, clock)

	scheduler.HandleJobComplete("b1", worksync.JobDone, "")
	entry, err := queue.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, worksync.QueueComplete, entry.Status)

	require.NoError(t, queue.Upsert(context.Background(), &worksync.QueueEntry{BookID: "b2", Status: worksync.QueueSyncing}))
	scheduler.HandleJobComplete("b2", worksync.JobFailed, "boom")
	entry2, err := queue.Get(context.Background(), "b2")
	require.NoError(t, err)
	assert.Equal(t, worksync.QueueFailed, entry2.Status)
}

/*
TestScheduler_HandleJobCompleteIgnoresUnknownBook verifies a job outcome
for a book with no queue entry is silently ignored rather than erroring.
*/
func TestScheduler_HandleJobCompleteIgnoresUnknownBook(t *testing.T) {
	queue := newMemQueueStore()
	clock := clockutil.NewControlled(time.Now())
	scheduler := newTestScheduler(queue, &stubCatalogStore{}, &recordingJobEnqueuer{}, clock)

	assert.NotPanics(t, func() {
		scheduler.HandleJobComplete("ghost-book", worksync.JobDone, "")
	})
}
