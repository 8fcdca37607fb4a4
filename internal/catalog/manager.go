// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog — [Manager] is the read-through facade described in §4.5:
the sole read path for every higher layer, composing [Store], [MemoryCache]
and the single-flight-gated [Fetcher] behind one algorithm.

Manager never talks to the upstream site directly — bypass/background
fetches still go through the injected [Fetcher], which is expected to
already be wrapped by [upstream.Gate] so concurrent callers for the same
fingerprint share one in-flight request.
*/
package catalog

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/taibuivan/yomira/internal/platform/apperr"
	"github.com/taibuivan/yomira/internal/platform/constants"
)

// Manager is the CacheManager of §4.5.
type Manager struct {
	store   Store
	cache   MemoryCache
	fetcher Fetcher
	access  AccessTracker
	jobs    JobEnqueuer

	ttl    time.Duration
	logger *slog.Logger
}

// NewManager constructs a [Manager]. access and jobs may be nil during
// construction and set later via [Manager.SetAccessTracker] /
// [Manager.SetJobEnqueuer] to break the startup cycle between Manager, the
// scheduler, and the job engine — see SPEC_FULL.md's wiring notes.
func NewManager(store Store, cache MemoryCache, fetcher Fetcher, ttl time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		cache:   cache,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
	}
}

// SetAccessTracker wires the component that records reads for the deferred
// scheduler. Must be called before [Manager.GetBookInfo] is exercised.
func (m *Manager) SetAccessTracker(access AccessTracker) { m.access = access }

// SetJobEnqueuer wires the component that schedules background syncs.
// Must be called before [Manager.GetBookInfo] is exercised.
func (m *Manager) SetJobEnqueuer(jobs JobEnqueuer) { m.jobs = jobs }

// # Categories

// GetCategories returns the cached category list, refreshing from the store
// then the upstream site on a miss.
func (m *Manager) GetCategories(ctx context.Context) ([]*Category, error) {
	fingerprint := FingerprintCategories()

	if cached, fresh, err := m.cache.Get(ctx, fingerprint); err == nil && fresh {
		var categories []*Category
		if err := json.Unmarshal(cached, &categories); err == nil {
			return categories, nil
		}
	}

	stored, storeErr := m.store.ListCategories(ctx)

	fetched, err := m.fetcher.FetchCategories(ctx)
	if err != nil {
		if len(stored) > 0 {
			m.logger.Warn("categories_degraded_read", slog.Any("error", err))
			return stored, nil
		}
		if storeErr != nil {
			return nil, storeErr
		}
		return nil, err
	}

	for _, category := range fetched {
		if upsertErr := m.store.UpsertCategory(ctx, category); upsertErr != nil {
			m.logger.Error("category_upsert_failed", slog.String("category_id", category.CategoryID), slog.Any("error", upsertErr))
		}
	}
	m.putJSON(ctx, fingerprint, fetched, m.ttl)

	return fetched, nil
}

// GetCategoryBooks returns one page of categoryID's book listing,
// read-through over the store then upstream (§6's `/categories/{cat}/books`).
// A successful upstream fetch links every returned book into the category
// junction and seeds a minimal Book row for any book not yet known.
func (m *Manager) GetCategoryBooks(ctx context.Context, categoryID string, page int) ([]*BookSummary, error) {
	fingerprint := FingerprintCategoryPage(categoryID, page)

	if cached, fresh, err := m.cache.Get(ctx, fingerprint); err == nil && fresh {
		var summaries []*BookSummary
		if err := json.Unmarshal(cached, &summaries); err == nil {
			return summaries, nil
		}
	}

	stored, storeErr := m.store.ListBooksInCategory(ctx, categoryID, page)

	fetched, err := m.fetcher.FetchCategoryBooks(ctx, categoryID, page)
	if err != nil {
		if len(stored) > 0 {
			m.logger.Warn("category_books_degraded_read", slog.String("category_id", categoryID), slog.Any("error", err))
			return stored, nil
		}
		if storeErr != nil {
			return nil, storeErr
		}
		return nil, err
	}

	for _, summary := range fetched {
		if existing, getErr := m.store.GetBook(ctx, summary.BookID); getErr == nil && existing == nil {
			if upsertErr := m.store.UpsertBook(ctx, &Book{
				BookID:            summary.BookID,
				PublicID:          summary.PublicID,
				Name:              summary.Name,
				Status:            summary.Status,
				LastChapterNumber: summary.LastChapterNumber,
				LastChapterTitle:  summary.LastChapterTitle,
			}); upsertErr != nil {
				m.logger.Error("category_book_seed_failed", slog.String("book_id", summary.BookID), slog.Any("error", upsertErr))
			}
		}
		if linkErr := m.store.LinkBookToCategory(ctx, categoryID, summary.BookID); linkErr != nil {
			m.logger.Error("category_book_link_failed", slog.String("book_id", summary.BookID), slog.Any("error", linkErr))
		}
	}
	m.putJSON(ctx, fingerprint, fetched, m.ttl)

	return fetched, nil
}

// # Books

// GetBookInfo returns the cached Book record for bookID, triggering a
// background refresh at [constants.PriorityUserAccess] without blocking the
// caller — the caller always receives whatever is currently cached (§4.5).
func (m *Manager) GetBookInfo(ctx context.Context, bookID string) (*Book, error) {
	if m.access != nil {
		if err := m.access.TrackAccess(ctx, bookID); err != nil {
			m.logger.Warn("track_access_failed", slog.String("book_id", bookID), slog.Any("error", err))
		}
	}

	book, err := m.readThroughBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	if m.jobs != nil {
		if _, enqueueErr := m.jobs.Enqueue(ctx, bookID, constants.PriorityUserAccess); enqueueErr != nil {
			m.logger.Warn("background_sync_enqueue_failed", slog.String("book_id", bookID), slog.Any("error", enqueueErr))
		}
	}

	return book, nil
}

func (m *Manager) readThroughBook(ctx context.Context, bookID string) (*Book, error) {
	fingerprint := FingerprintBook(bookID)

	if cached, fresh, err := m.cache.Get(ctx, fingerprint); err == nil && fresh {
		var book Book
		if err := json.Unmarshal(cached, &book); err == nil {
			return &book, nil
		}
	}

	stored, storeErr := m.store.GetBook(ctx, bookID)
	if storeErr == nil && stored != nil {
		m.putJSON(ctx, fingerprint, stored, m.ttl)
		return stored, nil
	}

	fetched, err := m.fetcher.FetchBook(ctx, bookID)
	if err != nil {
		if stored != nil {
			return stored, nil
		}
		return nil, err
	}

	if upsertErr := m.store.UpsertBook(ctx, fetched); upsertErr != nil {
		m.logger.Error("book_upsert_failed", slog.String("book_id", bookID), slog.Any("error", upsertErr))
	}
	m.putJSON(ctx, fingerprint, fetched, m.ttl)

	return fetched, nil
}

// # Chapters

// ChapterListResult is the response shape for [Manager.GetChapterList]:
// Degraded is set when a page of the remainder of an `all=true` fetch
// failed but the caller's requested page still succeeded (§4.5 phase 2).
type ChapterListResult struct {
	Chapters []*Chapter
	Degraded bool
}

// GetChapterList returns bookID's chapter list. When all is false, only the
// requested page is fetched; when true, the caller's page is fetched first
// (phase 1) and the remaining pages are then fetched one by one under the
// same fingerprint space (phase 2) within this same call, before it
// returns; nothing runs in the background. Phase 2 failures are non-fatal
// and are reported via Degraded.
func (m *Manager) GetChapterList(ctx context.Context, bookID string, page int, all bool) (*ChapterListResult, error) {
	firstPage, err := m.readThroughChapterPage(ctx, bookID, page)
	if err != nil {
		return nil, err
	}

	if !all {
		return &ChapterListResult{Chapters: firstPage.Chapters}, nil
	}

	all2, degraded := m.fetchRemainingPages(ctx, bookID, page, firstPage)
	return &ChapterListResult{Chapters: all2, Degraded: degraded}, nil
}

func (m *Manager) fetchRemainingPages(ctx context.Context, bookID string, firstPageNum int, first *ChapterPage) ([]*Chapter, bool) {
	pages := [][]*Chapter{first.Chapters}
	degraded := false

	if first.TotalPages > 1 {
		for page := 1; page <= first.TotalPages; page++ {
			if page == firstPageNum {
				continue
			}
			result, err := m.readThroughChapterPage(ctx, bookID, page)
			if err != nil {
				m.logger.Warn("chapter_page_fetch_degraded",
					slog.String("book_id", bookID), slog.Int("page", page), slog.Any("error", err))
				degraded = true
				continue
			}
			pages = append(pages, result.Chapters)
		}
	}

	merged := MergeChapters(pages...)
	m.reconcileAndPersist(ctx, bookID, merged)
	return merged, degraded
}

func (m *Manager) readThroughChapterPage(ctx context.Context, bookID string, page int) (*ChapterPage, error) {
	fingerprint := FingerprintChapterPage(bookID, page)

	if cached, fresh, err := m.cache.Get(ctx, fingerprint); err == nil && fresh {
		var chapters []*Chapter
		if err := json.Unmarshal(cached, &chapters); err == nil {
			return &ChapterPage{Chapters: chapters}, nil
		}
	}

	stored, storeErr := m.store.ListChapters(ctx, bookID)
	if storeErr == nil && len(stored) > 0 && page == 1 {
		m.putJSON(ctx, fingerprint, stored, m.ttl)
		return &ChapterPage{Chapters: stored}, nil
	}

	fetched, err := m.fetcher.FetchChapterPage(ctx, bookID, page)
	if err != nil {
		if storeErr == nil && len(stored) > 0 {
			return &ChapterPage{Chapters: stored}, nil
		}
		return nil, err
	}

	m.reconcileAndPersist(ctx, bookID, fetched.Chapters)
	m.putJSON(ctx, fingerprint, fetched.Chapters, m.ttl)

	return fetched, nil
}

// reconcileAndPersist applies [Reconcile] against the current book record
// and writes through both the store and the memory tier.
func (m *Manager) reconcileAndPersist(ctx context.Context, bookID string, fetched []*Chapter) {
	if len(fetched) == 0 {
		return
	}

	book, err := m.store.GetBook(ctx, bookID)
	if err != nil || book == nil {
		return
	}

	result := Reconcile(*book, fetched)

	if _, err := m.store.UpsertChaptersBatch(ctx, result.Chapters); err != nil {
		m.logger.Error("chapter_batch_upsert_failed", slog.String("book_id", bookID), slog.Any("error", err))
	}

	if result.Changed {
		if err := m.store.UpsertBook(ctx, &result.Book); err != nil {
			m.logger.Error("book_reconcile_upsert_failed", slog.String("book_id", bookID), slog.Any("error", err))
		}
		m.cache.Invalidate(ctx, FingerprintBook(bookID)) //nolint:errcheck
	}
}

// # Chapter Content

// GetChapterContent returns chapterKey's content for bookID, enriched with
// the chapter index's number/title/url/id (§6). bypassCache skips memory and
// store lookups entirely and forces an upstream fetch.
func (m *Manager) GetChapterContent(ctx context.Context, bookID, chapterKey string, bypassCache bool) (*ChapterContent, error) {
	fingerprint := FingerprintChapterContent(bookID, chapterKey)

	if !bypassCache {
		if cached, fresh, err := m.cache.Get(ctx, fingerprint); err == nil && fresh {
			var content ChapterContent
			if err := json.Unmarshal(cached, &content); err == nil {
				return &content, nil
			}
		}

		stored, err := m.store.GetContent(ctx, bookID, chapterKey)
		if err == nil && stored != nil {
			m.enrichChapterContent(ctx, stored)
			m.putJSON(ctx, fingerprint, stored, m.ttl)
			return stored, nil
		}
	}

	fetched, err := m.fetcher.FetchChapterContent(ctx, bookID, chapterKey)
	if err != nil {
		return nil, err
	}
	m.enrichChapterContent(ctx, fetched)

	if err := m.store.UpsertContent(ctx, fetched); err != nil {
		m.logger.Error("content_upsert_failed", slog.String("book_id", bookID), slog.String("chapter_key", chapterKey), slog.Any("error", err))
	}
	m.putJSON(ctx, fingerprint, fetched, m.ttl)

	return fetched, nil
}

// enrichChapterContent fills content's chapter-index metadata by
// cross-referencing the Chapter row for content.ChapterKey, when the key
// parses as a chapter number and that row exists. A miss (slug-addressed
// upstream, or a chapter not yet indexed) leaves the metadata fields zero
// rather than failing the request.
func (m *Manager) enrichChapterContent(ctx context.Context, content *ChapterContent) {
	number, err := strconv.Atoi(content.ChapterKey)
	if err != nil {
		return
	}

	ref, err := m.store.GetChapterRef(ctx, content.BookID, number)
	if err != nil || ref == nil {
		return
	}

	content.ChapterNumber = ref.Number
	content.Title = ref.Title
	content.URL = ref.UpstreamURL
	content.ChapterID = ref.PublicID
}

// # Invalidation

// InvalidateBook drops bookID's chapter and chapter-content rows from the
// store (the book row itself is kept) and every memory-tier key under the
// book's book/chapters/content prefixes. Used by force-resync.
func (m *Manager) InvalidateBook(ctx context.Context, bookID string) error {
	if err := m.store.DeleteBookState(ctx, bookID); err != nil {
		return err
	}

	prefixes := []string{
		FingerprintBook(bookID),
		"chapters:" + bookID,
		"content:" + bookID,
	}
	for _, prefix := range prefixes {
		if err := m.cache.Invalidate(ctx, prefix); err != nil {
			m.logger.Warn("cache_invalidate_failed", slog.String("prefix", prefix), slog.Any("error", err))
		}
	}
	return nil
}

// # worksync.BookSyncer implementation
//
// These two methods are what the job engine calls per §4.6's worker loop:
// (a) refresh book info, (b) fetch the full chapter list with
// reconciliation. Manager satisfies worksync.BookSyncer structurally.

// RefreshBookInfo re-fetches bookID's metadata from upstream, bypassing the
// memory and store tiers, and persists the result.
func (m *Manager) RefreshBookInfo(ctx context.Context, bookID string) error {
	fetched, err := m.fetcher.FetchBook(ctx, bookID)
	if err != nil {
		return err
	}
	if err := m.store.UpsertBook(ctx, fetched); err != nil {
		return apperr.StoreFatal(err)
	}
	m.putJSON(ctx, FingerprintBook(bookID), fetched, m.ttl)
	return nil
}

// SyncChapterList fetches every page of bookID's chapter index and applies
// reconciliation, satisfying the job engine's per-job contract.
func (m *Manager) SyncChapterList(ctx context.Context, bookID string) error {
	first, err := m.fetcher.FetchChapterPage(ctx, bookID, 1)
	if err != nil {
		return err
	}

	pages := [][]*Chapter{first.Chapters}
	for page := 2; page <= first.TotalPages; page++ {
		next, err := m.fetcher.FetchChapterPage(ctx, bookID, page)
		if err != nil {
			m.logger.Warn("sync_chapter_page_failed", slog.String("book_id", bookID), slog.Int("page", page), slog.Any("error", err))
			continue
		}
		pages = append(pages, next.Chapters)
	}

	merged := MergeChapters(pages...)
	m.reconcileAndPersist(ctx, bookID, merged)
	m.cache.Invalidate(ctx, "chapters:"+bookID) //nolint:errcheck

	return nil
}

// # Helpers

func (m *Manager) putJSON(ctx context.Context, key Fingerprint, value any, ttl time.Duration) {
	encoded, err := json.Marshal(value)
	if err != nil {
		m.logger.Error("cache_encode_failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := m.cache.Put(ctx, key, encoded, ttl); err != nil {
		m.logger.Warn("cache_put_failed", slog.String("key", key), slog.Any("error", err))
	}
}
