// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memCache is an in-memory [catalog.MemoryCache] test double with no real
// TTL expiry — freshness is whatever the test decides by calling Invalidate.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key catalog.Fingerprint) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.data[key]
	return value, ok, nil
}

func (c *memCache) Put(ctx context.Context, key catalog.Fingerprint, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Invalidate(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *memCache) Size(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.data)), nil
}

func (c *memCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	return nil
}

// memStore is an in-memory [catalog.Store] test double.
type memStore struct {
	mu       sync.Mutex
	books    map[string]*catalog.Book
	chapters map[string][]*catalog.Chapter
	content  map[string]*catalog.ChapterContent
}

func newMemStore() *memStore {
	return &memStore{
		books:    make(map[string]*catalog.Book),
		chapters: make(map[string][]*catalog.Chapter),
		content:  make(map[string]*catalog.ChapterContent),
	}
}

func (s *memStore) ListCategories(ctx context.Context) ([]*catalog.Category, error) { return nil, nil }
func (s *memStore) UpsertCategory(ctx context.Context, c *catalog.Category) error    { return nil }
func (s *memStore) GetBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.books[bookID], nil
}
func (s *memStore) UpsertBook(ctx context.Context, book *catalog.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *book
	s.books[book.BookID] = &cp
	return nil
}
func (s *memStore) ListBooksInCategory(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	return nil, nil
}
func (s *memStore) LinkBookToCategory(ctx context.Context, categoryID, bookID string) error {
	return nil
}
func (s *memStore) ListUnfinishedBooks(ctx context.Context) ([]*catalog.Book, error) { return nil, nil }
func (s *memStore) GetChapterRef(ctx context.Context, bookID string, number int) (*catalog.Chapter, error) {
	return nil, nil
}
func (s *memStore) ListChapters(ctx context.Context, bookID string) ([]*catalog.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chapters[bookID], nil
}
func (s *memStore) UpsertChaptersBatch(ctx context.Context, chapters []*catalog.Chapter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range chapters {
		s.chapters[ch.BookID] = append(s.chapters[ch.BookID], ch)
	}
	return len(chapters), nil
}
func (s *memStore) GetContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.content[bookID+":"+chapterKey], nil
}
func (s *memStore) UpsertContent(ctx context.Context, content *catalog.ChapterContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[content.BookID+":"+content.ChapterKey] = content
	return nil
}
func (s *memStore) DeleteBookState(ctx context.Context, bookID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chapters, bookID)
	return nil
}
func (s *memStore) CountBooks(ctx context.Context) (int, error)    { return len(s.books), nil }
func (s *memStore) CountChapters(ctx context.Context) (int, error) { return 0, nil }
func (s *memStore) ClearAllContent(ctx context.Context) error      { return nil }

// stubFetcher is an in-memory [catalog.Fetcher] test double.
type stubFetcher struct {
	mu           sync.Mutex
	calls        int
	book         *catalog.Book
	bookErr      error
	chapterPages map[int]*catalog.ChapterPage
	chapterErr   error
	content      *catalog.ChapterContent
	contentErr   error
}

func (f *stubFetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	return nil, nil
}
func (f *stubFetcher) FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	return nil, nil
}
func (f *stubFetcher) FetchBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.book, f.bookErr
}
func (f *stubFetcher) FetchChapterPage(ctx context.Context, bookID string, page int) (*catalog.ChapterPage, error) {
	if f.chapterErr != nil {
		return nil, f.chapterErr
	}
	return f.chapterPages[page], nil
}
func (f *stubFetcher) FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	return f.content, f.contentErr
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

/*
TestManager_GetBookInfo_MemoryHitSkipsStoreAndUpstream verifies a fresh
memory-cache entry satisfies the read without touching the store or the
fetcher.
*/
func TestManager_GetBookInfo_MemoryHitSkipsStoreAndUpstream(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	fetcher := &stubFetcher{book: &catalog.Book{BookID: "b1", Name: "From Upstream"}}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	cache.data[catalog.FingerprintBook("b1")] = []byte(`{"book_id":"b1","name":"From Memory"}`)

	book, err := manager.GetBookInfo(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "From Memory", book.Name)
	assert.Equal(t, 0, fetcher.callCount())
}

/*
TestManager_GetBookInfo_StoreHitPopulatesCacheWithoutUpstream verifies a
store hit on a memory miss is served from the store and backfills the
memory tier, without calling upstream.
*/
func TestManager_GetBookInfo_StoreHitPopulatesCacheWithoutUpstream(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	store.books["b1"] = &catalog.Book{BookID: "b1", Name: "From Store"}
	fetcher := &stubFetcher{book: &catalog.Book{BookID: "b1", Name: "From Upstream"}}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	book, err := manager.GetBookInfo(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "From Store", book.Name)
	assert.Equal(t, 0, fetcher.callCount())

	_, fresh, _ := cache.Get(context.Background(), catalog.FingerprintBook("b1"))
	assert.True(t, fresh, "store hit should backfill the memory tier")
}

/*
TestManager_GetBookInfo_FullMissFallsThroughToUpstream verifies a miss on
both memory and store falls through to the fetcher and persists the
result to both the store and the memory tier.
*/
func TestManager_GetBookInfo_FullMissFallsThroughToUpstream(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	fetcher := &stubFetcher{book: &catalog.Book{BookID: "b1", Name: "From Upstream"}}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	book, err := manager.GetBookInfo(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "From Upstream", book.Name)
	assert.Equal(t, 1, fetcher.callCount())

	stored, _ := store.GetBook(context.Background(), "b1")
	require.NotNil(t, stored)
	assert.Equal(t, "From Upstream", stored.Name)
}

/*
TestManager_GetBookInfo_UpstreamFailureWithoutStoreEntryReturnsError
verifies that when neither the memory tier nor the store holds the book
and the upstream fetch fails, the error reaches the caller (§4.5's
degraded-read path only applies when something is already cached/stored).
*/
func TestManager_GetBookInfo_UpstreamFailureWithoutStoreEntryReturnsError(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	fetcher := &stubFetcher{bookErr: errors.New("upstream unreachable")}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	// No store entry and a failing fetcher: the caller must see the error,
	// since there is nothing at all to degrade to.
	_, err := manager.GetBookInfo(context.Background(), "b1")
	assert.Error(t, err)
}

/*
TestManager_GetCategories_DegradesToStoreOnUpstreamFailure verifies a
populated store is returned when the upstream category fetch fails.
*/
func TestManager_GetCategories_DegradesToStoreOnUpstreamFailure(t *testing.T) {
	cache := newMemCache()
	store := &storeWithCategories{memStore: newMemStore(), categories: []*catalog.Category{{CategoryID: "c1", Name: "Fantasy"}}}
	fetcher := &stubFetcher{} // FetchCategories returns nil, nil by default — override below
	failingFetcher := &failingCategoryFetcher{stubFetcher: fetcher, err: errors.New("upstream down")}
	manager := catalog.NewManager(store, cache, failingFetcher, time.Minute, testLogger())

	categories, err := manager.GetCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Fantasy", categories[0].Name)
}

// storeWithCategories extends memStore so GetCategories' degraded path has
// something to fall back to.
type storeWithCategories struct {
	*memStore
	categories []*catalog.Category
}

func (s *storeWithCategories) ListCategories(ctx context.Context) ([]*catalog.Category, error) {
	return s.categories, nil
}

// failingCategoryFetcher overrides FetchCategories to always fail.
type failingCategoryFetcher struct {
	*stubFetcher
	err error
}

func (f *failingCategoryFetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	return nil, f.err
}

/*
TestManager_ReconcileAndPersist_InvalidatesBookCacheOnAdvance verifies
that reconciling a chapter fetch which advances the book's last-chapter
fields invalidates the book's memory-cache entry, so the next read picks
up the new chapter count.
*/
func TestManager_ReconcileAndPersist_InvalidatesBookCacheOnAdvance(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	store.books["b1"] = &catalog.Book{BookID: "b1", LastChapterNumber: 1}
	cache.data[catalog.FingerprintBook("b1")] = []byte(`{"book_id":"b1","last_chapter_number":1}`)

	fetcher := &stubFetcher{
		chapterPages: map[int]*catalog.ChapterPage{
			1: {Chapters: []*catalog.Chapter{{BookID: "b1", Number: 1}, {BookID: "b1", Number: 2}}, TotalPages: 1},
		},
	}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	_, err := manager.GetChapterList(context.Background(), "b1", 1, false)
	require.NoError(t, err)

	_, fresh, _ := cache.Get(context.Background(), catalog.FingerprintBook("b1"))
	assert.False(t, fresh, "advancing the book's last chapter must invalidate its cached metadata")

	updated, err := store.GetBook(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, updated.LastChapterNumber)
}

/*
TestManager_GetChapterContent_BypassCacheForcesUpstreamFetch verifies
bypassCache=true skips both the memory and store tiers even when they
hold a value.
*/
func TestManager_GetChapterContent_BypassCacheForcesUpstreamFetch(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	store.content["b1:1"] = &catalog.ChapterContent{BookID: "b1", ChapterKey: "1", Text: "stale cached text"}
	fetcher := &stubFetcher{content: &catalog.ChapterContent{BookID: "b1", ChapterKey: "1", Text: "fresh upstream text"}}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	content, err := manager.GetChapterContent(context.Background(), "b1", "1", true)
	require.NoError(t, err)
	assert.Equal(t, "fresh upstream text", content.Text)
}

/*
TestManager_InvalidateBook_DropsStoreAndEveryRelatedCacheKey verifies
InvalidateBook clears the book's chapter rows from the store and every
cache key under its book/chapters/content prefixes.
*/
func TestManager_InvalidateBook_DropsStoreAndEveryRelatedCacheKey(t *testing.T) {
	cache := newMemCache()
	store := newMemStore()
	store.chapters["b1"] = []*catalog.Chapter{{BookID: "b1", Number: 1}}
	cache.data[catalog.FingerprintBook("b1")] = []byte(`{}`)
	cache.data[catalog.FingerprintChapterPage("b1", 1)] = []byte(`[]`)
	cache.data[catalog.FingerprintChapterContent("b1", "1")] = []byte("text")
	fetcher := &stubFetcher{}
	manager := catalog.NewManager(store, cache, fetcher, time.Minute, testLogger())

	require.NoError(t, manager.InvalidateBook(context.Background(), "b1"))

	assert.Empty(t, cache.data)
	chapters, _ := store.ListChapters(context.Background(), "b1")
	assert.Empty(t, chapters)
}
