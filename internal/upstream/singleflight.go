// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/apperr"
)

// Gate guarantees at-most-one concurrent upstream fetch per fingerprint
// (§4.4). The wrapped fetch runs against a context merged from every waiter
// currently attached to that fingerprint, not any single one of them: it
// stays alive as long as at least one caller is still waiting, and is
// cancelled the moment the last one departs — cancellation of all waiters
// cancels the underlying fetch, but one waiter cancelling while another
// still waits leaves the shared fetch (and that other waiter's result)
// untouched.
type Gate struct {
	group singleflight.Group

	mu      sync.Mutex
	waiters map[string]*refCountedCtx
}

// NewGate constructs an empty [Gate].
func NewGate() *Gate {
	return &Gate{waiters: make(map[string]*refCountedCtx)}
}

// refCountedCtx derives a cancellable context shared by every waiter
// currently registered against one in-flight key. It cancels itself once the
// registered count drops to zero.
type refCountedCtx struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	count int
}

func newRefCountedCtx() *refCountedCtx {
	ctx, cancel := context.WithCancel(context.Background())
	return &refCountedCtx{ctx: ctx, cancel: cancel}
}

func (r *refCountedCtx) acquire() {
	r.mu.Lock()
	r.count++
	r.mu.Unlock()
}

// release drops this waiter's registration, cancelling the shared context
// once no waiter remains.
func (r *refCountedCtx) release() {
	r.mu.Lock()
	r.count--
	empty := r.count <= 0
	r.mu.Unlock()
	if empty {
		r.cancel()
	}
}

// Do runs fn at most once concurrently for key, fanning its result out to
// every caller waiting on the same key. fn receives a context that stays
// live until either it returns or every waiter registered for key has had
// its own ctx cancelled, whichever comes first.
func (g *Gate) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	g.mu.Lock()
	rc, ok := g.waiters[key]
	if !ok {
		rc = newRefCountedCtx()
		g.waiters[key] = rc
	}
	rc.acquire()
	g.mu.Unlock()

	resultCh := g.group.DoChan(key, func() (any, error) {
		defer func() {
			g.mu.Lock()
			if g.waiters[key] == rc {
				delete(g.waiters, key)
			}
			g.mu.Unlock()
		}()
		return fn(rc.ctx)
	})

	select {
	case result := <-resultCh:
		rc.release()
		return result.Val, result.Err
	case <-ctx.Done():
		rc.release()
		return nil, apperr.Cancelled(ctx.Err())
	}
}

// GatedFetcher wraps a [catalog.Fetcher] so that concurrent callers
// requesting the same fingerprint share one in-flight upstream call.
type GatedFetcher struct {
	inner catalog.Fetcher
	gate  *Gate
}

// NewGatedFetcher constructs a [catalog.Fetcher] that coalesces concurrent
// fetches for the same fingerprint through inner.
func NewGatedFetcher(inner catalog.Fetcher, gate *Gate) catalog.Fetcher {
	return &GatedFetcher{inner: inner, gate: gate}
}

func (f *GatedFetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	value, err := f.gate.Do(ctx, catalog.FingerprintCategories(), func(ctx context.Context) (any, error) {
		return f.inner.FetchCategories(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*catalog.Category), nil
}

func (f *GatedFetcher) FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	key := catalog.FingerprintCategoryPage(categoryID, page)
	value, err := f.gate.Do(ctx, key, func(ctx context.Context) (any, error) {
		return f.inner.FetchCategoryBooks(ctx, categoryID, page)
	})
	if err != nil {
		return nil, err
	}
	return value.([]*catalog.BookSummary), nil
}

func (f *GatedFetcher) FetchBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	key := catalog.FingerprintBook(bookID)
	value, err := f.gate.Do(ctx, key, func(ctx context.Context) (any, error) {
		return f.inner.FetchBook(ctx, bookID)
	})
	if err != nil {
		return nil, err
	}
	return value.(*catalog.Book), nil
}

func (f *GatedFetcher) FetchChapterPage(ctx context.Context, bookID string, page int) (*catalog.ChapterPage, error) {
	key := catalog.FingerprintChapterPage(bookID, page)
	value, err := f.gate.Do(ctx, key, func(ctx context.Context) (any, error) {
		return f.inner.FetchChapterPage(ctx, bookID, page)
	})
	if err != nil {
		return nil, err
	}
	return value.(*catalog.ChapterPage), nil
}

func (f *GatedFetcher) FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	key := catalog.FingerprintChapterContent(bookID, chapterKey)
	value, err := f.gate.Do(ctx, key, func(ctx context.Context) (any, error) {
		return f.inner.FetchChapterContent(ctx, bookID, chapterKey)
	})
	if err != nil {
		return nil, err
	}
	return value.(*catalog.ChapterContent), nil
}
