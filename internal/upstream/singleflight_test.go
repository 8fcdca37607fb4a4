// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/upstream"
)

// countingFetcher is a [catalog.Fetcher] test double that counts FetchBook
// calls and blocks until release is closed, so a test can observe several
// concurrent callers sharing one in-flight call.
type countingFetcher struct {
	calls   int32
	release chan struct{}
	book    *catalog.Book
	err     error
}

func (f *countingFetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	return nil, nil
}
func (f *countingFetcher) FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	return nil, nil
}

func (f *countingFetcher) FetchBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	atomic.AddInt32(&f.calls, 1)
	<-f.release
	return f.book, f.err
}

func (f *countingFetcher) FetchChapterPage(ctx context.Context, bookID string, page int) (*catalog.ChapterPage, error) {
	return nil, nil
}
func (f *countingFetcher) FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	return nil, nil
}

/*
TestGatedFetcher_CoalescesConcurrentFetchesForSameBook verifies that N
concurrent FetchBook calls for the same book ID result in exactly one
call to the inner fetcher, with every caller receiving the shared result.
*/
func TestGatedFetcher_CoalescesConcurrentFetchesForSameBook(t *testing.T) {
	inner := &countingFetcher{release: make(chan struct{}), book: &catalog.Book{BookID: "b1", Name: "Shared"}}
	gated := upstream.NewGatedFetcher(inner, upstream.NewGate())

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]*catalog.Book, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			book, err := gated.FetchBook(context.Background(), "b1")
			results[i] = book
			errs[i] = err
		}(i)
	}

	// Give every goroutine a chance to register with the singleflight group
	// before releasing the one real fetch.
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.calls))
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "Shared", results[i].Name)
	}
}

/*
TestGatedFetcher_SurvivingWaiterStillGetsResultAfterOthersCancel verifies
that when some callers cancel their context, a caller who stays gets the
fetch's result rather than an error, since the underlying fetch is never
tied to any single waiter's context.
*/
func TestGatedFetcher_SurvivingWaiterStillGetsResultAfterOthersCancel(t *testing.T) {
	inner := &countingFetcher{release: make(chan struct{}), book: &catalog.Book{BookID: "b1", Name: "Shared"}}
	gated := upstream.NewGatedFetcher(inner, upstream.NewGate())

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledErrCh := make(chan error, 1)
	go func() {
		_, err := gated.FetchBook(cancelCtx, "b1")
		cancelledErrCh <- err
	}()

	survivorCh := make(chan *catalog.Book, 1)
	go func() {
		book, _ := gated.FetchBook(context.Background(), "b1")
		survivorCh <- book
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-cancelledErrCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter never returned")
	}

	close(inner.release)

	select {
	case book := <-survivorCh:
		require.NotNil(t, book)
		assert.Equal(t, "Shared", book.Name)
	case <-time.After(time.Second):
		t.Fatal("surviving waiter never received the shared result")
	}
}

/*
TestGatedFetcher_PropagatesInnerError verifies an upstream failure is
fanned out to every waiter, not swallowed by the gate.
*/
func TestGatedFetcher_PropagatesInnerError(t *testing.T) {
	wantErr := errors.New("upstream unreachable")
	inner := &countingFetcher{release: make(chan struct{}), err: wantErr}
	close(inner.release)
	gated := upstream.NewGatedFetcher(inner, upstream.NewGate())

	_, err := gated.FetchBook(context.Background(), "b1")
	assert.ErrorIs(t, err, wantErr)
}

// ctxAwareFetcher is a [catalog.Fetcher] test double whose FetchBook blocks
// on its context instead of a release channel, so a test can observe
// whether the shared fetch's own context was actually cancelled.
type ctxAwareFetcher struct {
	cancelled chan struct{}
}

func (f *ctxAwareFetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	return nil, nil
}
func (f *ctxAwareFetcher) FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	return nil, nil
}
func (f *ctxAwareFetcher) FetchBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	<-ctx.Done()
	close(f.cancelled)
	return nil, ctx.Err()
}
func (f *ctxAwareFetcher) FetchChapterPage(ctx context.Context, bookID string, page int) (*catalog.ChapterPage, error) {
	return nil, nil
}
func (f *ctxAwareFetcher) FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	return nil, nil
}

/*
TestGatedFetcher_CancelsInnerFetchWhenEveryWaiterDeparts verifies that the
shared fetch's context stays alive while at least one waiter remains, and is
cancelled only once every waiter registered for that key has departed —
proving the fetch is not left running against a detached background context
forever.
*/
func TestGatedFetcher_CancelsInnerFetchWhenEveryWaiterDeparts(t *testing.T) {
	inner := &ctxAwareFetcher{cancelled: make(chan struct{})}
	gated := upstream.NewGatedFetcher(inner, upstream.NewGate())

	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())

	done1 := make(chan struct{})
	done2 := make(chan struct{})
	go func() {
		gated.FetchBook(ctx1, "b1")
		close(done1)
	}()
	go func() {
		gated.FetchBook(ctx2, "b1")
		close(done2)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel1()
	<-done1

	select {
	case <-inner.cancelled:
		t.Fatal("inner fetch was cancelled while a waiter was still attached")
	case <-time.After(30 * time.Millisecond):
	}

	cancel2()
	<-done2

	select {
	case <-inner.cancelled:
	case <-time.After(time.Second):
		t.Fatal("inner fetch was never cancelled after every waiter departed")
	}
}
