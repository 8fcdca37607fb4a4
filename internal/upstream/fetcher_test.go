// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira/internal/platform/apperr"
	"github.com/taibuivan/yomira/internal/upstream"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubParser is an [upstream.Parser] test double giving the test full
// control over blocked detection and decoded output, independent of any
// real markup convention.
type stubParser struct {
	blocked     bool
	book        *upstream.ParsedBook
	bookErr     error
	content     *upstream.ParsedContent
	contentErr  error
}

func (p *stubParser) IsBlocked(body []byte) bool { return p.blocked }
func (p *stubParser) ParseCategories(body []byte) ([]upstream.ParsedCategory, error) {
	return nil, nil
}
func (p *stubParser) ParseCategoryBooks(body []byte) ([]upstream.ParsedBookSummary, error) {
	return nil, nil
}
func (p *stubParser) ParseBook(body []byte) (*upstream.ParsedBook, error) { return p.book, p.bookErr }
func (p *stubParser) ParseChapterPage(body []byte) (*upstream.ParsedChapterPage, error) {
	return nil, nil
}
func (p *stubParser) ParseChapterContent(body []byte) (*upstream.ParsedContent, error) {
	return p.content, p.contentErr
}

func newFetcher(t *testing.T, server *httptest.Server, parser upstream.Parser) *upstream.Fetcher {
	t.Helper()
	f, err := upstream.New(upstream.Config{BaseURL: server.URL, RPS: 100, Burst: 10}, parser, discardLogger())
	require.NoError(t, err)
	return f
}

/*
TestFetcher_FetchBook_HappyPath verifies a 200 response is decoded through
the parser into a catalog.Book.
*/
func TestFetcher_FetchBook_HappyPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>book page</html>")
	}))
	defer server.Close()

	parser := &stubParser{book: &upstream.ParsedBook{ID: "b1", Name: "Moonlit Sonata"}}
	fetcher := newFetcher(t, server, parser)

	book, err := fetcher.FetchBook(t.Context(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Moonlit Sonata", book.Name)
}

/*
TestFetcher_FetchBook_MissingNameIsInvalid verifies a parsed book with an
empty name is rejected as UPSTREAM_INVALID rather than cached as-is.
*/
func TestFetcher_FetchBook_MissingNameIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html></html>")
	}))
	defer server.Close()

	parser := &stubParser{book: &upstream.ParsedBook{ID: "b1", Name: ""}}
	fetcher := newFetcher(t, server, parser)

	_, err := fetcher.FetchBook(t.Context(), "b1")
	require.Error(t, err)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UPSTREAM_INVALID", appErr.Code)
}

/*
TestFetcher_Get_RetriesOn500ThenSucceeds verifies a 500 response is
retried and a later attempt's success is returned to the caller.
*/
func TestFetcher_Get_RetriesOn500ThenSucceeds(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, "<html>ok</html>")
	}))
	defer server.Close()

	parser := &stubParser{book: &upstream.ParsedBook{ID: "b1", Name: "Recovered"}}
	fetcher := newFetcher(t, server, parser)

	book, err := fetcher.FetchBook(t.Context(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Recovered", book.Name)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

/*
TestFetcher_Get_DoesNotRetry404 verifies a 404 is returned immediately as
NotFound rather than exhausting all retry attempts.
*/
func TestFetcher_Get_DoesNotRetry404(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := newFetcher(t, server, &stubParser{})

	_, err := fetcher.FetchBook(t.Context(), "missing-book")
	require.Error(t, err)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

/*
TestFetcher_Get_TooManyRequestsCarriesRetryAfter verifies a 429 response's
Retry-After header is surfaced on the resulting error.
*/
func TestFetcher_Get_TooManyRequestsCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	fetcher := newFetcher(t, server, &stubParser{})

	_, err := fetcher.FetchBook(t.Context(), "b1")
	require.Error(t, err)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UPSTREAM_RATE_LIMITED", appErr.Code)
	assert.Contains(t, appErr.Message, "30")
}

/*
TestFetcher_Get_BlockedPageIsDetectedBeforeParsing verifies a response the
parser flags as blocked never reaches ParseBook and yields
UPSTREAM_BLOCKED.
*/
func TestFetcher_Get_BlockedPageIsDetectedBeforeParsing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>are you human?</html>")
	}))
	defer server.Close()

	parser := &stubParser{blocked: true, book: &upstream.ParsedBook{ID: "b1", Name: "should never surface"}}
	fetcher := newFetcher(t, server, parser)

	_, err := fetcher.FetchBook(t.Context(), "b1")
	require.Error(t, err)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UPSTREAM_BLOCKED", appErr.Code)
}

/*
TestFetcher_Get_NoProxyHostBypassesBlockedDetector verifies a host listed
in NoProxy skips the blocked-page check, even when the parser flags the
body as blocked.
*/
func TestFetcher_Get_NoProxyHostBypassesBlockedDetector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>are you human?</html>")
	}))
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	parser := &stubParser{blocked: true, book: &upstream.ParsedBook{ID: "b1", Name: "Bypassed"}}
	fetcher, err := upstream.New(upstream.Config{BaseURL: server.URL, NoProxy: []string{host}, RPS: 100, Burst: 10}, parser, discardLogger())
	require.NoError(t, err)

	book, err := fetcher.FetchBook(t.Context(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "Bypassed", book.Name)
}

/*
TestFetcher_FetchChapterContent_TooShortIsInvalid verifies content shorter
than the minimum length is rejected rather than cached.
*/
func TestFetcher_FetchChapterContent_TooShortIsInvalid(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>chapter</html>")
	}))
	defer server.Close()

	parser := &stubParser{content: &upstream.ParsedContent{Text: strings.Repeat("x", 10)}}
	fetcher := newFetcher(t, server, parser)

	_, err := fetcher.FetchChapterContent(t.Context(), "b1", "1")
	require.Error(t, err)
	var appErr *apperr.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UPSTREAM_INVALID", appErr.Code)
}
