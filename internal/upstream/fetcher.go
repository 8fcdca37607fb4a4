// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/apperr"
	"github.com/taibuivan/yomira/internal/platform/ratelimit"
)

const (
	// minContentLength is the validation threshold from §4.3: chapter
	// bodies shorter than this are treated as a parsing failure, not a
	// legitimately short chapter.
	minContentLength = 50

	perAttemptTimeout = 30 * time.Second
	maxAttempts       = 3
	baseBackoff       = 1 * time.Second

	// rateLimitWidenFactor scales a host's allowed rate down on a 429 (§4.3,
	// §7: "RateLimiter widens its interval adaptively").
	rateLimitWidenFactor = 0.5
)

// Fetcher implements [catalog.Fetcher] against the live upstream site. It
// retries network errors and 5xx responses with exponential backoff
// (at most 3 attempts, waiting 1s and then 2s between them), treats 4xx
// other than 429 as
// non-retryable, and detects interception/challenge pages before handing a
// response to the [Parser].
type Fetcher struct {
	httpClient   *http.Client
	baseURL      *url.URL
	parser       Parser
	limiter      *ratelimit.HostLimiter
	noProxyHosts map[string]struct{}
	logger       *slog.Logger
}

// Config holds the construction parameters for a [Fetcher].
type Config struct {
	BaseURL string
	// NoProxy lists upstream hosts that bypass the blocked-page detector —
	// operator-confirmed mirrors/proxies that never serve the anti-bot
	// challenge page the real catalog host does (§6).
	NoProxy []string
	RPS     float64
	Burst   int
}

// New constructs a [Fetcher] against cfg.BaseURL, using parser to decode
// responses and limiter to throttle per-host request rate.
func New(cfg Config, parser Parser, logger *slog.Logger) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL: %w", err)
	}

	noProxyHosts := make(map[string]struct{}, len(cfg.NoProxy))
	for _, host := range cfg.NoProxy {
		noProxyHosts[host] = struct{}{}
	}

	return &Fetcher{
		httpClient:   &http.Client{Timeout: perAttemptTimeout},
		baseURL:      parsed,
		parser:       parser,
		limiter:      ratelimit.NewHostLimiter(cfg.RPS, cfg.Burst),
		noProxyHosts: noProxyHosts,
		logger:       logger,
	}, nil
}

// # catalog.Fetcher

func (f *Fetcher) FetchCategories(ctx context.Context) ([]*catalog.Category, error) {
	body, err := f.get(ctx, "/")
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseCategories(body)
	if err != nil {
		return nil, apperr.UpstreamInvalid("categories: " + err.Error())
	}

	categories := make([]*catalog.Category, 0, len(parsed))
	for _, p := range parsed {
		categories = append(categories, &catalog.Category{
			CategoryID:  p.ID,
			Name:        p.Name,
			UpstreamURL: p.URL,
		})
	}
	return categories, nil
}

func (f *Fetcher) FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error) {
	body, err := f.get(ctx, fmt.Sprintf("/category/%s?page=%d", categoryID, page))
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseCategoryBooks(body)
	if err != nil {
		return nil, apperr.UpstreamInvalid("category books: " + err.Error())
	}

	summaries := make([]*catalog.BookSummary, 0, len(parsed))
	for _, p := range parsed {
		summaries = append(summaries, &catalog.BookSummary{
			BookID:            p.ID,
			Name:              p.Name,
			Status:            catalog.Status(p.Status),
			LastChapterNumber: p.LastChapterNumber,
			LastChapterTitle:  p.LastChapterTitle,
		})
	}
	return summaries, nil
}

func (f *Fetcher) FetchBook(ctx context.Context, bookID string) (*catalog.Book, error) {
	body, err := f.get(ctx, "/book/"+bookID)
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseBook(body)
	if err != nil {
		return nil, apperr.UpstreamInvalid("book: " + err.Error())
	}
	if parsed.Name == "" {
		return nil, apperr.UpstreamInvalid("book " + bookID + " missing name")
	}

	return &catalog.Book{
		BookID:            parsed.ID,
		Name:              parsed.Name,
		Author:            parsed.Author,
		Type:              parsed.Type,
		Status:            catalog.Status(parsed.Status),
		Description:       parsed.Description,
		UpdateDate:        parsed.UpdateDate,
		BookmarkCount:     parsed.BookmarkCount,
		ViewCount:         parsed.ViewCount,
		LastChapterNumber: parsed.LastChapterNumber,
		LastChapterTitle:  parsed.LastChapterTitle,
		LastChapterURL:    parsed.LastChapterURL,
	}, nil
}

// FetchChapterPage fetches one page of bookID's chapter index. An empty
// result on page 1 is accepted as a book with no chapters yet (§8 boundary
// behaviour); an empty result on any later page is treated as a parser
// failure, since the caller would not have asked for a page past the end.
func (f *Fetcher) FetchChapterPage(ctx context.Context, bookID string, page int) (*catalog.ChapterPage, error) {
	body, err := f.get(ctx, fmt.Sprintf("/book/%s/chapters?page=%d", bookID, page))
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseChapterPage(body)
	if err != nil {
		return nil, apperr.UpstreamInvalid("chapter page: " + err.Error())
	}
	if len(parsed.Chapters) == 0 && page > 1 {
		return nil, apperr.UpstreamInvalid(fmt.Sprintf("book %s page %d returned no chapters", bookID, page))
	}

	chapters := make([]*catalog.Chapter, 0, len(parsed.Chapters))
	for _, p := range parsed.Chapters {
		chapters = append(chapters, &catalog.Chapter{
			BookID:      bookID,
			Number:      p.Number,
			Title:       p.Title,
			UpstreamURL: p.URL,
			PublicID:    p.ID,
		})
	}
	return &catalog.ChapterPage{Chapters: chapters, TotalPages: parsed.TotalPages}, nil
}

func (f *Fetcher) FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*catalog.ChapterContent, error) {
	body, err := f.get(ctx, fmt.Sprintf("/book/%s/chapter/%s", bookID, chapterKey))
	if err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseChapterContent(body)
	if err != nil {
		return nil, apperr.UpstreamInvalid("chapter content: " + err.Error())
	}
	if len(parsed.Text) < minContentLength {
		return nil, apperr.UpstreamInvalid(fmt.Sprintf("chapter %s/%s content too short (%d chars)", bookID, chapterKey, len(parsed.Text)))
	}

	return &catalog.ChapterContent{
		BookID:     bookID,
		ChapterKey: chapterKey,
		Text:       parsed.Text,
		FetchedAt:  time.Now(),
	}, nil
}

// # Transport

// get performs a rate-limited, retrying GET against path relative to the
// configured base URL, and returns the body after a blocked-page check.
// Rate limiting always applies, regardless of NoProxy; NoProxy only bypasses
// the blocked-page detector for hosts known to be proxies/mirrors that never
// serve the anti-bot challenge page (§6).
func (f *Fetcher) get(ctx context.Context, path string) ([]byte, error) {
	target := f.baseURL.ResolveReference(&url.URL{Path: path})

	if err := f.limiter.Wait(ctx, target.Host); err != nil {
		return nil, apperr.Cancelled(err)
	}

	var body []byte
	err := retry.Do(
		func() error {
			attemptBody, attemptErr := f.doOnce(ctx, target.String())
			if attemptErr != nil {
				return attemptErr
			}
			body = attemptBody
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(maxAttempts),
		retry.Delay(baseBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		classified := classifyFailure(err)
		if appErr := apperr.As(classified); appErr != nil && appErr.Code == "UPSTREAM_RATE_LIMITED" {
			f.limiter.Widen(target.Host, rateLimitWidenFactor)
			f.logger.Warn("upstream_rate_limited_widening_interval", slog.String("host", target.Host))
		}
		return nil, classified
	}

	if _, bypassBlockedCheck := f.noProxyHosts[target.Host]; !bypassBlockedCheck && f.parser.IsBlocked(body) {
		f.logger.Warn("upstream_blocked_page_detected", slog.String("host", target.Host))
		return nil, apperr.UpstreamBlocked(target.Host)
	}

	return body, nil
}

// retryableStatus marks a response as retryable without retrying itself —
// doOnce returns it as an error so retry.Do's RetryIf can classify it.
type retryableStatus struct {
	status     int
	retryAfter time.Duration
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("upstream responded %d", e.status)
}

// nonRetryableStatus marks a 4xx (other than 429) response.
type nonRetryableStatus struct {
	status int
}

func (e *nonRetryableStatus) Error() string {
	return fmt.Sprintf("upstream responded %d", e.status)
}

func (f *Fetcher) doOnce(ctx context.Context, target string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	response, err := f.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(response.Header.Get("Retry-After"))
		return nil, &retryableStatus{status: response.StatusCode, retryAfter: retryAfter}
	}
	if response.StatusCode >= 500 {
		return nil, &retryableStatus{status: response.StatusCode}
	}
	if response.StatusCode >= 400 {
		return nil, &nonRetryableStatus{status: response.StatusCode}
	}

	return io.ReadAll(response.Body)
}

func isRetryable(err error) bool {
	var retryable *retryableStatus
	if asRetryableStatus(err, &retryable) {
		return true
	}
	var nonRetryable *nonRetryableStatus
	if asNonRetryableStatus(err, &nonRetryable) {
		return false
	}
	// Network/DNS/TLS errors: retry.
	return true
}

func asRetryableStatus(err error, target **retryableStatus) bool {
	status, ok := err.(*retryableStatus)
	if ok {
		*target = status
	}
	return ok
}

func asNonRetryableStatus(err error, target **nonRetryableStatus) bool {
	status, ok := err.(*nonRetryableStatus)
	if ok {
		*target = status
	}
	return ok
}

func classifyFailure(err error) error {
	var retryable *retryableStatus
	if asRetryableStatus(err, &retryable) {
		if retryable.status == http.StatusTooManyRequests {
			seconds := int(retryable.retryAfter.Seconds())
			if seconds <= 0 {
				seconds = int(baseBackoff.Seconds())
			}
			return apperr.UpstreamRateLimited(seconds)
		}
		return apperr.UpstreamUnreachable(err)
	}

	var nonRetryable *nonRetryableStatus
	if asNonRetryableStatus(err, &nonRetryable) {
		if nonRetryable.status == http.StatusNotFound {
			return apperr.NotFound("upstream resource")
		}
		return apperr.UpstreamInvalid(fmt.Sprintf("upstream responded %d", nonRetryable.status))
	}

	return apperr.UpstreamUnreachable(err)
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
