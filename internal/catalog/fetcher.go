// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import "context"

// ChapterPage is one page of a book's chapter index as returned by the
// upstream tier, along with the site's own page count when it exposes one
// (0 when unknown).
type ChapterPage struct {
	Chapters   []*Chapter
	TotalPages int
}

// Fetcher is the upstream-tier contract consumed by [Manager] (§4.3–§4.4).
// The concrete implementation in package upstream wraps an HTTP client, a
// retrying transport, a per-host rate limiter, and a single-flight gate —
// none of which the catalog domain needs to know about.
type Fetcher interface {
	FetchCategories(ctx context.Context) ([]*Category, error)
	FetchCategoryBooks(ctx context.Context, categoryID string, page int) ([]*BookSummary, error)
	FetchBook(ctx context.Context, bookID string) (*Book, error)
	FetchChapterPage(ctx context.Context, bookID string, page int) (*ChapterPage, error)
	FetchChapterContent(ctx context.Context, bookID, chapterKey string) (*ChapterContent, error)
}
