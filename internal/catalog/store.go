// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import "context"

// Store is the durable-store contract for the catalogue domain (§4.1 of the
// sync core design). Implementations must be safe for concurrent use;
// CacheManager is the only caller.
type Store interface {
	// ListCategories returns every known category.
	ListCategories(ctx context.Context) ([]*Category, error)
	// UpsertCategory creates or refreshes a category discovered upstream.
	UpsertCategory(ctx context.Context, category *Category) error

	// GetBook returns nil, nil when bookID is unknown to the store.
	GetBook(ctx context.Context, bookID string) (*Book, error)
	// UpsertBook writes the book's current state. Callers are responsible
	// for applying [Reconcile] before calling this — UpsertBook performs
	// no monotonicity checks of its own.
	UpsertBook(ctx context.Context, book *Book) error
	// ListBooksInCategory returns one page of books last synced into cat.
	ListBooksInCategory(ctx context.Context, categoryID string, page int) ([]*BookSummary, error)
	// LinkBookToCategory records that bookID appears in categoryID, idempotently.
	LinkBookToCategory(ctx context.Context, categoryID, bookID string) error
	// ListUnfinishedBooks returns every book whose status is not "completed".
	ListUnfinishedBooks(ctx context.Context) ([]*Book, error)

	// GetChapterRef returns nil, nil when the (book, number) pair is unknown.
	GetChapterRef(ctx context.Context, bookID string, number int) (*Chapter, error)
	// ListChapters returns every chapter for bookID, sorted by number ascending.
	ListChapters(ctx context.Context, bookID string) ([]*Chapter, error)
	// UpsertChaptersBatch merges chapters by (book_id, number), committing
	// every [constants.ChapterBatchSize] rows and once at end of batch. It
	// never deletes chapters absent from this batch — they may live on
	// pages not covered by this fetch. Returns the count of rows
	// successfully committed, which is less than len(chapters) only if a
	// mid-batch commit failed.
	UpsertChaptersBatch(ctx context.Context, chapters []*Chapter) (int, error)

	// GetContent returns nil, nil when no cached content exists.
	GetContent(ctx context.Context, bookID, chapterKey string) (*ChapterContent, error)
	UpsertContent(ctx context.Context, content *ChapterContent) error

	// DeleteBookState drops all chapters and chapter content for bookID,
	// used by force-resync through [Manager.InvalidateBook].
	// The book row itself is left intact — only its children are cleared.
	DeleteBookState(ctx context.Context, bookID string) error

	// CountBooks and CountChapters back the /health endpoint's cache block.
	CountBooks(ctx context.Context) (int, error)
	CountChapters(ctx context.Context) (int, error)

	// ClearAllContent drops every cached chapter body across every book,
	// used by /admin/cache/clear. Book and chapter metadata rows survive.
	ClearAllContent(ctx context.Context) error
}
