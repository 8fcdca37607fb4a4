// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog — PostgreSQL implementation of [Store].

Unlike the teacher catalogue's comic repository, this store carries no
full-text search or JSON-aggregated junction tables — the sync core has no
tag/author taxonomy. What survives from that repository is the shape: raw
SQL against pgxpool, dberr.Wrap on every path, and an explicit batch
boundary for bulk writes.
*/
package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/platform/dberr"
)

// postgresStore implements [Store] using pgx.
type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgreSQL-backed [Store].
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

// # Categories

func (s *postgresStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT category_id, name, upstream_url, created_at, updated_at
		FROM sync.category
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, dberr.Wrap(err, "list categories")
	}
	defer rows.Close()

	var categories []*Category
	for rows.Next() {
		category := &Category{}
		if err := rows.Scan(&category.CategoryID, &category.Name, &category.UpstreamURL,
			&category.CreatedAt, &category.UpdatedAt); err != nil {
			return nil, dberr.Wrap(err, "scan category")
		}
		categories = append(categories, category)
	}
	return categories, dberr.Wrap(rows.Err(), "list categories")
}

func (s *postgresStore) UpsertCategory(ctx context.Context, category *Category) error {
	return dberr.Retry(ctx, "upsert category", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sync.category (category_id, name, upstream_url, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (category_id) DO UPDATE SET
				name = EXCLUDED.name,
				upstream_url = EXCLUDED.upstream_url,
				updated_at = now()
		`, category.CategoryID, category.Name, category.UpstreamURL)
		return err
	})
}

// # Books

func (s *postgresStore) GetBook(ctx context.Context, bookID string) (*Book, error) {
	book := &Book{}
	err := s.pool.QueryRow(ctx, `
		SELECT book_id, public_id, name, author, type, status, description,
			update_date, bookmark_count, view_count,
			last_chapter_number, last_chapter_title, last_chapter_url,
			created_at, updated_at
		FROM sync.book
		WHERE book_id = $1
	`, bookID).Scan(
		&book.BookID, &book.PublicID, &book.Name, &book.Author, &book.Type, &book.Status,
		&book.Description, &book.UpdateDate, &book.BookmarkCount, &book.ViewCount,
		&book.LastChapterNumber, &book.LastChapterTitle, &book.LastChapterURL,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "get book")
	}
	return book, nil
}

func (s *postgresStore) UpsertBook(ctx context.Context, book *Book) error {
	return dberr.Retry(ctx, "upsert book", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sync.book (
				book_id, public_id, name, author, type, status, description,
				update_date, bookmark_count, view_count,
				last_chapter_number, last_chapter_title, last_chapter_url,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
			ON CONFLICT (book_id) DO UPDATE SET
				public_id           = EXCLUDED.public_id,
				name                = EXCLUDED.name,
				author              = EXCLUDED.author,
				type                = EXCLUDED.type,
				status              = EXCLUDED.status,
				description         = EXCLUDED.description,
				update_date         = EXCLUDED.update_date,
				bookmark_count      = EXCLUDED.bookmark_count,
				view_count          = EXCLUDED.view_count,
				last_chapter_number = EXCLUDED.last_chapter_number,
				last_chapter_title  = EXCLUDED.last_chapter_title,
				last_chapter_url    = EXCLUDED.last_chapter_url,
				updated_at          = now()
		`,
			book.BookID, book.PublicID, book.Name, book.Author, book.Type, book.Status,
			book.Description, book.UpdateDate, book.BookmarkCount, book.ViewCount,
			book.LastChapterNumber, book.LastChapterTitle, book.LastChapterURL,
		)
		return err
	})
}

func (s *postgresStore) ListBooksInCategory(ctx context.Context, categoryID string, page int) ([]*BookSummary, error) {
	const pageSize = 24
	rows, err := s.pool.Query(ctx, `
		SELECT b.book_id, b.public_id, b.name, b.status,
			b.last_chapter_number, b.last_chapter_title
		FROM sync.book b
		JOIN sync.category_book cb ON cb.book_id = b.book_id
		WHERE cb.category_id = $1
		ORDER BY b.updated_at DESC
		LIMIT $2 OFFSET $3
	`, categoryID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, dberr.Wrap(err, "list books in category")
	}
	defer rows.Close()

	var summaries []*BookSummary
	for rows.Next() {
		summary := &BookSummary{}
		if err := rows.Scan(&summary.BookID, &summary.PublicID, &summary.Name,
			&summary.Status, &summary.LastChapterNumber, &summary.LastChapterTitle); err != nil {
			return nil, dberr.Wrap(err, "scan book summary")
		}
		summaries = append(summaries, summary)
	}
	return summaries, dberr.Wrap(rows.Err(), "list books in category")
}

func (s *postgresStore) LinkBookToCategory(ctx context.Context, categoryID, bookID string) error {
	return dberr.Retry(ctx, "link book to category", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sync.category_book (category_id, book_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, categoryID, bookID)
		return err
	})
}

func (s *postgresStore) ListUnfinishedBooks(ctx context.Context) ([]*Book, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT book_id, public_id, name, author, type, status, description,
			update_date, bookmark_count, view_count,
			last_chapter_number, last_chapter_title, last_chapter_url,
			created_at, updated_at
		FROM sync.book
		WHERE status != $1
	`, StatusCompleted)
	if err != nil {
		return nil, dberr.Wrap(err, "list unfinished books")
	}
	defer rows.Close()

	var books []*Book
	for rows.Next() {
		book := &Book{}
		if err := rows.Scan(
			&book.BookID, &book.PublicID, &book.Name, &book.Author, &book.Type, &book.Status,
			&book.Description, &book.UpdateDate, &book.BookmarkCount, &book.ViewCount,
			&book.LastChapterNumber, &book.LastChapterTitle, &book.LastChapterURL,
			&book.CreatedAt, &book.UpdatedAt,
		); err != nil {
			return nil, dberr.Wrap(err, "scan unfinished book")
		}
		books = append(books, book)
	}
	return books, dberr.Wrap(rows.Err(), "list unfinished books")
}

// # Chapters

func (s *postgresStore) GetChapterRef(ctx context.Context, bookID string, number int) (*Chapter, error) {
	chapter := &Chapter{BookID: bookID}
	err := s.pool.QueryRow(ctx, `
		SELECT number, title, upstream_url, COALESCE(public_id, '')
		FROM sync.chapter
		WHERE book_id = $1 AND number = $2
	`, bookID, number).Scan(&chapter.Number, &chapter.Title, &chapter.UpstreamURL, &chapter.PublicID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "get chapter ref")
	}
	return chapter, nil
}

func (s *postgresStore) ListChapters(ctx context.Context, bookID string) ([]*Chapter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT number, title, upstream_url, COALESCE(public_id, '')
		FROM sync.chapter
		WHERE book_id = $1
		ORDER BY number ASC
	`, bookID)
	if err != nil {
		return nil, dberr.Wrap(err, "list chapters")
	}
	defer rows.Close()

	var chapters []*Chapter
	for rows.Next() {
		chapter := &Chapter{BookID: bookID}
		if err := rows.Scan(&chapter.Number, &chapter.Title, &chapter.UpstreamURL, &chapter.PublicID); err != nil {
			return nil, dberr.Wrap(err, "scan chapter")
		}
		chapters = append(chapters, chapter)
	}
	return chapters, dberr.Wrap(rows.Err(), "list chapters")
}

// UpsertChaptersBatch commits every [constants.ChapterBatchSize] rows and
// once more at the end, never per-row, per §4.1's batching contract. On a
// mid-batch commit failure the partially committed prefix remains and the
// count of successful rows is returned alongside the error.
func (s *postgresStore) UpsertChaptersBatch(ctx context.Context, chapters []*Chapter) (int, error) {
	committed := 0

	for start := 0; start < len(chapters); start += constants.ChapterBatchSize {
		end := start + constants.ChapterBatchSize
		if end > len(chapters) {
			end = len(chapters)
		}
		batch := chapters[start:end]

		if err := dberr.Retry(ctx, "upsert chapters batch", func() error {
			return s.upsertChapterBatchTx(ctx, batch)
		}); err != nil {
			return committed, err
		}
		committed += len(batch)
	}

	return committed, nil
}

func (s *postgresStore) upsertChapterBatchTx(ctx context.Context, batch []*Chapter) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, chapter := range batch {
		if _, err := tx.Exec(ctx, `
			INSERT INTO sync.chapter (book_id, number, title, upstream_url, public_id)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''))
			ON CONFLICT (book_id, number) DO UPDATE SET
				title        = EXCLUDED.title,
				upstream_url = EXCLUDED.upstream_url,
				public_id    = COALESCE(EXCLUDED.public_id, sync.chapter.public_id)
		`, chapter.BookID, chapter.Number, chapter.Title, chapter.UpstreamURL, chapter.PublicID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// # Chapter Content

func (s *postgresStore) GetContent(ctx context.Context, bookID, chapterKey string) (*ChapterContent, error) {
	content := &ChapterContent{BookID: bookID, ChapterKey: chapterKey}
	err := s.pool.QueryRow(ctx, `
		SELECT text, fetched_at
		FROM sync.chapter_content
		WHERE book_id = $1 AND chapter_key = $2
	`, bookID, chapterKey).Scan(&content.Text, &content.FetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "get chapter content")
	}
	return content, nil
}

func (s *postgresStore) UpsertContent(ctx context.Context, content *ChapterContent) error {
	return dberr.Retry(ctx, "upsert chapter content", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sync.chapter_content (book_id, chapter_key, text, fetched_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (book_id, chapter_key) DO UPDATE SET
				text       = EXCLUDED.text,
				fetched_at = now()
		`, content.BookID, content.ChapterKey, content.Text)
		return err
	})
}

func (s *postgresStore) DeleteBookState(ctx context.Context, bookID string) error {
	return dberr.Retry(ctx, "delete book state", func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx) //nolint:errcheck

		if _, err := tx.Exec(ctx, `DELETE FROM sync.chapter_content WHERE book_id = $1`, bookID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM sync.chapter WHERE book_id = $1`, bookID); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}

func (s *postgresStore) ClearAllContent(ctx context.Context) error {
	return dberr.Retry(ctx, "clear all content", func() error {
		_, err := s.pool.Exec(ctx, `DELETE FROM sync.chapter_content`)
		return err
	})
}

func (s *postgresStore) CountBooks(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sync.book`).Scan(&count)
	return count, dberr.Wrap(err, "count books")
}

func (s *postgresStore) CountChapters(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM sync.chapter`).Scan(&count)
	return count, dberr.Wrap(err, "count chapters")
}
