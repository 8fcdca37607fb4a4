// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog defines the core domain entities for the novel catalogue that
Yomira proxies from the upstream site, and the read-through cache
([Manager]) that sits in front of them.

Core Responsibility:

  - Catalogue: Category, Book, Chapter and ChapterContent records mirrored
    from the upstream site.
  - Freshness: last_chapter_number is kept monotonically truthful by
    [Reconcile], never by the upstream fetch alone.
  - Read-through: [Manager] is the sole read path for every higher layer;
    it composes the memory tier, the durable store, and the upstream
    fetcher behind a single-flight gate.

This package owns every write to Book, Chapter and ChapterContent rows;
cross-component writes are forbidden and must be mediated through [Manager].
*/
package catalog

import "time"

// # Domain Entities

// Category is a top-level upstream listing (e.g. a genre or tag page).
// Created on discovery and updated on re-scan; never deleted.
type Category struct {
	CategoryID  string    `json:"id"`
	Name        string    `json:"name"`
	UpstreamURL string    `json:"url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Status is the publication status of a [Book] as reported upstream.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusUnknown   Status = "unknown"
)

// IsCompleted reports whether s represents a finished publication. Only
// an exact match on [StatusCompleted] counts — see the Open Question in
// DESIGN.md about upstream status normalization.
func (s Status) IsCompleted() bool { return s == StatusCompleted }

// Book is the central aggregate of the catalogue. BookID is the upstream
// site's own identifier and is the fingerprint key for every cache tier;
// PublicID is a stable identifier Yomira hands out externally so upstream
// renumbering never breaks a client's bookmark.
type Book struct {
	BookID   string `json:"book_id"`
	PublicID string `json:"public_id"`

	Name        string `json:"name"`
	Author      string `json:"author"`
	Type        string `json:"type"`
	Status      Status `json:"status"`
	Description string `json:"description"`

	UpdateDate     time.Time `json:"update_date"`
	BookmarkCount  int64     `json:"bookmark_count"`
	ViewCount      int64     `json:"view_count"`

	LastChapterNumber int    `json:"last_chapter_number"`
	LastChapterTitle  string `json:"last_chapter_title"`
	LastChapterURL    string `json:"last_chapter_url"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is one entry in a book's chapter index. Chapter numbers within a
// book are unique and sortable ascending; gaps are permitted and represent
// upstream ambiguity, not corruption (spec invariant I3).
type Chapter struct {
	BookID      string `json:"book_id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	UpstreamURL string `json:"url"`
	PublicID    string `json:"id,omitempty"`
}

// ChapterContent is the lazily-fetched body text of one chapter. ChapterKey
// is usually the chapter number rendered as a string, but is kept distinct
// from Number so an upstream site that addresses content by slug instead of
// number can still be represented. ChapterNumber, Title, URL and ChapterID
// are cross-referenced from the chapter index (§6) rather than carried by
// the fetch itself, and are left zero when ChapterKey doesn't resolve to a
// known Chapter row.
type ChapterContent struct {
	BookID     string    `json:"book_id"`
	ChapterKey string    `json:"chapter_key"`
	Text       string    `json:"text"`
	FetchedAt  time.Time `json:"fetched_at"`

	ChapterNumber int    `json:"chapter_num"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ChapterID     string `json:"chapter_id,omitempty"`
}

// BookSummary is the denormalized shape returned by category listings —
// enough to render a book card without hydrating the full [Book] record.
type BookSummary struct {
	BookID            string `json:"book_id"`
	PublicID          string `json:"public_id"`
	Name              string `json:"name"`
	Status            Status `json:"status"`
	LastChapterNumber int    `json:"last_chapter_number"`
	LastChapterTitle  string `json:"last_chapter_title"`
}

// # Field Identifiers

// Field identifiers used by validation and structured logging.
const (
	FieldBookID   = "book_id"
	FieldCategory = "category_id"
	FieldPage     = "page"
	FieldChapter  = "chapter_number"
)
