// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package upstream implements the only component in Yomira that talks to the
remote novel catalogue: [Fetcher] wraps an HTTP client around a [Parser]
collaborator, and [Gate] coalesces concurrent fetches for the same
fingerprint into one request (§4.3–§4.4 of the sync core design).

The HTML parser itself is an external collaborator per the system's scope —
this package only defines the [Parser] contract it consumes and converts the
parser's raw output into validated [catalog] records.
*/
package upstream

import "time"

// ParsedCategory is one row of the upstream category listing.
type ParsedCategory struct {
	ID   string
	Name string
	URL  string
}

// ParsedBookSummary is one row of a category's book listing page.
type ParsedBookSummary struct {
	ID                string
	Name              string
	Status            string
	LastChapterNumber int
	LastChapterTitle  string
}

// ParsedBook is the full metadata record for a single book page.
type ParsedBook struct {
	ID                string
	Name              string
	Author            string
	Type              string
	Status            string
	Description       string
	UpdateDate        time.Time
	BookmarkCount     int64
	ViewCount         int64
	LastChapterNumber int
	LastChapterTitle  string
	LastChapterURL    string
}

// ParsedChapter is one row of a chapter index page.
type ParsedChapter struct {
	Number int
	Title  string
	URL    string
	ID     string
}

// ParsedChapterPage is one page of a book's chapter index, along with the
// upstream site's own pagination total (when it exposes one).
type ParsedChapterPage struct {
	Chapters   []ParsedChapter
	TotalPages int
}

// ParsedContent is the body text of a single chapter.
type ParsedContent struct {
	Text string
}

// Parser turns raw upstream HTML into typed records. It is an external
// collaborator: Yomira's sync core only depends on this interface, never on
// a concrete scraping implementation.
type Parser interface {
	// IsBlocked inspects a raw response body and reports whether it is an
	// interception/challenge page rather than the expected content.
	IsBlocked(body []byte) bool

	ParseCategories(body []byte) ([]ParsedCategory, error)
	ParseCategoryBooks(body []byte) ([]ParsedBookSummary, error)
	ParseBook(body []byte) (*ParsedBook, error)
	ParseChapterPage(body []byte) (*ParsedChapterPage, error)
	ParseChapterContent(body []byte) (*ParsedContent, error)
}
