// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

// ReconcileResult is the outcome of merging a freshly fetched chapter list
// against a book's current state.
type ReconcileResult struct {
	// Book is either the unchanged input or a copy with last-chapter
	// fields advanced. Reconcile never mutates its argument.
	Book Book
	// Changed reports whether Book.LastChapterNumber advanced.
	Changed bool
	// Chapters is the upsert set: the fetched chapters exactly as passed
	// in, ready for [Store.UpsertChaptersBatch].
	Chapters []*Chapter
}

// Reconcile implements the pure, monotonic-upward merge logic from §4.8.
// It never decreases book.LastChapterNumber: a fetch that only covered a
// partial page (fewer chapters than the store already knows about) leaves
// the book's last-chapter fields untouched rather than treating the fetch
// as authoritative-shrinking (spec invariant I1).
//
// fetched is the union of every chapter observed across one or more pages
// of a single fetch; Reconcile does not itself page through anything.
func Reconcile(book Book, fetched []*Chapter) ReconcileResult {
	result := ReconcileResult{Book: book, Chapters: fetched}

	if len(fetched) == 0 {
		return result
	}

	var observedMax *Chapter
	for _, chapter := range fetched {
		if observedMax == nil || chapter.Number > observedMax.Number {
			observedMax = chapter
		}
	}

	if observedMax.Number > result.Book.LastChapterNumber {
		result.Book.LastChapterNumber = observedMax.Number
		result.Book.LastChapterTitle = observedMax.Title
		result.Book.LastChapterURL = observedMax.UpstreamURL
		result.Changed = true
	}

	return result
}

// MergeChapters deduplicates chapters by number, keeping the last entry seen
// for any duplicate number. It is used when a multi-page fetch is flattened
// into one fetched slice before [Reconcile], so a chapter that appears on
// two overlapping pages is not double-counted or double-written.
func MergeChapters(pages ...[]*Chapter) []*Chapter {
	byNumber := make(map[int]*Chapter)
	order := make([]int, 0)

	for _, page := range pages {
		for _, chapter := range page {
			if _, seen := byNumber[chapter.Number]; !seen {
				order = append(order, chapter.Number)
			}
			byNumber[chapter.Number] = chapter
		}
	}

	merged := make([]*Chapter, 0, len(order))
	for _, number := range order {
		merged = append(merged, byNumber[number])
	}
	return merged
}
