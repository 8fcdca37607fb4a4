// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import "fmt"

// Fingerprint is a canonical key identifying one cacheable resource. It is
// shared by the memory tier, the single-flight gate, and the per-resource
// logging so the same string names the same thing at every layer.
type Fingerprint = string

// FingerprintCategories is the key for the top-level category listing.
func FingerprintCategories() Fingerprint {
	return "categories"
}

// FingerprintCategoryPage keys one page of a category's book listing.
func FingerprintCategoryPage(categoryID string, page int) Fingerprint {
	return fmt.Sprintf("cat:%s:%d", categoryID, page)
}

// FingerprintBook keys a single book's metadata.
func FingerprintBook(bookID string) Fingerprint {
	return fmt.Sprintf("book:%s", bookID)
}

// FingerprintChapterPage keys one page of a book's chapter index.
func FingerprintChapterPage(bookID string, page int) Fingerprint {
	return fmt.Sprintf("chapters:%s:page:%d", bookID, page)
}

// FingerprintChapterContent keys the body text of a single chapter.
func FingerprintChapterContent(bookID, chapterKey string) Fingerprint {
	return fmt.Sprintf("content:%s:%s", bookID, chapterKey)
}
