// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package htmlparser is the default [upstream.Parser] implementation.

Yomira's sync core treats the upstream HTML parser as an external
collaborator (see [upstream.Parser]'s doc comment) — this package is a
concrete, swappable default built on [golang.org/x/net/html], not a
requirement of the sync core itself. Deployments scraping a markup layout
other than the `data-yomira-*` attribute convention this package expects
supply their own [upstream.Parser] at startup instead.
*/
package htmlparser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/taibuivan/yomira/internal/upstream"
)

// blockedMarker is the attribute value the convention uses on a challenge
// or interception page's <body>, e.g. `<body data-yomira-role="blocked">`.
const blockedMarker = "blocked"

// Parser implements [upstream.Parser] against the `data-yomira-*` attribute
// convention: every scrapeable element carries a `data-yomira-role` and,
// where relevant, `data-yomira-field` attributes naming what it holds.
type Parser struct{}

// New constructs the default HTML [upstream.Parser].
func New() *Parser {
	return &Parser{}
}

var _ upstream.Parser = (*Parser)(nil)

// IsBlocked implements [upstream.Parser].
func (p *Parser) IsBlocked(body []byte) bool {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return false
	}
	body_ := findFirst(root, func(n *html.Node) bool { return n.Type == html.ElementNode && n.Data == "body" })
	if body_ == nil {
		return false
	}
	return attr(body_, "data-yomira-role") == blockedMarker
}

// ParseCategories implements [upstream.Parser].
func (p *Parser) ParseCategories(body []byte) ([]upstream.ParsedCategory, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}

	var categories []upstream.ParsedCategory
	for _, node := range findAll(root, hasRole("category")) {
		categories = append(categories, upstream.ParsedCategory{
			ID:   attr(node, "data-yomira-id"),
			Name: strings.TrimSpace(text(node)),
			URL:  attr(node, "href"),
		})
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("htmlparser: no category elements found")
	}
	return categories, nil
}

// ParseCategoryBooks implements [upstream.Parser].
func (p *Parser) ParseCategoryBooks(body []byte) ([]upstream.ParsedBookSummary, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}

	var summaries []upstream.ParsedBookSummary
	for _, node := range findAll(root, hasRole("book-summary")) {
		summaries = append(summaries, upstream.ParsedBookSummary{
			ID:                attr(node, "data-yomira-id"),
			Name:              strings.TrimSpace(fieldText(node, "name")),
			Status:            strings.TrimSpace(fieldText(node, "status")),
			LastChapterNumber: atoi(fieldText(node, "last-chapter-number")),
			LastChapterTitle:  strings.TrimSpace(fieldText(node, "last-chapter-title")),
		})
	}
	return summaries, nil
}

// ParseBook implements [upstream.Parser].
func (p *Parser) ParseBook(body []byte) (*upstream.ParsedBook, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}

	node := findFirst(root, hasRole("book"))
	if node == nil {
		return nil, fmt.Errorf("htmlparser: no book element found")
	}

	return &upstream.ParsedBook{
		ID:                attr(node, "data-yomira-id"),
		Name:              strings.TrimSpace(fieldText(node, "name")),
		Author:            strings.TrimSpace(fieldText(node, "author")),
		Type:              strings.TrimSpace(fieldText(node, "type")),
		Status:            strings.TrimSpace(fieldText(node, "status")),
		Description:       strings.TrimSpace(fieldText(node, "description")),
		UpdateDate:        parseDate(fieldText(node, "update-date")),
		BookmarkCount:     atoi64(fieldText(node, "bookmark-count")),
		ViewCount:         atoi64(fieldText(node, "view-count")),
		LastChapterNumber: atoi(fieldText(node, "last-chapter-number")),
		LastChapterTitle:  strings.TrimSpace(fieldText(node, "last-chapter-title")),
		LastChapterURL:    fieldAttr(node, "last-chapter-url", "href"),
	}, nil
}

// ParseChapterPage implements [upstream.Parser].
func (p *Parser) ParseChapterPage(body []byte) (*upstream.ParsedChapterPage, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}

	var chapters []upstream.ParsedChapter
	for _, node := range findAll(root, hasRole("chapter-entry")) {
		chapters = append(chapters, upstream.ParsedChapter{
			Number: atoi(attr(node, "data-yomira-number")),
			Title:  strings.TrimSpace(text(node)),
			URL:    attr(node, "href"),
			ID:     attr(node, "data-yomira-id"),
		})
	}

	totalPages := 1
	if pager := findFirst(root, hasRole("pager")); pager != nil {
		if n := atoi(attr(pager, "data-yomira-total-pages")); n > 0 {
			totalPages = n
		}
	}

	return &upstream.ParsedChapterPage{Chapters: chapters, TotalPages: totalPages}, nil
}

// ParseChapterContent implements [upstream.Parser].
func (p *Parser) ParseChapterContent(body []byte) (*upstream.ParsedContent, error) {
	root, err := parse(body)
	if err != nil {
		return nil, err
	}

	node := findFirst(root, hasRole("chapter-content"))
	if node == nil {
		return nil, fmt.Errorf("htmlparser: no chapter content element found")
	}
	return &upstream.ParsedContent{Text: strings.TrimSpace(text(node))}, nil
}

// # DOM helpers

func parse(body []byte) (*html.Node, error) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("htmlparser: parse: %w", err)
	}
	return root, nil
}

func hasRole(role string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "data-yomira-role") == role
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if match(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// fieldText finds the descendant carrying data-yomira-field=field and
// returns its text content.
func fieldText(n *html.Node, field string) string {
	node := findFirst(n, func(candidate *html.Node) bool {
		return candidate.Type == html.ElementNode && attr(candidate, "data-yomira-field") == field
	})
	if node == nil {
		return ""
	}
	return text(node)
}

// fieldAttr is fieldText's counterpart for reading an HTML attribute (e.g.
// an anchor's href) off the field-tagged element instead of its text.
func fieldAttr(n *html.Node, field, attrName string) string {
	node := findFirst(n, func(candidate *html.Node) bool {
		return candidate.Type == html.ElementNode && attr(candidate, "data-yomira-field") == field
	})
	if node == nil {
		return ""
	}
	return attr(node, attrName)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			builder.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return builder.String()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// parseDate accepts RFC3339 first (machine-rendered timestamps), falling
// back to a plain date for upstream pages that only print a day.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
