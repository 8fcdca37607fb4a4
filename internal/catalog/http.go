// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package catalog — HTTP interface for the read-only catalogue surface (§6).

Mirrors the teacher catalogue's comic handler: a thin [Handler] wrapping a
domain type, chi sub-router returned from Routes, doc-comment per endpoint
naming the exact path and query parameters.
*/
package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/yomira/internal/platform/request"
	"github.com/taibuivan/yomira/internal/platform/respond"
	"github.com/taibuivan/yomira/pkg/convert"
)

// Handler implements the HTTP layer for the catalogue's read-only surface.
type Handler struct {
	manager *Manager
	jobs    JobEnqueuer
}

// NewHandler constructs a catalogue [Handler]. jobs is used directly (not
// through manager) to satisfy the `bg_sync` query parameter on the category
// listing, which enqueues every listed book rather than just the one the
// caller is viewing.
func NewHandler(manager *Manager, jobs JobEnqueuer) *Handler {
	return &Handler{manager: manager, jobs: jobs}
}

// Routes returns a [chi.Router] for the catalogue's public endpoints.
func (h *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/categories", h.listCategories)
	router.Get("/categories/{cat}/books", h.listCategoryBooks)
	router.Get("/books/{id}", h.getBook)
	router.Get("/books/{id}/chapters", h.listChapters)
	router.Get("/books/{id}/chapters/{chapter_key}", h.getChapterContent)

	return router
}

/*
GET /api/categories.

Response:
  - 200: [{id, name, url}]
*/
func (h *Handler) listCategories(writer http.ResponseWriter, request *http.Request) {
	categories, err := h.manager.GetCategories(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, categories)
}

/*
GET /api/categories/{cat}/books?page=N&bg_sync=bool.

When bg_sync is true (the default), every listed book is enqueued for a
background sync at [constants.PriorityUserAccess].

Response:
  - 200: [BookSummary]
*/
func (h *Handler) listCategoryBooks(writer http.ResponseWriter, request *http.Request) {
	categoryID := requestutil.Param(request, "cat")
	page := convert.ToIntD(request.URL.Query().Get("page"), 1)
	bgSync := convert.ToBoolD(request.URL.Query().Get("bg_sync"), true)

	ctx := request.Context()

	stored, err := h.manager.GetCategoryBooks(ctx, categoryID, page)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if bgSync && h.jobs != nil {
		logger := ctxutil.GetLogger(ctx)
		for _, summary := range stored {
			if _, enqueueErr := h.jobs.Enqueue(ctx, summary.BookID, constants.PriorityUserAccess); enqueueErr != nil {
				logger.Warn("category_bg_sync_enqueue_failed",
					slog.String("book_id", summary.BookID),
					slog.Any("error", enqueueErr),
				)
			}
		}
	}

	respond.OK(writer, stored)
}

/*
GET /api/books/{id}.

Triggers track_access(id) and a background metadata refresh; the response
is always whatever is currently cached (§4.5).

Response:
  - 200: BookInfo
  - 404: book unknown to both the store and upstream
*/
func (h *Handler) getBook(writer http.ResponseWriter, request *http.Request) {
	bookID := requestutil.Param(request, "id")

	book, err := h.manager.GetBookInfo(request.Context(), bookID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, book)
}

/*
GET /api/books/{id}/chapters?page=N&all=bool.

Response:
  - 200: {chapters: [{number, title, url, id?}], degraded?: bool}
*/
func (h *Handler) listChapters(writer http.ResponseWriter, request *http.Request) {
	bookID := requestutil.Param(request, "id")
	page := convert.ToIntD(request.URL.Query().Get("page"), 1)
	all := convert.ToBoolD(request.URL.Query().Get("all"), false)

	result, err := h.manager.GetChapterList(request.Context(), bookID, page, all)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"chapters": result.Chapters,
		"degraded": result.Degraded,
	})
}

/*
GET /api/books/{id}/chapters/{chapter_key}?nocache=bool.

Response:
  - 200: {book_id, chapter_num, title, url, text, chapter_id?}
*/
func (h *Handler) getChapterContent(writer http.ResponseWriter, request *http.Request) {
	bookID := requestutil.Param(request, "id")
	chapterKey := requestutil.Param(request, "chapter_key")
	bypass := convert.ToBoolD(request.URL.Query().Get("nocache"), false)

	content, err := h.manager.GetChapterContent(request.Context(), bookID, chapterKey, bypass)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldBookID:   bookID,
		"chapter_num": content.ChapterNumber,
		"title":       content.Title,
		"url":         content.URL,
		"text":        content.Text,
		"chapter_id":  content.ChapterID,
	})
}
