// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/platform/respond"
	"github.com/taibuivan/yomira/internal/worksync"
	"github.com/taibuivan/yomira/pkg/convert"
)

// crossCuttingAdminHandler implements the two §6 admin operations that span
// both the catalogue and the job engine — everything else under /admin
// lives in [worksync.AdminHandler], which only needs the engine/scheduler.
type crossCuttingAdminHandler struct {
	store   catalog.Store
	cache   catalog.MemoryCache
	manager Manager
	engine  *worksync.Engine
	logger  *slog.Logger
}

// Manager is the subset of [catalog.Manager] this handler needs, kept
// narrow so tests can supply a stub.
type Manager interface {
	GetCategories(ctx context.Context) ([]*catalog.Category, error)
	GetCategoryBooks(ctx context.Context, categoryID string, page int) ([]*catalog.BookSummary, error)
}

// NewCrossCuttingAdminHandler constructs the handler backing
// `/admin/cache/clear` and `/admin/init-sync`.
func NewCrossCuttingAdminHandler(store catalog.Store, cache catalog.MemoryCache, manager Manager, engine *worksync.Engine, logger *slog.Logger) *crossCuttingAdminHandler {
	return &crossCuttingAdminHandler{store: store, cache: cache, manager: manager, engine: engine, logger: logger}
}

// RegisterRoutes mounts this handler's two routes directly onto router,
// alongside [worksync.AdminHandler]'s routes under the same `/admin` prefix.
func (h *crossCuttingAdminHandler) RegisterRoutes(router chi.Router) {
	router.Post("/cache/clear", h.clearCache)
	router.Post("/init-sync", h.initSync)
}

/*
POST /api/admin/cache/clear.

Drops every cached chapter body and the entire memory tier; the sync queue
is left untouched (§6).

Response:
  - 200: {status: "ok"}
*/
func (h *crossCuttingAdminHandler) clearCache(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	if err := h.store.ClearAllContent(ctx); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if err := h.cache.Clear(ctx); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{constants.FieldStatus: "ok"})
}

/*
POST /api/admin/init-sync?categories_limit=N&pages_per_category=M.

Bootstraps an empty store: walks the first N categories, M pages each,
enqueueing every discovered book at [constants.PriorityNightly].

Response:
  - 200: {categories_scanned, books_enqueued}
*/
func (h *crossCuttingAdminHandler) initSync(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	categoriesLimit := convert.ToIntD(request.URL.Query().Get("categories_limit"), 5)
	pagesPerCategory := convert.ToIntD(request.URL.Query().Get("pages_per_category"), 1)

	categories, err := h.manager.GetCategories(ctx)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	if len(categories) > categoriesLimit {
		categories = categories[:categoriesLimit]
	}

	booksEnqueued := 0
	for _, category := range categories {
		for page := 1; page <= pagesPerCategory; page++ {
			summaries, err := h.manager.GetCategoryBooks(ctx, category.CategoryID, page)
			if err != nil {
				h.logger.Warn("init_sync_category_page_failed",
					slog.String("category_id", category.CategoryID), slog.Int("page", page), slog.Any("error", err))
				continue
			}
			for _, summary := range summaries {
				if _, err := h.engine.Enqueue(ctx, summary.BookID, constants.PriorityNightly); err != nil {
					h.logger.Warn("init_sync_enqueue_failed", slog.String("book_id", summary.BookID), slog.Any("error", err))
					continue
				}
				booksEnqueued++
			}
		}
	}

	respond.OK(writer, map[string]any{
		"categories_scanned": len(categories),
		"books_enqueued":     booksEnqueued,
	})
}
