// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api

import (
	"net/http"

	"github.com/taibuivan/yomira/internal/catalog"
	"github.com/taibuivan/yomira/internal/platform/constants"
	"github.com/taibuivan/yomira/internal/platform/respond"
	"github.com/taibuivan/yomira/internal/worksync"
)

// syncHealthHandler implements `GET /api/health` (§6): a richer probe than
// the container-level /health, reporting cache and job-engine depth so an
// operator can see the sync core's state without hitting /admin.
type syncHealthHandler struct {
	store  catalog.Store
	cache  catalog.MemoryCache
	engine *worksync.Engine
}

// NewSyncHealthHandler constructs the `/api/health` [http.HandlerFunc].
func NewSyncHealthHandler(store catalog.Store, cache catalog.MemoryCache, engine *worksync.Engine) http.HandlerFunc {
	h := &syncHealthHandler{store: store, cache: cache, engine: engine}
	return h.serve
}

func (h *syncHealthHandler) serve(writer http.ResponseWriter, request *http.Request) {
	ctx := request.Context()

	booksInDB, _ := h.store.CountBooks(ctx)
	chaptersInDB, _ := h.store.CountChapters(ctx)
	cacheSize, _ := h.cache.Size(ctx)

	stats := h.engine.Stats()

	respond.OK(writer, map[string]any{
		constants.FieldStatus: "ok",
		"cache": map[string]any{
			"books_in_db":       booksInDB,
			"chapters_in_db":    chaptersInDB,
			"memory_cache_size": cacheSize,
		},
		"jobs": map[string]any{
			"pending":    stats.QueueSize,
			"active_ids": stats.ActiveIDs,
			"completed":  stats.CompletedCount,
			"failed":     stats.FailedCount,
			"workers":    stats.WorkerCount,
			"running":    stats.Running,
		},
	})
}
