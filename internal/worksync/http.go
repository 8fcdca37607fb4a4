// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package worksync — admin HTTP surface for the job engine and scheduler
(§6's `/admin/*` routes). Same thin-handler style as [catalog.Handler]: a
chi sub-router mounted by the top-level server under `/api/admin`.
*/
package worksync

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/yomira/internal/platform/constants"
	requestutil "github.com/taibuivan/yomira/internal/platform/request"
	"github.com/taibuivan/yomira/internal/platform/respond"
	"github.com/taibuivan/yomira/pkg/convert"
)

// AdminHandler implements the `/admin/*` surface over an [Engine] and
// [Scheduler].
type AdminHandler struct {
	engine    *Engine
	scheduler *Scheduler
}

// NewAdminHandler constructs an [AdminHandler].
func NewAdminHandler(engine *Engine, scheduler *Scheduler) *AdminHandler {
	return &AdminHandler{engine: engine, scheduler: scheduler}
}

// Routes returns a [chi.Router] for the admin surface.
func (h *AdminHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/jobs/sync/{book_id}", h.syncBook)
	router.Post("/jobs/clear_history", h.clearJobHistory)
	router.Post("/jobs/force-resync/{id}", h.forceResync)
	router.Get("/jobs/stats", h.jobStats)

	router.Get("/midnight-sync/stats", h.midnightSyncStats)
	router.Post("/midnight-sync/enqueue-unfinished", h.enqueueUnfinished)
	router.Post("/midnight-sync/trigger", h.triggerMidnightSync)
	router.Post("/midnight-sync/clear-completed", h.clearCompleted)

	return router
}

/*
POST /api/admin/jobs/sync/{book_id}?priority=N.

Response:
  - 200: {job_id}
*/
func (h *AdminHandler) syncBook(writer http.ResponseWriter, request *http.Request) {
	bookID := requestutil.Param(request, "book_id")
	priority := convert.ToIntD(request.URL.Query().Get("priority"), constants.PriorityUserAccess)

	jobID, err := h.engine.Enqueue(request.Context(), bookID, priority)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{"job_id": jobID})
}

/*
POST /api/admin/jobs/clear_history.

Response:
  - 200: {status: "cleared"}
*/
func (h *AdminHandler) clearJobHistory(writer http.ResponseWriter, request *http.Request) {
	h.engine.ClearHistory()
	respond.OK(writer, map[string]any{constants.FieldStatus: "cleared"})
}

/*
POST /api/admin/jobs/force-resync/{id}?clear_cache=bool.

Per §7's HTTP mapping, contention with an already-active job for the same
book responds 200 with {status: "already_syncing"} rather than 409 —
matching the existing client contract.

Response:
  - 200: {status: "started", job_id} | {status: "already_syncing", job_id}
*/
func (h *AdminHandler) forceResync(writer http.ResponseWriter, request *http.Request) {
	bookID := requestutil.Param(request, "id")
	clearCache := convert.ToBoolD(request.URL.Query().Get("clear_cache"), true)

	jobID, alreadySyncing, err := h.engine.ForceResync(request.Context(), bookID, constants.PriorityManualTrigger, clearCache)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	status := "started"
	if alreadySyncing {
		status = "already_syncing"
	}
	respond.OK(writer, map[string]any{constants.FieldStatus: status, "job_id": jobID})
}

/*
GET /api/admin/jobs/stats.

Response:
  - 200: Stats
*/
func (h *AdminHandler) jobStats(writer http.ResponseWriter, request *http.Request) {
	respond.OK(writer, h.engine.Stats())
}

/*
GET /api/admin/midnight-sync/stats.

Response:
  - 200: {pending_entries: int}
*/
func (h *AdminHandler) midnightSyncStats(writer http.ResponseWriter, request *http.Request) {
	pending, err := h.scheduler.queue.ListPending(request.Context())
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{"pending_entries": len(pending)})
}

/*
POST /api/admin/midnight-sync/enqueue-unfinished.

Response:
  - 200: {status: "ok"}
*/
func (h *AdminHandler) enqueueUnfinished(writer http.ResponseWriter, request *http.Request) {
	if err := h.scheduler.EnqueueUnfinishedBooks(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{constants.FieldStatus: "ok"})
}

/*
POST /api/admin/midnight-sync/trigger.

Runs the sync pass immediately, bypassing the wall-clock trigger.

Response:
  - 200: {status: "ok"}
*/
func (h *AdminHandler) triggerMidnightSync(writer http.ResponseWriter, request *http.Request) {
	if err := h.scheduler.RunSyncPass(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{constants.FieldStatus: "ok"})
}

/*
POST /api/admin/midnight-sync/clear-completed.

Response:
  - 200: {status: "ok"}
*/
func (h *AdminHandler) clearCompleted(writer http.ResponseWriter, request *http.Request) {
	if err := h.scheduler.ClearTerminal(request.Context()); err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, map[string]any{constants.FieldStatus: "ok"})
}
