// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package worksync implements the background synchronization side of the
system: the in-memory priority job queue + worker pool (§4.6 JobEngine) and
the durable access-tracking scheduler (§4.7 DeferredScheduler) that feeds it.

Both components depend on [catalog.Manager] only through the narrow
interfaces it declares ([catalog.AccessTracker], [catalog.JobEnqueuer]); this
package in turn declares [BookSyncer], satisfied structurally by
[catalog.Manager], breaking the cyclic reference described in DESIGN.md.
*/
package worksync

import (
	"context"
	"time"
)

// JobState is a Job's position in the §3 state machine: queued → active →
// (done | failed).
type JobState string

const (
	JobQueued JobState = "queued"
	JobActive JobState = "active"
	JobDone   JobState = "done"
	JobFailed JobState = "failed"
)

// Job is the in-memory record described in §3's data model — it never
// touches the durable store; its lifetime is enqueue-to-history-eviction.
type Job struct {
	ID         string
	BookID     string
	Priority   int
	EnqueuedAt time.Time
	State      JobState
	Error      string

	seq uint64 // heap tiebreaker, assigned by the queue on push
}

// BookSyncer is what the JobEngine's worker loop calls per job (§4.6). It is
// satisfied structurally by [catalog.Manager]; the engine depends on this
// interface rather than on the Manager type itself.
type BookSyncer interface {
	RefreshBookInfo(ctx context.Context, bookID string) error
	SyncChapterList(ctx context.Context, bookID string) error
}
