// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import "context"

// AccessTracker records that a book was read, breaking the cyclic
// dependency between [Manager] and the deferred scheduler called out in
// SPEC_FULL.md's design notes: Manager depends on this interface; the
// worksync package's scheduler satisfies it.
type AccessTracker interface {
	TrackAccess(ctx context.Context, bookID string) error
}

// JobEnqueuer schedules a background SyncBook job, breaking the cyclic
// dependency between [Manager] and the job engine: Manager depends on this
// interface; the worksync package's engine satisfies it.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, bookID string, priority int) (jobID string, err error)
}
