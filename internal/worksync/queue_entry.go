// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package worksync

import (
	"context"
	"time"
)

// QueueStatus is a [QueueEntry]'s lifecycle state, mutated exclusively by
// [Scheduler] (§3 ownership rule: "DeferredScheduler exclusively owns
// SyncQueueEntry mutations").
type QueueStatus string

const (
	QueuePending  QueueStatus = "pending"
	QueueSyncing  QueueStatus = "syncing"
	QueueComplete QueueStatus = "completed"
	QueueFailed   QueueStatus = "failed"
)

// QueueEntry is the durable SyncQueueEntry row of §3.
type QueueEntry struct {
	BookID      string
	AddedAt     time.Time
	AccessedAt  time.Time
	AccessCount int
	Priority    int
	LastAttempt time.Time
	Status      QueueStatus
}

// QueueStore is the durable persistence contract for [QueueEntry] rows,
// owned exclusively by [Scheduler] (§4.1's queue_* operations).
type QueueStore interface {
	Get(ctx context.Context, bookID string) (*QueueEntry, error)
	Upsert(ctx context.Context, entry *QueueEntry) error
	ListPending(ctx context.Context) ([]*QueueEntry, error)
	UpdateStatus(ctx context.Context, bookID string, status QueueStatus) error
	ClearTerminal(ctx context.Context) error
}
