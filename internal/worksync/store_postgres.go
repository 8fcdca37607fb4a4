// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package worksync

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/yomira/internal/platform/dberr"
)

// postgresQueueStore implements [QueueStore] against the sync.queue_entry
// table, mirroring the catalog package's raw-SQL pgxpool style.
type postgresQueueStore struct {
	pool *pgxpool.Pool
}

// NewPostgresQueueStore constructs a PostgreSQL-backed [QueueStore].
func NewPostgresQueueStore(pool *pgxpool.Pool) QueueStore {
	return &postgresQueueStore{pool: pool}
}

func (s *postgresQueueStore) Get(ctx context.Context, bookID string) (*QueueEntry, error) {
	entry := &QueueEntry{BookID: bookID}
	var lastAttempt *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT added_at, accessed_at, access_count, priority, last_attempt, status
		FROM sync.queue_entry
		WHERE book_id = $1
	`, bookID).Scan(&entry.AddedAt, &entry.AccessedAt, &entry.AccessCount, &entry.Priority, &lastAttempt, &entry.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dberr.Wrap(err, "get queue entry")
	}
	if lastAttempt != nil {
		entry.LastAttempt = *lastAttempt
	}
	return entry, nil
}

func (s *postgresQueueStore) Upsert(ctx context.Context, entry *QueueEntry) error {
	var lastAttempt *time.Time
	if !entry.LastAttempt.IsZero() {
		lastAttempt = &entry.LastAttempt
	}

	return dberr.Retry(ctx, "upsert queue entry", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO sync.queue_entry (book_id, added_at, accessed_at, access_count, priority, last_attempt, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (book_id) DO UPDATE SET
				accessed_at  = EXCLUDED.accessed_at,
				access_count = EXCLUDED.access_count,
				priority     = EXCLUDED.priority,
				last_attempt = COALESCE(EXCLUDED.last_attempt, sync.queue_entry.last_attempt),
				status       = EXCLUDED.status
		`, entry.BookID, entry.AddedAt, entry.AccessedAt, entry.AccessCount, entry.Priority, lastAttempt, entry.Status)
		return err
	})
}

// ListPending returns every entry with status='pending'. Priority ordering
// (§3 invariant I6) is applied by the caller ([Scheduler], via
// sortQueueEntries), not here; rows come back in no particular order.
func (s *postgresQueueStore) ListPending(ctx context.Context) ([]*QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT book_id, added_at, accessed_at, access_count, priority, last_attempt, status
		FROM sync.queue_entry
		WHERE status = $1
	`, QueuePending)
	if err != nil {
		return nil, dberr.Wrap(err, "list pending queue entries")
	}
	defer rows.Close()

	var entries []*QueueEntry
	for rows.Next() {
		entry := &QueueEntry{}
		var lastAttempt *time.Time
		if err := rows.Scan(&entry.BookID, &entry.AddedAt, &entry.AccessedAt, &entry.AccessCount,
			&entry.Priority, &lastAttempt, &entry.Status); err != nil {
			return nil, dberr.Wrap(err, "scan queue entry")
		}
		if lastAttempt != nil {
			entry.LastAttempt = *lastAttempt
		}
		entries = append(entries, entry)
	}
	return entries, dberr.Wrap(rows.Err(), "list pending queue entries")
}

func (s *postgresQueueStore) UpdateStatus(ctx context.Context, bookID string, status QueueStatus) error {
	return dberr.Retry(ctx, "update queue entry status", func() error {
		_, err := s.pool.Exec(ctx, `
			UPDATE sync.queue_entry SET status = $2 WHERE book_id = $1
		`, bookID, status)
		return err
	})
}

func (s *postgresQueueStore) ClearTerminal(ctx context.Context) error {
	return dberr.Retry(ctx, "clear terminal queue entries", func() error {
		_, err := s.pool.Exec(ctx, `
			DELETE FROM sync.queue_entry WHERE status IN ($1, $2)
		`, QueueComplete, QueueFailed)
		return err
	})
}
