// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package catalog

import (
	"context"
	"time"
)

// MemoryCache is the bounded-TTL, approximate-LRU tier in front of [Store]
// (§4.2). Keys are logical [Fingerprint]s. Operations are non-blocking from
// the caller's perspective and must not hold a lock across an upstream
// fetch — composition with the upstream tier lives entirely in [Manager].
type MemoryCache interface {
	// Get returns the cached bytes for key and whether the entry is still
	// within its TTL. A miss returns nil, false, nil.
	Get(ctx context.Context, key Fingerprint) (value []byte, fresh bool, err error)
	// Put stores value under key with the given TTL.
	Put(ctx context.Context, key Fingerprint, value []byte, ttl time.Duration) error
	// Invalidate drops every key sharing prefix, used by force-resync and
	// /admin/cache/clear.
	Invalidate(ctx context.Context, prefix string) error
	// Size reports the approximate number of entries currently cached,
	// surfaced by /health.
	Size(ctx context.Context) (int64, error)
	// Clear drops every cached entry, used by /admin/cache/clear.
	Clear(ctx context.Context) error
}
