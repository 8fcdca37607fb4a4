// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Sync Core: cache TTLs, job engine sizing, and scheduler defaults.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "yomira-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Sync Core Defaults
//
// Defaults for the sync core. The config loader does not read these: it
// applies its own envDefault tags, which carry the same values. The worksync
// engine falls back to DefaultJobWorkers and DefaultJobRateLimitSeconds when
// its config leaves the corresponding field at zero.
const (
	// DefaultCacheTTL is how long a memory-tier cache entry is considered fresh.
	DefaultCacheTTL = 6 * time.Hour

	// DefaultCacheMaxItems bounds the memory tier's approximate LRU eviction target.
	DefaultCacheMaxItems = 50_000

	// DefaultJobWorkers is the number of goroutines in the background job pool.
	DefaultJobWorkers = 4

	// DefaultJobRateLimitSeconds is the inter-job sleep each worker observes
	// between consecutive job starts, independent of the per-request
	// synchronous rate limiter.
	DefaultJobRateLimitSeconds = 2.0

	// DefaultMidnightSyncHour and DefaultMidnightSyncMinute give the wall-clock
	// trigger for the nightly deferred-sync pass, local to the server's TZ.
	DefaultMidnightSyncHour   = 0
	DefaultMidnightSyncMinute = 30

	// JobCompletionHorizon is how long a finished job stays in the dedup
	// window before an identical request is allowed to re-enqueue. This is
	// independent of the scheduler's nightly pass frequency (§9 open
	// question resolution: the two horizons are not the same knob).
	JobCompletionHorizon = 5 * time.Minute

	// SchedulerTickInterval is the minute-granularity poll used to detect the
	// nightly trigger without draining CPU on a tight loop.
	SchedulerTickInterval = 1 * time.Minute

	// ChapterBatchSize bounds how many chapters are upserted per store round-trip.
	ChapterBatchSize = 100
)

// # Job Priorities (sync queue ordering, spec invariant I6)
const (
	// PriorityUserAccess is the default priority for a book synced because
	// a reader requested it.
	PriorityUserAccess = 0

	// PriorityNightly is assigned to entries the deferred scheduler's
	// nightly pass auto-enqueues.
	PriorityNightly = 1

	// PriorityManualTrigger is the floor for an admin-triggered force-resync;
	// force-resync may use any value ≥ this.
	PriorityManualTrigger = 10
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	// SchemaSync holds the catalog and sync-pipeline tables: category, book,
	// chapter, chapter_content, queue_entry.
	SchemaSync = "sync"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixBook and RedisPrefixChapter name per-resource Redis key
	// prefixes. The catalog memory-tier cache does not use these
	// constants: it keys every entry as "yomira:cache:" followed by the
	// resource fingerprint.
	RedisPrefixBook    = "cache:book:"
	RedisPrefixChapter = "cache:chapter:"

	// RedisPrefixChapterList caches a book's ordered chapter index separately
	// from individual chapter content, since the two have different
	// invalidation triggers (a new chapter vs. a re-synced chapter body).
	RedisPrefixChapterList = "cache:chapters:"
)
