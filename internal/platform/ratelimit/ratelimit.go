// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ratelimit provides a per-host token-bucket limiter for outbound
upstream fetches.

It mirrors the per-IP limiter in [internal/platform/middleware], but keys on
the destination host rather than the caller's IP: every fetch against the
same upstream host — whether triggered by a synchronous read-through miss or
a background job — shares one bucket, so the job engine and the HTTP path
cannot together exceed the configured rate against the catalog.
*/
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter hands out a [rate.Limiter] per destination host, creating one
// lazily on first use.
//
// # Concurrency
//
// HostLimiter is safe for concurrent use.
type HostLimiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

// NewHostLimiter returns a [HostLimiter] that allows rps requests per second
// per host, with the given burst capacity.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	return &HostLimiter{
		hosts: make(map[string]*rate.Limiter),
		rps:   rate.Limit(rps),
		burst: burst,
	}
}

// Limiter returns the [rate.Limiter] for host, creating it if necessary.
func (h *HostLimiter) Limiter(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.hosts[host]
	if !ok {
		limiter = rate.NewLimiter(h.rps, h.burst)
		h.hosts[host] = limiter
	}
	return limiter
}

// Wait blocks until a token for host is available or ctx is cancelled.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.Limiter(host).Wait(ctx)
}

// widenFloor bounds how far [HostLimiter.Widen] can push a host's rate down,
// so a run of 429s can never stall the limiter to a standstill.
const widenFloor = rate.Limit(1.0 / 60.0)

// Widen scales host's allowed rate by factor (e.g. 0.5 halves it), for a
// fetcher that just observed a 429 and needs to back off beyond its fixed
// configured rate. The new rate is floored at one request per minute.
func (h *HostLimiter) Widen(host string, factor float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	limiter, ok := h.hosts[host]
	if !ok {
		limiter = rate.NewLimiter(h.rps, h.burst)
		h.hosts[host] = limiter
	}

	widened := rate.Limit(float64(limiter.Limit()) * factor)
	if widened < widenFloor {
		widened = widenFloor
	}
	limiter.SetLimit(widened)
}
