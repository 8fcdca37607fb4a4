// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Yomira API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis) — backs the memory cache tier.
	RedisURL string `env:"REDIS_URL,required"`

	// Upstream catalog
	BaseURL string `env:"BASE_URL,required"`
	// NoProxy is a comma-separated host bypass list: hosts in it skip the
	// fetcher's blocked-page detector (operator-confirmed proxies/mirrors
	// that never serve the anti-bot challenge page).
	NoProxy []string `env:"NO_PROXY" envSeparator:","`
	// UpstreamRPS and UpstreamBurst size the fetcher's own per-host rate
	// limiter, independent of the background job engine's pacing.
	UpstreamRPS   float64 `env:"UPSTREAM_RPS"   envDefault:"1.0"`
	UpstreamBurst int     `env:"UPSTREAM_BURST" envDefault:"1"`

	// DBPath is kept for parity with the upstream scraper's on-disk book
	// index; nothing in this module reads it — the durable store is the
	// Postgres database at DatabaseURL.
	DBPath string `env:"DB_PATH" envDefault:"./data/yomira.db"`

	// Background job engine
	BGJobWorkers int `env:"BG_JOB_WORKERS" envDefault:"4"`
	// BGJobRateLimit is seconds between consecutive job starts per worker.
	BGJobRateLimit float64 `env:"BG_JOB_RATE_LIMIT" envDefault:"2.0"`

	// Deferred nightly sync scheduler
	MidnightSyncHour       int     `env:"MIDNIGHT_SYNC_HOUR"        envDefault:"0"`
	MidnightSyncMinute     int     `env:"MIDNIGHT_SYNC_MINUTE"      envDefault:"30"`
	MidnightSyncRateLimit  float64 `env:"MIDNIGHT_SYNC_RATE_LIMIT"  envDefault:"5.0"`

	// Memory cache tier
	CacheTTLSeconds int `env:"CACHE_TTL_SECONDS" envDefault:"21600"`
	CacheMaxItems   int `env:"CACHE_MAX_ITEMS"   envDefault:"50000"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// CacheTTL returns the configured memory-cache freshness window as a
// [time.Duration].
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
