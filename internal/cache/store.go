// Package cache keeps per-entity analysis results for a bounded time so that
// repeated searches skip the remote analysis call.
package cache

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// DefaultTTL is how long an analysis stays fresh.
const DefaultTTL = 24 * time.Hour

// Store is the interface for cache backends.
// Implementations: SQLiteStore (persistent), MemStore (in-process).
type Store interface {
	io.Closer

	// Get returns the value for key. ok is false for a missing or expired key.
	Get(ctx context.Context, key string) (value json.RawMessage, ok bool, err error)

	// Set stores value under key. ttl <= 0 stores it without expiry.
	Set(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error

	// Purge removes expired entries and returns how many were removed.
	Purge(ctx context.Context) (int, error)
}

// Clock returns the current time; stores take one so tests can move time.
type Clock func() time.Time
