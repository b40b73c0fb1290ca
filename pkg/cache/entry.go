package cache

import (
	"time"
)

// CacheEntry is a stored response body with its freshness window.
type CacheEntry struct {
	Data       []byte    `json:"data"`
	StatusCode int       `json:"status_code"`
	CachedAt   time.Time `json:"cached_at"`
	Expires    time.Time `json:"expires"`
}

// ExpiredAt reports whether the entry is stale at now.
func (e *CacheEntry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Remaining returns how long the entry stays fresh after now, or 0 once it
// is stale.
func (e *CacheEntry) Remaining(now time.Time) time.Duration {
	if e.ExpiredAt(now) {
		return 0
	}
	return e.Expires.Sub(now)
}

// Age returns how long ago the entry was stored.
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}
