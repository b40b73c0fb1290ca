package cache

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// DefaultTTL is the fallback TTL when neither the response nor the
	// manager specifies one.
	DefaultTTL = 5 * time.Minute
)

// ResponseToEntry builds a CacheEntry from a response whose body has
// already been read.
func ResponseToEntry(resp *http.Response, body []byte, defaultTTL time.Duration) (*CacheEntry, error) {
	if resp == nil {
		return nil, fmt.Errorf("response cannot be nil")
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	now := time.Now()
	return &CacheEntry{
		Data:       body,
		StatusCode: resp.StatusCode,
		Expires:    parseExpires(resp.Header, now, defaultTTL),
		CachedAt:   now,
	}, nil
}

// parseExpires returns the Expires header time, or now + defaultTTL when the
// header is missing or unparsable. An Expires in the past yields now.
func parseExpires(headers http.Header, now time.Time, defaultTTL time.Duration) time.Time {
	expiresStr := headers.Get("Expires")
	if expiresStr == "" {
		return now.Add(defaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(defaultTTL)
	}

	if expires.Before(now) {
		return now
	}

	return expires
}
