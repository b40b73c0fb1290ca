// Package cache provides an optional Redis-backed cache for JSON responses.
//
// A cached entry short-circuits the network call for an identical request,
// so repeated runs against an unchanged source are cheap and produce the
// same CSV output.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	manager := cache.NewManager(redisClient, 10*time.Minute)
//
//	key := cache.CacheKey{
//		URL:    "https://swapi.dev/api/people/",
//		Params: url.Values{"page": []string{"2"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API
//	}
//
// # Expiry
//
// Entries expire at the response's Expires header when present, otherwise
// after the manager's default TTL. Redis removes them on expiry.
//
// # Refreshing
//
// Purge drops every entry stored for an endpoint URL, whatever the page
// parameters or credentials, so the next run goes to the API:
//
//	n, err := manager.Purge(ctx, "https://swapi.dev/api/people/")
//
// # Metrics
//
//   - restcsv_cache_hits_total
//   - restcsv_cache_misses_total
//   - restcsv_cache_errors_total{operation}
package cache
