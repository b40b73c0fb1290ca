package cache

import (
	"net/url"
	"strings"
)

// keyPrefix namespaces restcsv entries in a shared Redis.
const keyPrefix = "restcsv"

// CacheKey identifies a cached response.
type CacheKey struct {
	// URL is the request URL without the per-page parameters.
	URL string

	// Params are the per-page query parameters.
	Params url.Values

	// AuthScope separates responses fetched with different credentials.
	// Empty for anonymous requests.
	AuthScope string
}

// String generates a deterministic cache key string.
// Format: restcsv:<query-escaped url>:<encoded params>:<auth scope>
//
// The URL and the params are escaped, so none of the segments contains ':'
// and distinct requests never share a key. Empty segments are kept.
//
// Example:
//
//	restcsv:https%3A%2F%2Fswapi.dev%2Fapi%2Fpeople%2F:page=2&per_page=10:
func (k CacheKey) String() string {
	return strings.Join([]string{
		urlPrefix(k.URL),
		k.Params.Encode(),
		url.QueryEscape(k.AuthScope),
	}, ":")
}

// urlPrefix returns the leading key segments shared by every entry cached
// for rawURL.
func urlPrefix(rawURL string) string {
	return keyPrefix + ":" + url.QueryEscape(rawURL)
}
