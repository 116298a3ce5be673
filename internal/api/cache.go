package api

import (
	"bytes"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheTTL is how long a cached GET response is served before the next
// request falls through to the store again. The query API has no push
// invalidation, so a short TTL is the only staleness bound.
const cacheTTL = 5 * time.Second

// cacheEntry holds a captured response body, status code and the time it
// was stored, keyed by full request path+query string.
type cacheEntry struct {
	status  int
	body    []byte
	header  http.Header
	storedAt time.Time
}

// responseCache is a small LRU keyed by request path+query, giving every
// read-only GET endpoint response caching without each handler needing to
// know about it.
type responseCache struct {
	entries *lru.Cache[string, cacheEntry]
}

// newResponseCache builds a responseCache holding up to size entries.
func newResponseCache(size int) *responseCache {
	c, err := lru.New[string, cacheEntry](size)
	if err != nil {
		// size is always a positive compile-time constant from the caller;
		// lru.New only errors on size <= 0.
		panic(err)
	}
	return &responseCache{entries: c}
}

// cacheMiddleware serves GET requests from the LRU when a fresh entry
// exists, and captures the handler's response into the cache otherwise.
func (c *responseCache) cacheMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := r.URL.RequestURI()
		if entry, ok := c.entries.Get(key); ok && time.Since(entry.storedAt) < cacheTTL {
			apiCacheHits.Inc()
			for k, vs := range entry.header {
				for _, v := range vs {
					w.Header().Add(k, v)
				}
			}
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(entry.status)
			_, _ = w.Write(entry.body)
			return
		}
		apiCacheMisses.Inc()

		rec := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK, body: &bytes.Buffer{}}
		next.ServeHTTP(rec, r)

		c.entries.Add(key, cacheEntry{
			status:   rec.statusCode,
			body:     rec.body.Bytes(),
			header:   rec.Header().Clone(),
			storedAt: time.Now(),
		})
	})
}

// captureWriter tees a handler's response into an in-memory buffer so it
// can be replayed from the cache on a later hit, while still writing
// through to the real client on this request.
type captureWriter struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (c *captureWriter) WriteHeader(statusCode int) {
	c.statusCode = statusCode
	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}
