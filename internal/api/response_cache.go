package api

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// responseCache keeps rendered JSON for the heavy aggregate endpoints.
// Entries expire on a TTL and are also invalidated eagerly when a task
// finishes, so the dashboard sees fresh totals right after a collection
// run instead of waiting out the TTL.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

var apiCache = &responseCache{entries: make(map[string]cacheEntry)}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.body, true
}

func (c *responseCache) set(key string, body []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expiresAt: time.Now().Add(ttl)}
}

// invalidatePrefix drops every entry whose key starts with prefix.
func (c *responseCache) invalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// cachedHandler serves the wrapped handler's JSON from cache for the given
// TTL. The key is the full request URI, so different query strings cache
// independently.
func cachedHandler(ttl time.Duration, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.RequestURI()

		if body, ok := apiCache.get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}

		rec := &bodyCapture{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)

		if rec.status >= 200 && rec.status < 300 && len(rec.body) > 0 {
			apiCache.set(key, rec.body, ttl)
		}
	}
}

// bodyCapture tees the response body so it can be cached after writing.
type bodyCapture struct {
	http.ResponseWriter
	status int
	body   []byte
}

func (b *bodyCapture) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyCapture) Write(p []byte) (int, error) {
	b.body = append(b.body, p...)
	return b.ResponseWriter.Write(p)
}
