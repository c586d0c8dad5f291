package middleware

// Responses for history and export queries only change when a poll lands, so
// they are cached in memory keyed by URL plus the coordinator's success
// generation. golang-lru evicts the least recently accessed entries.

import (
	"bytes"
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru"
)

type cachedResponse struct {
	status int
	header http.Header
	body   []byte
}

// bufferRecorder captures a full response for caching.
type bufferRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *bufferRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *bufferRecorder) Write(p []byte) (int, error) {
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}

// Cache memoizes successful GET responses. generation feeds the cache key so
// entries from before the latest successful poll are never served.
func Cache(size int, generation func() uint64) (func(http.Handler) http.Handler, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, err
	}

	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := fmt.Sprintf("%d:%s", generation(), r.URL.RequestURI())
			if entry, ok := cache.Get(key); ok {
				resp := entry.(cachedResponse)
				for k, vs := range resp.header {
					w.Header()[k] = vs
				}
				w.WriteHeader(resp.status)
				w.Write(resp.body)
				return
			}

			rec := &bufferRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK {
				cache.Add(key, cachedResponse{
					status: rec.status,
					header: rec.Header().Clone(),
					body:   rec.body.Bytes(),
				})
			}
		})
	}
	return mw, nil
}
