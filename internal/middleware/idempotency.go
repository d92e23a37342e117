package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/TaskDealer/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
	maxIdempotencyKeyLen = 255
)

// idempotencyEntry stores a recorded HTTP response.
type idempotencyEntry struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Idempotency returns middleware that replays the recorded response when a
// mutating request repeats its Idempotency-Key. Keys are scoped to method
// and path. 5xx responses are not recorded, so a request that failed on
// the server side can be retried under the same key.
func Idempotency(store cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				next.ServeHTTP(w, r)
				return
			}
			cacheKey := "idem:" + r.Method + ":" + r.URL.Path + ":" + key

			if data, found, err := store.Get(r.Context(), cacheKey); err != nil {
				slog.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
			} else if found {
				var cached idempotencyEntry
				if err := json.Unmarshal(data, &cached); err == nil {
					if cached.ContentType != "" {
						w.Header().Set("Content-Type", cached.ContentType)
					}
					w.Header().Set(headerReplayed, "true")
					w.WriteHeader(cached.StatusCode)
					_, _ = w.Write(cached.Body)
					return
				}
				slog.WarnContext(r.Context(), "idempotency: corrupt cache entry", "key", key)
			}

			rec := &responseRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.overflow {
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				StatusCode:  rec.statusCode,
				ContentType: w.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := store.Set(r.Context(), cacheKey, data, ttl); err != nil {
				slog.WarnContext(r.Context(), "idempotency: failed to store response", "key", key, "error", err)
			}
		})
	}
}

// responseRecorder passes the response through while keeping a copy of up
// to maxIdempotencyBody bytes.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       *bytes.Buffer
	overflow   bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.overflow {
		if r.body.Len()+len(b) > maxIdempotencyBody {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
