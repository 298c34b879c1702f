package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const bucketIdleTTL = 10 * time.Minute

// tokenBuckets charges each key against its own bucket refilled at rate
// tokens per second up to burst. Idle buckets are dropped on the next sweep.
type tokenBuckets struct {
	mu        sync.Mutex
	rate      float64
	burst     float64
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newTokenBuckets(rate float64, burst int) *tokenBuckets {
	if burst < 1 {
		burst = 1
	}
	return &tokenBuckets{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// take spends one token for key. When none is left it reports how long until
// the next token arrives.
func (tb *tokenBuckets) take(key string) (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if now.Sub(tb.lastSweep) > bucketIdleTTL {
		for k, b := range tb.buckets {
			if now.Sub(b.seen) > bucketIdleTTL {
				delete(tb.buckets, k)
			}
		}
		tb.lastSweep = now
	}

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.burst, seen: now}
		tb.buckets[key] = b
	}
	b.tokens = math.Min(tb.burst, b.tokens+now.Sub(b.seen).Seconds()*tb.rate)
	b.seen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if tb.rate <= 0 {
		return false, bucketIdleTTL
	}
	return false, time.Duration((1 - b.tokens) / tb.rate * float64(time.Second))
}

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the X-Real-Ip set by chi's RealIP middleware,
// falling back to the remote address.
func ClientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// RateLimit rejects requests beyond rate per second (after an initial burst)
// with 429 and a Retry-After in whole seconds. A nil key charges by client IP.
func RateLimit(rate float64, burst int, key KeyFunc) func(http.Handler) http.Handler {
	return rateLimit(newTokenBuckets(rate, burst), key)
}

func rateLimit(tb *tokenBuckets, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := tb.take(key(r))
			if !ok {
				secs := int(math.Ceil(wait.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","hint":"too many booking attempts; wait and retry"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
