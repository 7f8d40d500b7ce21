package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/netfabric/fabsync/internal/server/response"
)

// Limiter applies a per-client token bucket. Buckets refill
// continuously at the configured per-minute rate and hold at most one
// minute of burst.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   float64
	logger  *zerolog.Logger
	now     func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// Buckets idle longer than this are pruned on the next lookup pass.
const bucketIdleTTL = 10 * time.Minute

// NewLimiter creates a limiter allowing perMinute requests per client.
func NewLimiter(perMinute int, logger *zerolog.Logger) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    float64(perMinute) / 60.0,
		burst:   float64(perMinute),
		logger:  logger,
		now:     time.Now,
	}
}

// Allow reports whether a request from the client may proceed, spending
// one token if so.
func (l *Limiter) Allow(client string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[client]
	if !ok {
		if len(l.buckets) > 1024 {
			l.prune(now)
		}
		b = &bucket{tokens: l.burst, last: now}
		l.buckets[client] = b
	}

	b.tokens += now.Sub(b.last).Seconds() * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// prune drops idle buckets. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	for client, b := range l.buckets {
		if now.Sub(b.last) > bucketIdleTTL {
			delete(l.buckets, client)
		}
	}
}

// RateLimit rejects requests exceeding the limiter's budget with 429.
func RateLimit(l *Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if !l.Allow(client) {
				l.logger.Warn().
					Str("client", client).
					Str("path", r.URL.Path).
					Msg("rate limit exceeded")
				response.RateLimited(w, "rate limit exceeded, retry later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
