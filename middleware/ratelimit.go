package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/surveyforge/surveyforge/httpx"
	"golang.org/x/time/rate"
)

// Per-minute budgets by operation class.
var (
	readLimiter  = NewRateLimiter(200)
	writeLimiter = NewRateLimiter(60)
	bulkLimiter  = NewRateLimiter(10)
)

func ReadLimit(next http.HandlerFunc) http.HandlerFunc {
	return readLimiter.Wrap(next)
}

func WriteLimit(next http.HandlerFunc) http.HandlerFunc {
	return writeLimiter.Wrap(next)
}

func BulkLimit(next http.HandlerFunc) http.HandlerFunc {
	return bulkLimiter.Wrap(next)
}

// RateLimiter keeps one token bucket per caller. Buckets refill continuously
// at perMinute/60 per second with a burst of the full minute budget, which
// approximates a sliding one-minute window.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMinute int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		visitors:  make(map[string]*visitor),
		perMinute: perMinute,
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lim := rl.limiterFor(clientKey(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))

		res := lim.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			retry := int(math.Ceil(delay.Seconds()))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			httpx.TooManyRequests(w, retry)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.Tokens())))
		next(w, r)
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.perMinute))/60.0, rl.perMinute),
		}
		rl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) cleanup() {
	for range time.Tick(time.Minute) {
		rl.mu.Lock()
		for key, v := range rl.visitors {
			if time.Since(v.lastSeen) > 5*time.Minute {
				delete(rl.visitors, key)
			}
		}
		rl.mu.Unlock()
	}
}

// clientKey is the caller IP, plus the user id when authenticated so users
// behind a shared NAT do not exhaust each other's budget.
func clientKey(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if userID, ok := r.Context().Value("userID").(uint); ok {
		return fmt.Sprintf("%s:%d", ip, userID)
	}
	return ip
}
