package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit enforces a per-IP token bucket on the routes it wraps. Generation
// routes sit behind it; auth and health do not.
func RateLimit(perMinute, burst int) func(http.Handler) http.Handler {
	limiters := &sync.Map{}
	every := time.Minute / time.Duration(perMinute)

	limiterFor := func(ip string) *rate.Limiter {
		if v, ok := limiters.Load(ip); ok {
			return v.(*rate.Limiter)
		}
		l := rate.NewLimiter(rate.Every(every), burst)
		actual, _ := limiters.LoadOrStore(ip, l)
		return actual.(*rate.Limiter)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiterFor(ip).Allow() {
				w.Header().Set("Retry-After", "60")
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
