package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// ipRateLimiter hands out one token bucket per client IP.
type ipRateLimiter struct {
	mu  sync.Mutex
	ips map[string]*rate.Limiter
	r   rate.Limit
	b   int
}

func newIPRateLimiter(r float64, b int) *ipRateLimiter {
	if b < 1 {
		b = 1
	}
	return &ipRateLimiter{
		ips: make(map[string]*rate.Limiter),
		r:   rate.Limit(r),
		b:   b,
	}
}

func (l *ipRateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.ips[ip]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.ips[ip] = limiter
	}
	return limiter
}

// allow reports whether ip may make a request now.
func (l *ipRateLimiter) allow(ip string) bool {
	return l.limiter(ip).Allow()
}
