package stream

import (
	"sync"
)

// defaultMaxTotal caps concurrent streams across all clients.
const defaultMaxTotal = 1000

// Limits a stream admission can be refused on.
const (
	limitPerIP = "per_ip"
	limitTotal = "total"
)

// streamLimiter admits websocket streams under a per-IP and a global cap.
type streamLimiter struct {
	mu       sync.Mutex
	perIP    map[string]int
	open     int
	maxPerIP int
	maxTotal int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxTotal < 1 {
		maxTotal = defaultMaxTotal
	}
	return &streamLimiter{
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// admit reserves a stream slot for ip. On success it returns a release
// function that frees the slot; calls after the first are no-ops. On refusal
// release is nil and limit names the cap that was hit.
func (l *streamLimiter) admit(ip string) (release func(), limit string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.open >= l.maxTotal:
		return nil, limitTotal
	case l.perIP[ip] >= l.maxPerIP:
		return nil, limitPerIP
	}
	l.perIP[ip]++
	l.open++

	var once sync.Once
	return func() { once.Do(func() { l.free(ip) }) }, ""
}

func (l *streamLimiter) free(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open--
	if n := l.perIP[ip] - 1; n > 0 {
		l.perIP[ip] = n
	} else {
		delete(l.perIP, ip)
	}
}

// usage reports the open streams for ip and overall.
func (l *streamLimiter) usage(ip string) (forIP, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip], l.open
}
