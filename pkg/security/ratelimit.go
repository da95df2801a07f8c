package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter applies a global and a per-client token bucket
type ClientLimiter struct {
	global  *rate.Limiter
	clients map[string]*clientEntry
	mu      sync.Mutex

	perClient rate.Limit
	burst     int
	idle      time.Duration
	now       func() time.Time
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows requestsPerSecond per client with the given burst. The global
// bucket admits ten clients' worth of traffic. Clients unseen for idle are forgotten.
func NewClientLimiter(requestsPerSecond float64, burst int, idle time.Duration) *ClientLimiter {
	if burst <= 0 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	return &ClientLimiter{
		global:    rate.NewLimiter(rate.Limit(requestsPerSecond*10), burst*10),
		clients:   make(map[string]*clientEntry),
		perClient: rate.Limit(requestsPerSecond),
		burst:     burst,
		idle:      idle,
		now:       time.Now,
	}
}

// Allow reports whether a request from clientID may proceed now
func (l *ClientLimiter) Allow(clientID string) bool {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.clients[clientID]
	if !ok {
		l.evict(now)
		entry = &clientEntry{limiter: rate.NewLimiter(l.perClient, l.burst)}
		l.clients[clientID] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	if !entry.limiter.AllowN(now, 1) {
		return false
	}
	return l.global.AllowN(now, 1)
}

// Clients returns the number of tracked clients
func (l *ClientLimiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// evict drops idle clients. Callers hold mu.
func (l *ClientLimiter) evict(now time.Time) {
	for id, e := range l.clients {
		if now.Sub(e.lastSeen) > l.idle {
			delete(l.clients, id)
		}
	}
}
