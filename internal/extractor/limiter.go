package extractor

import (
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/time/rate"
)

const maxTrackedHosts = 256

// hostLimiters keeps one token bucket per host so a slow origin only
// throttles requests to itself. Least recently used hosts are forgotten.
type hostLimiters struct {
	mu    sync.Mutex
	cache *lru.Cache
	limit rate.Limit
}

func newHostLimiters(perSecond float64) *hostLimiters {
	return &hostLimiters{
		cache: lru.New(maxTrackedHosts),
		limit: rate.Limit(perSecond),
	}
}

func (h *hostLimiters) get(host string) *rate.Limiter {
	host = strings.ToLower(host)

	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.cache.Get(host); ok {
		return l.(*rate.Limiter)
	}
	l := rate.NewLimiter(h.limit, 1)
	h.cache.Add(host, l)
	return l
}
