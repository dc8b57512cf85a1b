package api

import (
	"sync"

	"golang.org/x/time/rate"
)

// keyLimiters хранит token bucket на каждый ключ клиента.
type keyLimiters struct {
	limiters sync.Map
	rps      float64
	burst    int
}

func newKeyLimiters(rps float64, burst int) *keyLimiters {
	if burst <= 0 {
		burst = 5
	}
	return &keyLimiters{rps: rps, burst: burst}
}

func (l *keyLimiters) get(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*rate.Limiter)
	}

	lim := rate.NewLimiter(rate.Limit(l.rps), l.burst)
	actual, _ := l.limiters.LoadOrStore(key, lim)
	return actual.(*rate.Limiter)
}

// allow is true when rps is disabled or the key has a token left.
func (l *keyLimiters) allow(key string) bool {
	if l.rps <= 0 {
		return true
	}
	return l.get(key).Allow()
}
