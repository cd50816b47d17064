// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taibuivan/votegate/internal/platform/apperr"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/respond"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// addressLimiter keeps one token bucket per client address.
type addressLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
}

func newAddressLimiter(rps float64, burst int) *addressLimiter {
	return &addressLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

func (limiter *addressLimiter) allow(address string, now time.Time) bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	entry, found := limiter.buckets[address]
	if !found {
		entry = &bucket{limiter: rate.NewLimiter(limiter.rps, limiter.burst)}
		limiter.buckets[address] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// evictIdle forgets addresses not seen for idle.
func (limiter *addressLimiter) evictIdle(now time.Time, idle time.Duration) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	for address, entry := range limiter.buckets {
		if now.Sub(entry.lastSeen) > idle {
			delete(limiter.buckets, address)
		}
	}
}

// RateLimit throttles each client address to rps with the given burst and
// answers 429 RATE_LIMITED beyond it.
//
// Idle buckets are evicted in the background until context is cancelled.
func RateLimit(context context.Context, rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newAddressLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(constants.RateLimitCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				limiter.evictIdle(now, constants.RateLimitClientTTL)
			case <-context.Done():
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if !limiter.allow(RealIP(request), time.Now()) {
				writer.Header().Set(constants.HeaderRetryAfter, "1")
				respond.Error(writer, request, apperr.RateLimited(1))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}
