// geochat/models/services.go
package models

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// StorageService persists opaque files such as database backups.
type StorageService interface {
	SaveFile(ctx context.Context, filename string, data []byte, contentType string) (string, error)
	DeleteFile(ctx context.Context, path string) error
}

// --- Stateful Services ---

// RateLimiter hands out a token bucket per key (a user id or an IP address).
type RateLimiter struct {
	Mu       sync.Mutex
	Limiters map[string]*rate.Limiter
	LastSeen map[string]time.Time

	every  time.Duration
	burst  int
	expire time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewRateLimiter creates a rate limiter and starts its pruning loop.
func NewRateLimiter(every time.Duration, burst int, prune, expire time.Duration) *RateLimiter {
	rl := &RateLimiter{
		Limiters: make(map[string]*rate.Limiter),
		LastSeen: make(map[string]time.Time),
		every:    every,
		burst:    burst,
		expire:   expire,
		stop:     make(chan struct{}),
	}
	go rl.cleanup(prune)
	return rl
}

// GetLimiter retrieves or creates the limiter for key.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	limiter, exists := rl.Limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.Limiters[key] = limiter
	}
	rl.LastSeen[key] = time.Now()
	return limiter
}

// Allow reports whether key may perform one more action now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.GetLimiter(key).Allow()
}

// Stop ends the pruning loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanup periodically removes keys not seen within the expiry window.
func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.prune(time.Now().Add(-rl.expire))
		}
	}
}

func (rl *RateLimiter) prune(cutoff time.Time) {
	rl.Mu.Lock()
	defer rl.Mu.Unlock()
	for key, lastSeen := range rl.LastSeen {
		if lastSeen.Before(cutoff) {
			delete(rl.Limiters, key)
			delete(rl.LastSeen, key)
		}
	}
}
