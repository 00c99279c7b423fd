package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/openalpha/options-exchange/metrics"
)

// RateLimiter applies per-IP token buckets in front of the whole REST
// surface. This is transport protection only; the per-team order_rate
// constraint is enforced separately inside the validator.
type RateLimiter struct {
	config *RateLimitConfig

	buckets   map[string]*ipBucket
	bucketsMu sync.Mutex

	cleanupTicker *time.Ticker
	stopCh        chan struct{}
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int

	// Cleanup
	CleanupInterval time.Duration // How often to clean up old buckets
	BucketTTL       time.Duration // Time before unused bucket is removed
}

// DefaultRateLimitConfig returns default configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		CleanupInterval:   5 * time.Minute,
		BucketTTL:         time.Hour,
	}
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	rl := &RateLimiter{
		config:        config,
		buckets:       make(map[string]*ipBucket),
		cleanupTicker: time.NewTicker(config.CleanupInterval),
		stopCh:        make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop stops the rate limiter
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
	rl.cleanupTicker.Stop()
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.stopCh:
			return
		case <-rl.cleanupTicker.C:
			cutoff := time.Now().Add(-rl.config.BucketTTL)
			rl.bucketsMu.Lock()
			for ip, b := range rl.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(rl.buckets, ip)
				}
			}
			rl.bucketsMu.Unlock()
		}
	}
}

// Allow consumes one token for the given IP.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.bucketsMu.Lock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = &ipBucket{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		}
		rl.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	rl.bucketsMu.Unlock()
	return b.limiter.Allow()
}

// RateLimitMiddleware wraps a handler with per-IP rate limiting.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				metrics.GetCollector().RateLimitHits.WithLabelValues("ip").Inc()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "rate_limited",
					"message": "too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	for i := len(ip) - 1; i >= 0; i-- {
		if ip[i] == ':' {
			return ip[:i]
		}
	}
	return ip
}
