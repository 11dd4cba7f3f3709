package middlewares

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"covid_dashboard/internal/cache"
)

// RateLimitConfig holds configuration for the token bucket rate limiter
type RateLimitConfig struct {
	// Logger for structured logging (optional, uses slog.Default if nil)
	Logger *slog.Logger

	// Capacity is the maximum number of tokens in the bucket
	// Default: 30
	Capacity int

	// RefillRate is the number of tokens added per second
	// Default: 5.0
	RefillRate float64

	// Message to return when rate limit is exceeded
	// Default: "Rate limit exceeded"
	Message string

	// KeyGenerator generates the key for rate limiting
	// Default: client IP
	KeyGenerator func(r *http.Request) string

	// Store holds bucket state
	// Default: in-memory store
	Store TokenBucketStore

	// OnLimitReached is called when rate limit is exceeded
	OnLimitReached func(r *http.Request, key string)
}

// TokenBucket represents a token bucket state
type TokenBucket struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// take adds the tokens earned since the last refill and consumes one if available
func (b *TokenBucket) take(now time.Time, capacity int, refillRate float64) (bool, time.Duration) {
	elapsed := now.Sub(b.LastRefill).Seconds()
	if elapsed > 0 {
		b.Tokens = math.Min(float64(capacity), b.Tokens+elapsed*refillRate)
		b.LastRefill = now
	}

	if b.Tokens >= 1 {
		b.Tokens--
		return true, 0
	}
	wait := (1 - b.Tokens) / refillRate
	return false, time.Duration(wait * float64(time.Second))
}

// TokenBucketStore defines the interface for token bucket storage
type TokenBucketStore interface {
	// Allow checks if a request is allowed and updates the bucket
	Allow(ctx context.Context, key string, capacity int, refillRate float64) (allowed bool, remaining int, retryAfter time.Duration, err error)
	// Reset resets the bucket for a key
	Reset(ctx context.Context, key string) error
}

// MemoryTokenBucketStore implements an in-memory token bucket store
type MemoryTokenBucketStore struct {
	mu       sync.Mutex
	buckets  map[string]*TokenBucket
	now      func() time.Time
	lastScan time.Time
}

// NewMemoryTokenBucketStore creates a new in-memory token bucket store
func NewMemoryTokenBucketStore() *MemoryTokenBucketStore {
	return &MemoryTokenBucketStore{
		buckets: make(map[string]*TokenBucket),
		now:     time.Now,
	}
}

// Allow checks if a request is allowed using token bucket algorithm
func (m *MemoryTokenBucketStore) Allow(ctx context.Context, key string, capacity int, refillRate float64) (bool, int, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictIdle(now)

	bucket, ok := m.buckets[key]
	if !ok {
		bucket = &TokenBucket{Tokens: float64(capacity), LastRefill: now}
		m.buckets[key] = bucket
	}

	allowed, retryAfter := bucket.take(now, capacity, refillRate)
	return allowed, int(bucket.Tokens), retryAfter, nil
}

// Reset resets the bucket for a key
func (m *MemoryTokenBucketStore) Reset(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.buckets, key)
	return nil
}

// Len returns the number of tracked buckets
func (m *MemoryTokenBucketStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// evictIdle drops buckets untouched for 10 minutes, scanning at most every 5 minutes.
// Callers hold m.mu.
func (m *MemoryTokenBucketStore) evictIdle(now time.Time) {
	if now.Sub(m.lastScan) < 5*time.Minute {
		return
	}
	m.lastScan = now
	for key, bucket := range m.buckets {
		if now.Sub(bucket.LastRefill) > 10*time.Minute {
			delete(m.buckets, key)
		}
	}
}

// CacheTokenBucketStore keeps buckets in a shared cache so limits hold across replicas.
// The read-modify-write is not atomic; concurrent requests may each take the last token.
type CacheTokenBucketStore struct {
	cache     cache.Cache
	keyPrefix string
	now       func() time.Time
}

// NewCacheTokenBucketStore creates a new cache token bucket store
func NewCacheTokenBucketStore(c cache.Cache, keyPrefix string) *CacheTokenBucketStore {
	if keyPrefix == "" {
		keyPrefix = "rate_limit:"
	}
	return &CacheTokenBucketStore{
		cache:     c,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Allow checks if a request is allowed using token bucket algorithm with cache
func (c *CacheTokenBucketStore) Allow(ctx context.Context, key string, capacity int, refillRate float64) (bool, int, time.Duration, error) {
	fullKey := c.keyPrefix + key
	now := c.now()

	bucket := &TokenBucket{Tokens: float64(capacity), LastRefill: now}
	data, err := c.cache.Get(ctx, fullKey)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, bucket); err != nil {
			return false, 0, 0, fmt.Errorf("failed to unmarshal bucket: %w", err)
		}
	case !cache.IsMiss(err):
		return false, 0, 0, fmt.Errorf("failed to load bucket: %w", err)
	}

	allowed, retryAfter := bucket.take(now, capacity, refillRate)

	// keep the key for twice the time a full refill takes
	ttl := time.Duration(float64(capacity) / refillRate * 2 * float64(time.Second))
	if ttl < time.Minute {
		ttl = time.Minute
	}

	bucketData, err := json.Marshal(bucket)
	if err != nil {
		return false, 0, 0, fmt.Errorf("failed to marshal bucket: %w", err)
	}
	if err := c.cache.Set(ctx, fullKey, bucketData, ttl); err != nil {
		return false, 0, 0, fmt.Errorf("failed to save bucket: %w", err)
	}

	return allowed, int(bucket.Tokens), retryAfter, nil
}

// Reset resets the bucket for a key
func (c *CacheTokenBucketStore) Reset(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, c.keyPrefix+key)
}

// DefaultRateLimitConfig returns a default token bucket rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Capacity:     30,
		RefillRate:   5.0,
		Message:      "Rate limit exceeded",
		KeyGenerator: defaultKeyGenerator,
	}
}

func defaultKeyGenerator(r *http.Request) string {
	return "ip:" + getClientIP(r)
}

// KeyByIP keys buckets by client IP within scope, so limiters sharing a store keep
// separate buckets
func KeyByIP(scope string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return scope + ":ip:" + getClientIP(r)
	}
}

// RateLimit returns a token bucket rate limiting middleware
func RateLimit(config *RateLimitConfig) func(next http.Handler) http.Handler {
	if config == nil {
		config = DefaultRateLimitConfig()
	}

	store := config.Store
	if store == nil {
		store = NewMemoryTokenBucketStore()
	}
	keyFn := config.KeyGenerator
	if keyFn == nil {
		keyFn = defaultKeyGenerator
	}
	capacity := config.Capacity
	if capacity <= 0 {
		capacity = 30
	}
	refillRate := config.RefillRate
	if refillRate <= 0 {
		refillRate = 5.0
	}
	message := config.Message
	if message == "" {
		message = "Rate limit exceeded"
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	storeType := "memory"
	if _, ok := store.(*CacheTokenBucketStore); ok {
		storeType = "cache"
	}
	logger.Debug("rate limiter middleware initialized",
		"capacity", capacity,
		"refill_rate", refillRate,
		"store_type", storeType,
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, remaining, retryAfter, err := store.Allow(r.Context(), key, capacity, refillRate)
			if err != nil {
				// fail open
				logger.Error("rate limiter store error",
					"method", r.Method,
					"path", r.URL.Path,
					"key", key,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(capacity))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retrySeconds := int(math.Ceil(retryAfter.Seconds()))
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			logger.Warn("rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"key", key,
				"retry_after_seconds", retrySeconds,
			)
			if config.OnLimitReached != nil {
				config.OnLimitReached(r, key)
			}

			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds))
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]any{
				"error":               "rate_limit_exceeded",
				"message":             message,
				"retry_after_seconds": retrySeconds,
			})
		})
	}
}

// PerIP creates a per-IP rate limit configuration backed by store (nil for memory)
func PerIP(capacity int, refillRate float64, store TokenBucketStore) *RateLimitConfig {
	config := DefaultRateLimitConfig()
	config.Capacity = capacity
	config.RefillRate = refillRate
	config.Store = store
	return config
}
