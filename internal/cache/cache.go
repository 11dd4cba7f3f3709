// Package cache stores computed callback outputs, in Redis when available and in memory
// otherwise.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Cache defines the interface for all cache implementations
type Cache interface {
	// Get retrieves a value from the cache. A missing key is ErrCacheNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with optional TTL (0 = default TTL)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all entries under the cache prefix
	Clear(ctx context.Context) error

	// Ping checks if the cache is accessible
	Ping(ctx context.Context) error

	// Close releases the cache resources
	Close() error
}

// Config holds common cache configuration
type Config struct {
	// Default TTL for cache entries (negative = no expiration)
	DefaultTTL time.Duration

	// Key prefix for all cache keys
	Prefix string

	// Enable/disable cache (useful for testing)
	Enabled bool
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultTTL: 10 * time.Minute,
		Prefix:     "covid:",
		Enabled:    true,
	}
}

// CacheError represents a cache operation error
type CacheError struct {
	Op  string // Operation that failed
	Key string // Cache key involved
	Err error  // Underlying error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return "cache " + e.Op + " " + e.Key + " failed: " + e.Err.Error()
	}
	return "cache " + e.Op + " failed: " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

// Common cache errors
var (
	ErrCacheNotFound = errors.New("cache: key not found")
	ErrCacheDisabled = errors.New("cache: disabled")
)

// IsMiss reports whether err means the key is absent or the cache is switched off,
// as opposed to a failing backend.
func IsMiss(err error) bool {
	return errors.Is(err, ErrCacheNotFound) || errors.Is(err, ErrCacheDisabled)
}

// Key derives a fixed length key from parts with a blake2b-256 digest. Parts are
// length delimited so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h, _ := blake2b.New256(nil)
	var n [8]byte
	for _, p := range parts {
		l := uint64(len(p))
		for i := range n {
			n[i] = byte(l >> (8 * i))
		}
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func ttlOrDefault(ttl, def time.Duration) time.Duration {
	if ttl == 0 {
		return def
	}
	return ttl
}
