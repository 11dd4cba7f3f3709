package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache implements an in-memory cache with TTL support
type MemoryCache struct {
	config    *Config
	items     map[string]*memoryCacheItem
	mu        sync.RWMutex
	stopCh    chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

type memoryCacheItem struct {
	value      []byte
	expiration time.Time
	hasExpiry  bool
}

func (it *memoryCacheItem) expired(now time.Time) bool {
	return it.hasExpiry && now.After(it.expiration)
}

// NewMemoryCache creates a new in-memory cache and starts its cleanup goroutine
func NewMemoryCache(config *Config) *MemoryCache {
	if config == nil {
		config = DefaultConfig()
	}

	mc := &MemoryCache{
		config: config,
		items:  make(map[string]*memoryCacheItem),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}

	go mc.cleanupExpired(time.Minute)

	return mc
}

// Get retrieves a value from the cache
func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if !mc.config.Enabled {
		return nil, ErrCacheDisabled
	}

	key = mc.prefixKey(key)

	mc.mu.RLock()
	item, exists := mc.items[key]
	mc.mu.RUnlock()

	if !exists {
		return nil, ErrCacheNotFound
	}

	if item.expired(mc.now()) {
		mc.mu.Lock()
		if cur, ok := mc.items[key]; ok && cur == item {
			delete(mc.items, key)
		}
		mc.mu.Unlock()
		return nil, ErrCacheNotFound
	}

	return item.value, nil
}

// Set stores a value in the cache with optional TTL
func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	ttl = ttlOrDefault(ttl, mc.config.DefaultTTL)
	item := &memoryCacheItem{
		value:     append([]byte(nil), value...),
		hasExpiry: ttl > 0,
	}
	if item.hasExpiry {
		item.expiration = mc.now().Add(ttl)
	}

	mc.mu.Lock()
	mc.items[mc.prefixKey(key)] = item
	mc.mu.Unlock()

	return nil
}

// Delete removes a value from the cache
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	mc.mu.Lock()
	delete(mc.items, mc.prefixKey(key))
	mc.mu.Unlock()

	return nil
}

// Clear removes all entries from the cache
func (mc *MemoryCache) Clear(ctx context.Context) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}

	mc.mu.Lock()
	mc.items = make(map[string]*memoryCacheItem)
	mc.mu.Unlock()

	return nil
}

// Len returns the number of stored entries, expired ones included until cleanup
func (mc *MemoryCache) Len() int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.items)
}

// Ping checks if the cache is accessible
func (mc *MemoryCache) Ping(ctx context.Context) error {
	if !mc.config.Enabled {
		return ErrCacheDisabled
	}
	return nil
}

// Close stops the cleanup goroutine
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stopCh) })
	return nil
}

// cleanupExpired periodically removes expired items
func (mc *MemoryCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpiredItems()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MemoryCache) removeExpiredItems() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for key, item := range mc.items {
		if item.expired(now) {
			delete(mc.items, key)
		}
	}
}

func (mc *MemoryCache) prefixKey(key string) string {
	return mc.config.Prefix + key
}
