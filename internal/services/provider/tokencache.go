package provider

import (
	"context"
	"sync"
	"time"

	"settlr/internal/utils/cache"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const DefaultRefreshSkew = time.Minute

// MemoryTokenCache keeps tokens in process memory.
type MemoryTokenCache struct {
	mu     sync.RWMutex
	tokens map[string]Token
	skew   time.Duration
	group  singleflight.Group
	now    func() time.Time
}

func NewMemoryTokenCache(skew time.Duration) *MemoryTokenCache {
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &MemoryTokenCache{
		tokens: make(map[string]Token),
		skew:   skew,
		now:    time.Now,
	}
}

func (c *MemoryTokenCache) fresh(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tokens[key]
	if !ok || !c.now().Add(c.skew).Before(t.ExpiresAt) {
		return "", false
	}
	return t.Value, true
}

func (c *MemoryTokenCache) Token(ctx context.Context, key string, refresh func(context.Context) (Token, error)) (string, error) {
	if v, ok := c.fresh(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if v, ok := c.fresh(key); ok {
			return v, nil
		}
		t, err := refresh(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.tokens[key] = t
		c.mu.Unlock()
		return t.Value, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *MemoryTokenCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}

// KeyValueStore is the subset of the redis cache service the shared token cache needs.
type KeyValueStore interface {
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// SharedTokenCache stores tokens in redis so every instance reuses one login.
// Redis failures fall back to the local cache.
type SharedTokenCache struct {
	store KeyValueStore
	local *MemoryTokenCache
	log   *zap.Logger
}

func NewSharedTokenCache(store KeyValueStore, skew time.Duration, log *zap.Logger) *SharedTokenCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &SharedTokenCache{
		store: store,
		local: NewMemoryTokenCache(skew),
		log:   log.Named("token_cache"),
	}
}

func (c *SharedTokenCache) key(k string) string {
	return cache.ProviderTokenKey(k)
}

func (c *SharedTokenCache) Token(ctx context.Context, key string, refresh func(context.Context) (Token, error)) (string, error) {
	return c.local.Token(ctx, key, func(ctx context.Context) (Token, error) {
		var cached Token
		found, err := c.store.Get(ctx, c.key(key), &cached)
		if err != nil {
			c.log.Warn("token cache read failed", zap.String("key", key), zap.Error(err))
		}
		if found && c.local.now().Add(c.local.skew).Before(cached.ExpiresAt) {
			return cached, nil
		}

		t, err := refresh(ctx)
		if err != nil {
			return Token{}, err
		}
		ttl := t.ExpiresAt.Sub(c.local.now()) - c.local.skew
		if ttl > 0 {
			if err := c.store.SetWithTTL(ctx, c.key(key), t, ttl); err != nil {
				c.log.Warn("token cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return t, nil
	})
}

func (c *SharedTokenCache) Invalidate(ctx context.Context, key string) {
	c.local.Invalidate(ctx, key)
	if err := c.store.Delete(ctx, c.key(key)); err != nil {
		c.log.Warn("token cache delete failed", zap.String("key", key), zap.Error(err))
	}
}
