package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/citrusbot/citrus/internal/cache"
	"github.com/citrusbot/citrus/internal/logging"
	"github.com/citrusbot/citrus/internal/models"
)

// Cache TTLs. Webhooks change rarely; request lists are admin-facing.
const (
	ttlWebhooks = 2 * time.Minute
	ttlRequests = 30 * time.Second
)

// CachedStore wraps a Store with a Redis caching layer over the registry
// reads (webhooks, channel requests). Channel liveness reads and writes are
// always passed straight through: the polling cycle must see fresh state or
// it could re-notify a transition that was already handled.
type CachedStore struct {
	inner Store
	cache *cache.Redis
}

// NewCachedStore creates a CachedStore that wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c}
}

// --- channels: never cached ---

func (c *CachedStore) ListChannels(ctx context.Context, platform models.Platform) ([]models.Channel, error) {
	return c.inner.ListChannels(ctx, platform)
}

func (c *CachedStore) GetChannel(ctx context.Context, platform models.Platform, channelID string) (*models.Channel, error) {
	return c.inner.GetChannel(ctx, platform, channelID)
}

func (c *CachedStore) UpsertChannel(ctx context.Context, platform models.Platform, channelID, channelName string) error {
	return c.inner.UpsertChannel(ctx, platform, channelID, channelName)
}

func (c *CachedStore) DeleteChannel(ctx context.Context, platform models.Platform, channelID string) error {
	return c.inner.DeleteChannel(ctx, platform, channelID)
}

func (c *CachedStore) UpdateStreamStatus(ctx context.Context, platform models.Platform, channelID string, isLive bool, streamID *string) error {
	return c.inner.UpdateStreamStatus(ctx, platform, channelID, isLive, streamID)
}

// --- webhooks: cached list ---

func (c *CachedStore) ListWebhooks(ctx context.Context) ([]models.Webhook, error) {
	const key = "webhooks:all"
	if v, err := cache.Get[[]models.Webhook](ctx, c.cache, key); err == nil {
		return v, nil
	}
	webhooks, err := c.inner.ListWebhooks(ctx)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, webhooks, ttlWebhooks); err != nil {
		l := logging.L()
		l.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return webhooks, nil
}

func (c *CachedStore) AddWebhook(ctx context.Context, w *models.Webhook) (int64, error) {
	id, err := c.inner.AddWebhook(ctx, w)
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, "webhooks:all")
	return id, nil
}

func (c *CachedStore) DeleteWebhook(ctx context.Context, id int64) error {
	if err := c.inner.DeleteWebhook(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, "webhooks:all")
	return nil
}

// --- channel requests: cached lists ---

func (c *CachedStore) CreateChannelRequest(ctx context.Context, req *models.ChannelRequest) (int64, string, error) {
	id, token, err := c.inner.CreateChannelRequest(ctx, req)
	if err != nil {
		return 0, "", err
	}
	c.invalidatePattern(ctx, "requests:*")
	return id, token, nil
}

func (c *CachedStore) ListChannelRequests(ctx context.Context, status string) ([]models.ChannelRequest, error) {
	key := "requests:all"
	if status != "" {
		key = fmt.Sprintf("requests:%s", status)
	}
	if v, err := cache.Get[[]models.ChannelRequest](ctx, c.cache, key); err == nil {
		return v, nil
	}
	requests, err := c.inner.ListChannelRequests(ctx, status)
	if err != nil {
		return nil, err
	}
	if err := cache.Set(ctx, c.cache, key, requests, ttlRequests); err != nil {
		l := logging.L()
		l.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return requests, nil
}

func (c *CachedStore) GetChannelRequest(ctx context.Context, id int64) (*models.ChannelRequest, error) {
	return c.inner.GetChannelRequest(ctx, id)
}

func (c *CachedStore) UpdateChannelRequestStatus(ctx context.Context, id int64, status string) error {
	if err := c.inner.UpdateChannelRequestStatus(ctx, id, status); err != nil {
		return err
	}
	c.invalidatePattern(ctx, "requests:*")
	return nil
}

// --- helpers ---

// invalidate deletes exact cache keys, logging any errors.
func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil && err != redis.Nil {
		l := logging.L()
		l.Warn().Err(err).Strs("keys", keys).Msg("cache del failed")
	}
}

// invalidatePattern deletes all keys matching the given glob patterns.
func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			l := logging.L()
			l.Warn().Err(err).Str("pattern", p).Msg("cache del pattern failed")
		}
	}
}
