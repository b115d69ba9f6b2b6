package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

// Cache key prefixes and TTLs.
const (
	campaignKeyPrefix = "campaign:"
	negCacheKeySuffix = ":neg"

	// DefaultCampaignTTL is the TTL for cached campaign config.
	DefaultCampaignTTL = 10 * time.Minute

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 1 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetCampaign retrieves a campaign's routing config from cache.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	key := campaignKeyPrefix + id

	result, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	cached := &model.CachedCampaign{
		Name:           result["name"],
		OfferURL:       result["offer_url"],
		SafeURL:        result["safe_url"],
		PostbackURL:    result["postback_url"],
		AllowedSources: result["allowed_sources"],
		Active:         result["active"],
	}
	return cached.ToCampaign(id), nil
}

// SetCampaign stores a campaign's routing config in cache.
func (c *Cache) SetCampaign(ctx context.Context, campaign *model.Campaign) error {
	key := campaignKeyPrefix + campaign.ID
	cached := campaign.ToCachedCampaign()

	fields := map[string]any{
		"name":      cached.Name,
		"offer_url": cached.OfferURL,
		"safe_url":  cached.SafeURL,
		"active":    cached.Active,
	}
	if cached.PostbackURL != "" {
		fields["postback_url"] = cached.PostbackURL
	}
	if cached.AllowedSources != "" {
		fields["allowed_sources"] = cached.AllowedSources
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, DefaultCampaignTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache campaign: %w", err)
	}

	c.client.Del(ctx, key+negCacheKeySuffix)
	return nil
}

// DeleteCampaign removes a campaign from cache.
func (c *Cache) DeleteCampaign(ctx context.Context, id string) error {
	key := campaignKeyPrefix + id

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.Del(ctx, key+negCacheKeySuffix)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete campaign from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if a campaign id is in the negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, id string) (bool, error) {
	key := campaignKeyPrefix + id + negCacheKeySuffix

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}
	return exists > 0, nil
}

// SetNegativeCache marks a campaign id as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, id string) error {
	key := campaignKeyPrefix + id + negCacheKeySuffix

	if err := c.client.SetEx(ctx, key, "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}
	return nil
}
