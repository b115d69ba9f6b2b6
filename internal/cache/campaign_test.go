package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/afftrack/afftrack/internal/model"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &Cache{client: client}, mr
}

func testCampaign() *model.Campaign {
	return &model.Campaign{
		ID:             "camp-1",
		Name:           "Spring Promo",
		OfferPageURL:   "https://offers.example.com/1",
		SafePageURL:    "https://safe.example.com/1",
		PostbackURL:    "https://partner.example.com/pb?cid={click_id}",
		AllowedSources: []string{"src-1", "src-2"},
		Active:         true,
	}
}

func TestCache_CampaignRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.SetCampaign(ctx, testCampaign()); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}

	got, err := c.GetCampaign(ctx, "camp-1")
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}

	if got.ID != "camp-1" || got.Name != "Spring Promo" {
		t.Errorf("identity = (%q, %q)", got.ID, got.Name)
	}
	if got.OfferPageURL != "https://offers.example.com/1" {
		t.Errorf("offer url = %q", got.OfferPageURL)
	}
	if got.SafePageURL != "https://safe.example.com/1" {
		t.Errorf("safe url = %q", got.SafePageURL)
	}
	if got.PostbackURL != "https://partner.example.com/pb?cid={click_id}" {
		t.Errorf("postback url = %q", got.PostbackURL)
	}
	if len(got.AllowedSources) != 2 || got.AllowedSources[0] != "src-1" || got.AllowedSources[1] != "src-2" {
		t.Errorf("allowed sources = %v, want [src-1 src-2]", got.AllowedSources)
	}
	if !got.AllowsSource("src-2") || got.AllowsSource("src-9") {
		t.Error("allowlist not enforceable after the round trip")
	}
	if !got.Active {
		t.Error("active flag lost in the round trip")
	}
}

func TestCache_CampaignRoundTrip_EmptyAllowlist(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	campaign := testCampaign()
	campaign.AllowedSources = nil
	if err := c.SetCampaign(ctx, campaign); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}

	got, err := c.GetCampaign(ctx, "camp-1")
	if err != nil {
		t.Fatalf("GetCampaign() error = %v", err)
	}
	if len(got.AllowedSources) != 0 {
		t.Errorf("allowed sources = %v, want empty", got.AllowedSources)
	}
	if !got.AllowsSource("anything") {
		t.Error("empty allowlist must admit every source")
	}
}

func TestCache_GetCampaign_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	if _, err := c.GetCampaign(context.Background(), "nope"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetCampaign() error = %v, want ErrCacheMiss", err)
	}
}

func TestCache_SetCampaign_AppliesTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.SetCampaign(ctx, testCampaign()); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}

	mr.FastForward(DefaultCampaignTTL + time.Second)

	if _, err := c.GetCampaign(ctx, "camp-1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("entry survived past its TTL: err = %v", err)
	}
}

func TestCache_DeleteCampaign(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.SetCampaign(ctx, testCampaign()); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}
	if err := c.DeleteCampaign(ctx, "camp-1"); err != nil {
		t.Fatalf("DeleteCampaign() error = %v", err)
	}
	if _, err := c.GetCampaign(ctx, "camp-1"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetCampaign() after delete: err = %v, want ErrCacheMiss", err)
	}
}

func TestCache_NegativeCache(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.SetNegativeCache(ctx, "ghost"); err != nil {
		t.Fatalf("SetNegativeCache() error = %v", err)
	}

	hit, err := c.IsNegativelyCached(ctx, "ghost")
	if err != nil {
		t.Fatalf("IsNegativelyCached() error = %v", err)
	}
	if !hit {
		t.Error("negative entry not found")
	}

	mr.FastForward(NegativeCacheTTL + time.Second)

	hit, err = c.IsNegativelyCached(ctx, "ghost")
	if err != nil {
		t.Fatalf("IsNegativelyCached() error = %v", err)
	}
	if hit {
		t.Error("negative entry survived past its TTL")
	}

	// Caching the real campaign clears the negative marker.
	if err := c.SetNegativeCache(ctx, "camp-1"); err != nil {
		t.Fatalf("SetNegativeCache() error = %v", err)
	}
	if err := c.SetCampaign(ctx, testCampaign()); err != nil {
		t.Fatalf("SetCampaign() error = %v", err)
	}
	hit, err = c.IsNegativelyCached(ctx, "camp-1")
	if err != nil {
		t.Fatalf("IsNegativelyCached() error = %v", err)
	}
	if hit {
		t.Error("negative marker not cleared by SetCampaign")
	}
}
