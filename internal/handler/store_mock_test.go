package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// memStores is an in-memory implementation of the tracking store
// ports, shared by the handler tests. The conversion save enforces
// order-id uniqueness the way the real store's index does.
type memStores struct {
	mu          sync.Mutex
	clicks      map[string]*model.Click
	conversions map[string]*model.Conversion
	campaigns   map[string]*model.Campaign
}

func newMemStores() *memStores {
	return &memStores{
		clicks:      make(map[string]*model.Click),
		conversions: make(map[string]*model.Conversion),
		campaigns:   make(map[string]*model.Campaign),
	}
}

func (m *memStores) SaveClick(ctx context.Context, click *model.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *click
	m.clicks[click.ID] = &c
	return nil
}

func (m *memStores) GetClickByID(ctx context.Context, id string) (*model.Click, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	click, ok := m.clicks[id]
	if !ok {
		return nil, tracking.ErrClickNotFound
	}
	c := *click
	return &c, nil
}

func (m *memStores) ListClicks(ctx context.Context, filter model.ClickFilter) ([]*model.Click, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Click
	for _, click := range m.clicks {
		if filter.CampaignID != "" && click.CampaignID != filter.CampaignID {
			continue
		}
		c := *click
		out = append(out, &c)
	}
	return out, nil
}

func (m *memStores) MarkClickConverted(ctx context.Context, clickID string, conversionType model.ConversionType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	click, ok := m.clicks[clickID]
	if !ok {
		return tracking.ErrClickNotFound
	}
	click.ConversionType = string(conversionType)
	click.ConvertedAt = &at
	return nil
}

func (m *memStores) SaveConversion(ctx context.Context, conv *model.Conversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conv.OrderID != "" {
		for _, existing := range m.conversions {
			if existing.OrderID == conv.OrderID {
				return tracking.ErrDuplicateConversion
			}
		}
	}
	c := *conv
	m.conversions[conv.ID] = &c
	return nil
}

func (m *memStores) GetConversionByID(ctx context.Context, id string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversions[id]
	if !ok {
		return nil, tracking.ErrConversionNotFound
	}
	c := *conv
	return &c, nil
}

func (m *memStores) GetConversionByOrderID(ctx context.Context, orderID string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversions {
		if conv.OrderID == orderID {
			c := *conv
			return &c, nil
		}
	}
	return nil, tracking.ErrConversionNotFound
}

func (m *memStores) RecentConversionExists(ctx context.Context, clickID string, conversionType model.ConversionType, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().UTC().Add(-window)
	for _, conv := range m.conversions {
		if conv.ClickID == clickID && conv.Type == conversionType && conv.CreatedAt.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStores) GetConversionByClickAndOrderID(ctx context.Context, clickID, orderID string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversions {
		if conv.ClickID == clickID && conv.OrderID == orderID {
			c := *conv
			return &c, nil
		}
	}
	return nil, tracking.ErrConversionNotFound
}

func (m *memStores) GetRegistrationConversion(ctx context.Context, platform, platformUserID string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Conversion
	for _, conv := range m.conversions {
		if conv.Type != model.ConversionRegistration {
			continue
		}
		if conv.Metadata.Platform != platform || conv.Metadata.PlatformUserID != platformUserID {
			continue
		}
		if latest == nil || conv.CreatedAt.After(latest.CreatedAt) {
			latest = conv
		}
	}
	if latest == nil {
		return nil, tracking.ErrConversionNotFound
	}
	c := *latest
	return &c, nil
}

func (m *memStores) MarkConversionProcessed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversions[id]
	if !ok {
		return tracking.ErrConversionNotFound
	}
	conv.Processed = true
	return nil
}

func (m *memStores) GetCampaignByID(ctx context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, tracking.ErrCampaignNotFound
	}
	c := *campaign
	return &c, nil
}

func (m *memStores) addCampaign(campaign *model.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[campaign.ID] = campaign
}

func (m *memStores) addClick(click *model.Click) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicks[click.ID] = click
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
