package tracking

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

// memStores is an in-memory implementation of the store ports used by
// the pipeline tests. SaveConversion enforces order-id uniqueness the
// way the real store's index does.
type memStores struct {
	mu          sync.Mutex
	clicks      map[string]*model.Click
	conversions map[string]*model.Conversion
	campaigns   map[string]*model.Campaign

	saveClickErr      error
	saveConversionErr error
}

func newMemStores() *memStores {
	return &memStores{
		clicks:      make(map[string]*model.Click),
		conversions: make(map[string]*model.Conversion),
		campaigns:   make(map[string]*model.Campaign),
	}
}

func (m *memStores) SaveClick(_ context.Context, click *model.Click) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveClickErr != nil {
		return m.saveClickErr
	}
	c := *click
	m.clicks[c.ID] = &c
	return nil
}

func (m *memStores) GetClickByID(_ context.Context, id string) (*model.Click, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	click, ok := m.clicks[id]
	if !ok {
		return nil, ErrClickNotFound
	}
	c := *click
	return &c, nil
}

func (m *memStores) ListClicks(_ context.Context, filter model.ClickFilter) ([]*model.Click, error) {
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

func (m *memStores) MarkClickConverted(_ context.Context, clickID string, conversionType model.ConversionType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	click, ok := m.clicks[clickID]
	if !ok {
		return ErrClickNotFound
	}
	click.ConversionType = string(conversionType)
	click.ConvertedAt = &at
	return nil
}

func (m *memStores) SaveConversion(_ context.Context, conv *model.Conversion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveConversionErr != nil {
		return m.saveConversionErr
	}
	if conv.OrderID != "" {
		for _, existing := range m.conversions {
			if existing.OrderID == conv.OrderID {
				return ErrDuplicateConversion
			}
		}
	}
	c := *conv
	m.conversions[c.ID] = &c
	return nil
}

func (m *memStores) GetConversionByID(_ context.Context, id string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversions[id]
	if !ok {
		return nil, ErrConversionNotFound
	}
	c := *conv
	return &c, nil
}

func (m *memStores) GetConversionByOrderID(_ context.Context, orderID string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversions {
		if conv.OrderID == orderID {
			c := *conv
			return &c, nil
		}
	}
	return nil, ErrConversionNotFound
}

func (m *memStores) RecentConversionExists(_ context.Context, clickID string, conversionType model.ConversionType, window time.Duration) (bool, error) {
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

func (m *memStores) GetConversionByClickAndOrderID(_ context.Context, clickID, orderID string) (*model.Conversion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conv := range m.conversions {
		if conv.ClickID == clickID && conv.OrderID == orderID {
			c := *conv
			return &c, nil
		}
	}
	return nil, ErrConversionNotFound
}

func (m *memStores) GetRegistrationConversion(_ context.Context, platform, platformUserID string) (*model.Conversion, error) {
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
		return nil, ErrConversionNotFound
	}
	c := *latest
	return &c, nil
}

func (m *memStores) MarkConversionProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.conversions[id]
	if !ok {
		return ErrConversionNotFound
	}
	conv.Processed = true
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStores) GetCampaignByID(_ context.Context, id string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	campaign, ok := m.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	c := *campaign
	return &c, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
