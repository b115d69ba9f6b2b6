package postback

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// stubStores backs the sender and worker tests with in-memory
// conversions and campaigns. Only the methods the delivery path uses
// do real work.
type stubStores struct {
	mu          sync.Mutex
	conversions map[string]*model.Conversion
	campaigns   map[string]*model.Campaign

	markErr error
}

func newStubStores() *stubStores {
	return &stubStores{
		conversions: make(map[string]*model.Conversion),
		campaigns:   make(map[string]*model.Campaign),
	}
}

func (s *stubStores) SaveConversion(_ context.Context, conv *model.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *conv
	s.conversions[c.ID] = &c
	return nil
}

func (s *stubStores) GetConversionByID(_ context.Context, id string) (*model.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversions[id]
	if !ok {
		return nil, tracking.ErrConversionNotFound
	}
	c := *conv
	return &c, nil
}

func (s *stubStores) GetConversionByOrderID(context.Context, string) (*model.Conversion, error) {
	return nil, tracking.ErrConversionNotFound
}

func (s *stubStores) RecentConversionExists(context.Context, string, model.ConversionType, time.Duration) (bool, error) {
	return false, nil
}

func (s *stubStores) GetConversionByClickAndOrderID(context.Context, string, string) (*model.Conversion, error) {
	return nil, tracking.ErrConversionNotFound
}

func (s *stubStores) GetRegistrationConversion(context.Context, string, string) (*model.Conversion, error) {
	return nil, tracking.ErrConversionNotFound
}

func (s *stubStores) MarkConversionProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	conv, ok := s.conversions[id]
	if !ok {
		return tracking.ErrConversionNotFound
	}
	conv.Processed = true
	return nil
}

func (s *stubStores) GetCampaignByID(_ context.Context, id string) (*model.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	campaign, ok := s.campaigns[id]
	if !ok {
		return nil, tracking.ErrCampaignNotFound
	}
	c := *campaign
	return &c, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
