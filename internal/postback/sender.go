package postback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/model"
	"github.com/afftrack/afftrack/internal/tracking"
)

// Sender errors.
var (
	// ErrNotConfigured means the campaign has no postback URL; the
	// conversion is left unprocessed and dispatch is skipped.
	ErrNotConfigured = errors.New("campaign has no postback url")
	// ErrSkipped means the dispatch gate rejected the conversion.
	ErrSkipped = errors.New("postback not triggered for conversion")
	// ErrPartnerFailure means the partner endpoint was unreachable or
	// answered non-2xx. Eligible for retry; surfaced as 502.
	ErrPartnerFailure = errors.New("partner endpoint failed")
)

// Sender delivers postback notifications to partner endpoints.
type Sender struct {
	client      *http.Client
	conversions tracking.ConversionStore
	campaigns   tracking.CampaignStore
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewSender creates a Sender. client may be nil, in which case the
// default postback client is used.
func NewSender(conversions tracking.ConversionStore, campaigns tracking.CampaignStore, client *http.Client, logger *slog.Logger, recorder metrics.Recorder) *Sender {
	if client == nil {
		client = NewHTTPClient()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Sender{
		client:      client,
		conversions: conversions,
		campaigns:   campaigns,
		logger:      logger.With("component", "postback.sender"),
		metrics:     recorder,
	}
}

// Send dispatches the postback for a conversion: gate check, macro
// expansion of the campaign's postback URL, delivery, then flipping
// the conversion's processed flag. The conversion stays unprocessed on
// any failure so a retry of dispatch alone is safe.
func (s *Sender) Send(ctx context.Context, conv *model.Conversion) error {
	if !ShouldTrigger(conv) {
		s.metrics.IncPostbackDelivery("skipped")
		return fmt.Errorf("%w: test conversion", ErrSkipped)
	}
	if conv.Processed {
		s.metrics.IncPostbackDelivery("skipped")
		return fmt.Errorf("%w: already processed", ErrSkipped)
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, conv.CampaignID)
	if err != nil {
		return fmt.Errorf("find campaign %q: %w", conv.CampaignID, err)
	}
	if campaign.PostbackURL == "" {
		s.metrics.IncPostbackDelivery("skipped")
		return ErrNotConfigured
	}

	target := ExpandURL(campaign.PostbackURL, conv)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build postback request: %w", err)
	}
	req.Header.Set("User-Agent", "AffTrack-Postback/1.0")

	start := time.Now()
	resp, err := s.client.Do(req)
	duration := time.Since(start)
	s.metrics.ObservePostbackDuration(duration)

	if err != nil {
		s.metrics.IncPostbackDelivery("failed")
		s.logger.Warn("postback_failed",
			"conversion_id", conv.ID,
			"target_host", hostOf(target),
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return fmt.Errorf("%w: %v", ErrPartnerFailure, err)
	}
	defer resp.Body.Close()

	// Drain a little so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.metrics.IncPostbackDelivery("failed")
		s.logger.Warn("postback_failed",
			"conversion_id", conv.ID,
			"target_host", hostOf(target),
			"http_status", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
		)
		return fmt.Errorf("%w: HTTP %d", ErrPartnerFailure, resp.StatusCode)
	}

	if err := s.conversions.MarkConversionProcessed(ctx, conv.ID); err != nil {
		// Delivered but not marked; the next attempt is skipped by the
		// partner's own idempotency on order id.
		s.logger.Error("postback_mark_failed", "conversion_id", conv.ID, "error", err)
		return fmt.Errorf("mark processed: %w", err)
	}

	s.metrics.IncPostbackDelivery("success")
	s.logger.Info("postback_sent",
		"conversion_id", conv.ID,
		"target_host", hostOf(target),
		"http_status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

// ExpandURL substitutes conversion macros into a postback URL
// template. Values are query-escaped. Unknown macros are left alone.
func ExpandURL(template string, conv *model.Conversion) string {
	meta := conv.Metadata
	replacer := strings.NewReplacer(
		"{click_id}", url.QueryEscape(conv.ClickID),
		"{conversion_id}", url.QueryEscape(conv.ID),
		"{type}", url.QueryEscape(string(conv.Type)),
		"{amount}", url.QueryEscape(formatAmount(conv.Value)),
		"{currency}", url.QueryEscape(conv.Currency),
		"{order_id}", url.QueryEscape(conv.OrderID),
		"{sub1}", url.QueryEscape(meta.Sub1),
		"{sub2}", url.QueryEscape(meta.Sub2),
		"{sub3}", url.QueryEscape(meta.Sub3),
		"{sub4}", url.QueryEscape(meta.Sub4),
		"{sub5}", url.QueryEscape(meta.Sub5),
	)
	return replacer.Replace(template)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "(invalid)"
	}
	return parsed.Host
}
