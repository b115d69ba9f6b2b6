package tracking

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/afftrack/afftrack/internal/metrics"
	"github.com/afftrack/afftrack/internal/model"
)

// automationSignatures are user-agent substrings that mark automated
// traffic. Matching is case-insensitive.
var automationSignatures = []string{"bot", "crawler", "spider", "headless", "selenium"}

// Fraud score contributions applied at click creation.
const (
	automationScore = 0.9
	emptyAgentScore = 0.4
	badClickIDScore = 0.3
)

// CampaignCache is the optional read-through cache for campaign
// routing config, consulted before the store on the redirect hot
// path. Unknown campaign ids are negative-cached so repeated lookups
// with invented ids do not reach the store.
type CampaignCache interface {
	GetCampaign(ctx context.Context, id string) (*model.Campaign, error)
	SetCampaign(ctx context.Context, campaign *model.Campaign) error
	IsNegativelyCached(ctx context.Context, id string) (bool, error)
	SetNegativeCache(ctx context.Context, id string) error
}

// RequestContext carries the request metadata recorded on a click.
type RequestContext struct {
	IPAddress string
	UserAgent string
	Referrer  string
	// SuppliedClickID is the caller-provided click identifier, kept for
	// format heuristics only; the stored click id is always generated.
	SuppliedClickID string
}

// ClickParams is the decoded tracking parameter set for a new click.
type ClickParams struct {
	CampaignID      string
	Sub1            string
	Sub2            string
	Sub3            string
	Sub4            string
	Sub5            string
	LandingPageID   string
	OfferID         string
	TrafficSourceID string
}

// ClickService records and looks up clicks and resolves redirects.
type ClickService struct {
	clicks      ClickStore
	campaigns   CampaignStore
	cache       CampaignCache
	fallbackURL string
	logger      *slog.Logger
	metrics     metrics.Recorder
	now         func() time.Time
}

// NewClickService creates a ClickService. cache may be nil.
func NewClickService(clicks ClickStore, campaigns CampaignStore, cache CampaignCache, fallbackURL string, logger *slog.Logger, recorder metrics.Recorder) *ClickService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ClickService{
		clicks:      clicks,
		campaigns:   campaigns,
		cache:       cache,
		fallbackURL: fallbackURL,
		logger:      logger.With("component", "tracking.click"),
		metrics:     recorder,
		now:         time.Now,
	}
}

// CreateClick allocates an id, assesses validity and fraud score via
// creation-time heuristics, persists the click and returns it. The
// assessment is set exactly once here and never rewritten.
func (s *ClickService) CreateClick(ctx context.Context, params ClickParams, reqCtx RequestContext) (*model.Click, error) {
	now := s.now().UTC()
	valid, score := assessClick(params, reqCtx)

	click := &model.Click{
		ID:              uuid.New().String(),
		CampaignID:      params.CampaignID,
		IPAddress:       reqCtx.IPAddress,
		UserAgent:       truncate(reqCtx.UserAgent, 500),
		Referrer:        truncate(reqCtx.Referrer, 500),
		Sub1:            params.Sub1,
		Sub2:            params.Sub2,
		Sub3:            params.Sub3,
		Sub4:            params.Sub4,
		Sub5:            params.Sub5,
		LandingPageID:   params.LandingPageID,
		OfferID:         params.OfferID,
		TrafficSourceID: params.TrafficSourceID,
		VisitorHash:     VisitorHash(reqCtx.IPAddress, reqCtx.UserAgent, now),
		IsValid:         valid,
		FraudScore:      score,
		CreatedAt:       now,
	}

	if err := s.clicks.SaveClick(ctx, click); err != nil {
		return nil, fmt.Errorf("save click: %w", err)
	}

	s.metrics.IncClickRecorded(valid)
	s.logger.Info("click_recorded",
		"click_id", click.ID,
		"campaign_id", click.CampaignID,
		"is_valid", click.IsValid,
		"fraud_score", click.FraudScore,
	)

	return click, nil
}

// ResolveRedirect decides the destination for a click. The offer page
// is reserved for valid, low-fraud clicks on an active campaign whose
// allowlist admits the traffic source; everything else is cloaked to
// the safe page. A campaign with no configured target falls back to
// the fixed fallback URL; misconfiguration never fails the request.
func (s *ClickService) ResolveRedirect(ctx context.Context, click *model.Click) string {
	campaign, err := s.lookupCampaign(ctx, click.CampaignID)
	if err != nil {
		s.logger.Warn("campaign_misconfigured",
			"campaign_id", click.CampaignID,
			"click_id", click.ID,
			"error", err,
		)
		s.metrics.IncRedirect("fallback")
		return s.fallbackURL
	}

	target := campaign.OfferPageURL
	outcome := "offer"
	reason := cloakReason(campaign, click)
	if reason != "" {
		target = campaign.SafePageURL
		outcome = "safe"
	}

	if target == "" {
		s.logger.Warn("campaign_misconfigured",
			"campaign_id", campaign.ID,
			"click_id", click.ID,
			"missing", outcome+"_page_url",
		)
		s.metrics.IncRedirect("fallback")
		return s.fallbackURL
	}

	s.metrics.IncRedirect(outcome)
	args := []any{
		"click_id", click.ID,
		"campaign_id", campaign.ID,
		"outcome", outcome,
	}
	if reason != "" {
		args = append(args, "reason", reason)
	}
	s.logger.Info("redirect_resolved", args...)
	return target
}

// cloakReason reports why a click must not see the offer page, or ""
// when it may. Campaign policy outranks the per-click assessment.
func cloakReason(campaign *model.Campaign, click *model.Click) string {
	switch {
	case !campaign.Active:
		return "campaign_inactive"
	case !campaign.AllowsSource(click.TrafficSourceID):
		return "source_not_allowed"
	case click.Suspicious():
		return "suspicious_click"
	}
	return ""
}

// FindByID looks up a click. Read-only.
func (s *ClickService) FindByID(ctx context.Context, id string) (*model.Click, error) {
	return s.clicks.GetClickByID(ctx, id)
}

// FindByFilters lists clicks matching the filter. Read-only.
func (s *ClickService) FindByFilters(ctx context.Context, filter model.ClickFilter) ([]*model.Click, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 100
	}
	return s.clicks.ListClicks(ctx, filter)
}

// Campaign resolves campaign config, cache first.
func (s *ClickService) Campaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.lookupCampaign(ctx, id)
}

func (s *ClickService) lookupCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	if id == "" {
		return nil, ErrCampaignNotFound
	}

	if s.cache != nil {
		if campaign, err := s.cache.GetCampaign(ctx, id); err == nil {
			return campaign, nil
		}
		if hit, err := s.cache.IsNegativelyCached(ctx, id); err == nil && hit {
			return nil, ErrCampaignNotFound
		}
	}

	campaign, err := s.campaigns.GetCampaignByID(ctx, id)
	if err != nil {
		if s.cache != nil && errors.Is(err, ErrCampaignNotFound) {
			if nerr := s.cache.SetNegativeCache(ctx, id); nerr != nil {
				s.logger.Debug("campaign_negcache_set_failed", "campaign_id", id, "error", nerr)
			}
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetCampaign(ctx, campaign); err != nil {
			s.logger.Debug("campaign_cache_set_failed", "campaign_id", id, "error", err)
		}
	}
	return campaign, nil
}

// assessClick applies the creation-time validity and fraud heuristics.
func assessClick(params ClickParams, reqCtx RequestContext) (valid bool, score float64) {
	valid = params.CampaignID != ""

	if hasAutomationSignature(reqCtx.UserAgent) {
		valid = false
		score += automationScore
	}
	if strings.TrimSpace(reqCtx.UserAgent) == "" {
		score += emptyAgentScore
	}
	if reqCtx.SuppliedClickID != "" {
		if _, err := uuid.Parse(reqCtx.SuppliedClickID); err != nil {
			score += badClickIDScore
		}
	}

	if score > 1 {
		score = 1
	}
	return valid, score
}

// hasAutomationSignature reports whether the user agent looks automated.
func hasAutomationSignature(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, sig := range automationSignatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}

// VisitorHash creates a privacy-safe visitor identifier:
// blake2b-256(IP + UserAgent + daily salt) truncated to 16 hex chars.
// The salt rotates at midnight UTC.
func VisitorHash(ip, userAgent string, at time.Time) string {
	salt := "afftrack:" + at.UTC().Format("2006-01-02")
	sum := blake2b.Sum256([]byte(ip + userAgent + salt))
	return hex.EncodeToString(sum[:])[:16]
}

// truncate caps s at n bytes.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
