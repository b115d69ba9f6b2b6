package model

import (
	"strings"
	"time"
)

// Campaign holds the routing configuration consulted at redirect time.
// Campaign CRUD is managed elsewhere; the tracking pipeline only reads.
type Campaign struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Cloaking targets. Valid traffic goes to the offer page,
	// invalid/high-fraud traffic to the safe page.
	OfferPageURL string `json:"offer_page_url"`
	SafePageURL  string `json:"safe_page_url"`

	// Partner postback URL template. Supports {click_id},
	// {conversion_id}, {type}, {amount}, {currency}, {order_id},
	// {sub1}..{sub5} macros.
	PostbackURL string `json:"postback_url,omitempty"`

	// Traffic-source allowlist, empty means any source.
	AllowedSources []string `json:"allowed_sources,omitempty"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// AllowsSource reports whether a traffic source may send clicks to
// this campaign. An empty allowlist admits every source.
func (c *Campaign) AllowsSource(sourceID string) bool {
	if len(c.AllowedSources) == 0 {
		return true
	}
	for _, s := range c.AllowedSources {
		if s == sourceID {
			return true
		}
	}
	return false
}

// CachedCampaign represents campaign data stored in Redis cache.
// Uses string types for Redis hash compatibility.
type CachedCampaign struct {
	Name        string `redis:"name"`
	OfferURL    string `redis:"offer_url"`
	SafeURL     string `redis:"safe_url"`
	PostbackURL string `redis:"postback_url"`
	// AllowedSources is the allowlist joined with commas; source ids
	// never contain commas.
	AllowedSources string `redis:"allowed_sources"`
	Active         string `redis:"active"` // "1" or "0"
}

// ToCampaign converts CachedCampaign to the Campaign domain model.
func (c *CachedCampaign) ToCampaign(id string) *Campaign {
	return &Campaign{
		ID:             id,
		Name:           c.Name,
		OfferPageURL:   c.OfferURL,
		SafePageURL:    c.SafeURL,
		PostbackURL:    c.PostbackURL,
		AllowedSources: splitSources(c.AllowedSources),
		Active:         c.Active == "1",
	}
}

// ToCachedCampaign converts a Campaign to its Redis representation.
func (c *Campaign) ToCachedCampaign() *CachedCampaign {
	active := "0"
	if c.Active {
		active = "1"
	}
	return &CachedCampaign{
		Name:           c.Name,
		OfferURL:       c.OfferPageURL,
		SafeURL:        c.SafePageURL,
		PostbackURL:    c.PostbackURL,
		AllowedSources: strings.Join(c.AllowedSources, ","),
		Active:         active,
	}
}

func splitSources(s string) []string {
	if s == "" {
		return nil
	}
	var sources []string
	for _, src := range strings.Split(s, ",") {
		if src != "" {
			sources = append(sources, src)
		}
	}
	return sources
}
