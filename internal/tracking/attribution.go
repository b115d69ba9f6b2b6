package tracking

import (
	"time"

	"github.com/afftrack/afftrack/internal/model"
)

// AttributionModel is the only model this single-click pipeline supports.
const AttributionModel = "last_click"

// Confidence decays across the 7-day and 30-day boundaries.
const (
	confidenceRecent = 1.0
	confidenceWeek   = 0.8
	confidenceMonth  = 0.5
)

// Attribute computes the attribution result for a conversion relative
// to its click. Pure; the result is written into conversion metadata
// once, before persistence, and never recomputed.
func Attribute(conversionAt time.Time, click *model.Click) model.AttributionResult {
	ttc := conversionAt.Sub(click.CreatedAt)

	confidence := confidenceRecent
	switch {
	case ttc > 30*24*time.Hour:
		confidence = confidenceMonth
	case ttc > 7*24*time.Hour:
		confidence = confidenceWeek
	}

	return model.AttributionResult{
		Model:            AttributionModel,
		Confidence:       confidence,
		TimeToConversion: ttc.Seconds(),
		Touchpoints:      1,
	}
}
