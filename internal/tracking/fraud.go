package tracking

import (
	"github.com/afftrack/afftrack/internal/model"
)

// Conversion-time fraud thresholds.
const (
	// HighValueThreshold flags unusually large monetary conversions.
	HighValueThreshold = 10000.0
	// FastConversionSeconds flags conversions arriving implausibly
	// soon after the click.
	FastConversionSeconds = 10.0
)

// fraudRule checks one condition over a conversion and its click.
// attribution is the already-computed result from Attribute.
type fraudRule struct {
	reason string
	match  func(conv *model.Conversion, click *model.Click, attribution model.AttributionResult) bool
}

// fraudRules is the ordered rule chain. First match wins; later rules
// are not evaluated once one fires.
var fraudRules = []fraudRule{
	{
		reason: model.FraudReasonInvalidClick,
		match: func(_ *model.Conversion, click *model.Click, _ model.AttributionResult) bool {
			return !click.IsValid
		},
	},
	{
		reason: model.FraudReasonHighScoreClick,
		match: func(_ *model.Conversion, click *model.Click, _ model.AttributionResult) bool {
			return click.FraudScore > model.HighFraudScoreThreshold
		},
	},
	{
		reason: model.FraudReasonHighValue,
		match: func(conv *model.Conversion, _ *model.Click, _ model.AttributionResult) bool {
			return conv.Value > HighValueThreshold
		},
	},
	{
		reason: model.FraudReasonFastConversion,
		match: func(_ *model.Conversion, _ *model.Click, attribution model.AttributionResult) bool {
			return attribution.TimeToConversion < FastConversionSeconds
		},
	},
}

// EvaluateFraud runs the rule chain over a conversion and its click.
// It returns the first matching signal, or nil when the conversion is
// clean. A signal is advisory: it is recorded into metadata but never
// blocks persistence.
func EvaluateFraud(conv *model.Conversion, click *model.Click, attribution model.AttributionResult) *model.FraudSignal {
	for _, rule := range fraudRules {
		if rule.match(conv, click, attribution) {
			return &model.FraudSignal{Reason: rule.reason, IsFraudulent: true}
		}
	}
	return nil
}
