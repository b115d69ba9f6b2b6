package shortlink

import (
	"fmt"
	"strings"
)

// Sequential codes are always exactly MinCodeLength characters:
//
//	tag(1) + campaign id(4) + click token(4) + checksum(1)
//
// Both fields are base62, zero-padded. An all-zero click field means
// no click id. The strategy only fits campaign ids below 62^4 and
// click ids that are short base62 tokens without a leading zero.

const seqMaxValue = 62*62*62*62 - 1 // largest value a 4-char field holds

// seqEligible reports whether params fit the sequential layout.
func seqEligible(params TrackingParams) bool {
	if params.CampaignID > seqMaxValue {
		return false
	}
	for _, sub := range params.Subs() {
		if sub != "" {
			return false
		}
	}
	return seqToken(params.ClickID)
}

// seqToken reports whether id is encodable as a fixed 4-char token:
// empty, or 1-4 base62 digits not starting with '0' (a leading zero
// would be lost to padding).
func seqToken(id string) bool {
	if id == "" {
		return true
	}
	if len(id) > seqFieldWidth || id[0] == '0' {
		return false
	}
	for i := 0; i < len(id); i++ {
		if digitValue(id[i]) < 0 {
			return false
		}
	}
	return true
}

func encodeSequential(params TrackingParams) string {
	click := params.ClickID
	if click == "" {
		click = "0"
	}
	body := encodeUint62(params.CampaignID, seqFieldWidth) +
		strings.Repeat("0", seqFieldWidth-len(click)) + click
	code := string(StrategySequential) + body
	return code + string(checksum(code))
}

func decodeSequential(body string) (TrackingParams, error) {
	if len(body) != 2*seqFieldWidth {
		return TrackingParams{}, ErrBadLength
	}

	cid, err := decodeUint62(body[:seqFieldWidth])
	if err != nil {
		return TrackingParams{}, fmt.Errorf("campaign field: %w", err)
	}

	clickField := body[seqFieldWidth:]
	for i := 0; i < len(clickField); i++ {
		if digitValue(clickField[i]) < 0 {
			return TrackingParams{}, fmt.Errorf("%w: invalid click token", ErrMalformedPayload)
		}
	}
	click := strings.TrimLeft(clickField, "0")

	return TrackingParams{CampaignID: cid, ClickID: click}, nil
}
