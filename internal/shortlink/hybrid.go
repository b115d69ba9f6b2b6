package shortlink

// Hybrid codes keep the campaign id in a fixed base62 field so it is
// recoverable even when the trailer is damaged:
//
//	tag(1) + campaign id(4) + base62(sentinel + mask + fields) + checksum(1)
//
// The trailer is zero-padded so the total code never drops below
// MinCodeLength.

const hybridMinTrailer = MinCodeLength - seqFieldWidth - 2

// hybridEligible reports whether the campaign id fits the fixed field.
func hybridEligible(params TrackingParams) bool {
	return params.CampaignID <= seqMaxValue
}

func encodeHybrid(params TrackingParams) string {
	trailer := make([]byte, 0, 16)
	trailer = append(trailer, payloadSentinel)
	trailer = append(trailer, packFields(params)...)

	code := string(StrategyHybrid) +
		encodeUint62(params.CampaignID, seqFieldWidth) +
		encodeBytes62(trailer, hybridMinTrailer)
	return code + string(checksum(code))
}

func decodeHybrid(body string) (TrackingParams, error) {
	if len(body) < seqFieldWidth+hybridMinTrailer {
		return TrackingParams{}, ErrBadLength
	}

	cid, err := decodeUint62(body[:seqFieldWidth])
	if err != nil {
		return TrackingParams{}, err
	}

	payload, err := decodeBytes62(body[seqFieldWidth:])
	if err != nil {
		return TrackingParams{}, err
	}

	params := TrackingParams{CampaignID: cid}
	if err := unpackFields(payload, &params); err != nil {
		return TrackingParams{}, err
	}
	return params, nil
}
