package shortlink

import (
	"encoding/binary"
	"fmt"
)

// Compressed codes carry a base62-rendered binary payload:
//
//	sentinel(1) + campaign id uvarint + presence mask(1) + fields
//
// Mask bits 0-4 mark sub1..sub5, bit 5 the click id. Each present
// field is a length-prefixed UTF-8 string. The body is zero-padded to
// minBodyWidth so the typical code is MinCodeLength characters.

const (
	clickMaskBit = 5
	minBodyWidth = MinCodeLength - 2 // tag and checksum bracket the body
)

// packFields builds the mask+fields portion shared with the hybrid trailer.
func packFields(params TrackingParams) []byte {
	var mask byte
	subs := params.Subs()
	for i, sub := range subs {
		if sub != "" {
			mask |= 1 << i
		}
	}
	if params.ClickID != "" {
		mask |= 1 << clickMaskBit
	}

	out := []byte{mask}
	for _, sub := range subs {
		if sub != "" {
			out = append(out, byte(len(sub)))
			out = append(out, sub...)
		}
	}
	if params.ClickID != "" {
		out = append(out, byte(len(params.ClickID)))
		out = append(out, params.ClickID...)
	}
	return out
}

// unpackFields parses a mask+fields payload into params (campaign id
// untouched). Returns ErrMalformedPayload on truncated input.
func unpackFields(payload []byte, params *TrackingParams) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: missing presence mask", ErrMalformedPayload)
	}
	mask := payload[0]
	rest := payload[1:]

	readField := func() (string, error) {
		if len(rest) == 0 {
			return "", fmt.Errorf("%w: truncated field length", ErrMalformedPayload)
		}
		n := int(rest[0])
		rest = rest[1:]
		if n == 0 || n > MaxFieldLength || n > len(rest) {
			return "", fmt.Errorf("%w: truncated field data", ErrMalformedPayload)
		}
		v := string(rest[:n])
		rest = rest[n:]
		return v, nil
	}

	for i := 0; i < 5; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		v, err := readField()
		if err != nil {
			return err
		}
		params.setSub(i, v)
	}
	if mask&(1<<clickMaskBit) != 0 {
		v, err := readField()
		if err != nil {
			return err
		}
		params.ClickID = v
	}
	if len(rest) != 0 {
		return fmt.Errorf("%w: trailing payload bytes", ErrMalformedPayload)
	}
	return nil
}

func encodeCompressed(params TrackingParams) string {
	payload := make([]byte, 0, 16)
	payload = append(payload, payloadSentinel)
	payload = binary.AppendUvarint(payload, params.CampaignID)
	payload = append(payload, packFields(params)...)

	code := string(StrategyCompressed) + encodeBytes62(payload, minBodyWidth)
	return code + string(checksum(code))
}

func decodeCompressed(body string) (TrackingParams, error) {
	if len(body) < minBodyWidth {
		return TrackingParams{}, ErrBadLength
	}

	payload, err := decodeBytes62(body)
	if err != nil {
		return TrackingParams{}, err
	}

	cid, n := binary.Uvarint(payload)
	if n <= 0 {
		return TrackingParams{}, fmt.Errorf("%w: bad campaign varint", ErrMalformedPayload)
	}

	params := TrackingParams{CampaignID: cid}
	if err := unpackFields(payload[n:], &params); err != nil {
		return TrackingParams{}, err
	}
	return params, nil
}
