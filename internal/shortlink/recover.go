package shortlink

import "encoding/binary"

// Recovered is the result of best-effort decoding of a damaged code.
type Recovered struct {
	Params TrackingParams
	// Fields lists which logical fields were re-established, e.g.
	// "campaign_id", "sub1", "click_id".
	Fields []string
	// Complete is true when every field the code carried was recovered
	// and only the checksum (or padding) was wrong.
	Complete bool
}

// Recover attempts best-effort decoding of a code that failed Decode:
// wrong checksum, wrong length, or a partially damaged payload. It
// returns whatever subset of fields it can still establish. Codes with
// an unrecognized strategy tag are treated as foreign and rejected.
func Recover(code string) (Recovered, error) {
	if params, err := Decode(code); err == nil {
		return Recovered{Params: params, Fields: fieldNames(params), Complete: true}, nil
	}

	if len(code) < 2 {
		return Recovered{}, ErrUnrecoverable
	}

	tag := Strategy(code[0])
	body := code[1:]
	// The trailing character may be a checksum or part of a truncated
	// body; try both interpretations.
	trimmed := code[1 : len(code)-1]

	switch tag {
	case StrategySequential:
		return recoverFixedPrefix(tag, body, trimmed, decodeSequential)
	case StrategyHybrid:
		return recoverFixedPrefix(tag, body, trimmed, decodeHybrid)
	case StrategyCompressed:
		return recoverCompressed(body, trimmed)
	}
	return Recovered{}, ErrUnrecoverable
}

// recoverFixedPrefix handles strategies whose campaign id occupies a
// fixed base62 field at the front of the body. Even when the rest of
// the code is garbage, that field usually survives.
func recoverFixedPrefix(tag Strategy, body, trimmed string, decode func(string) (TrackingParams, error)) (Recovered, error) {
	for _, candidate := range []string{trimmed, body} {
		if params, err := decode(candidate); err == nil {
			return Recovered{Params: params, Fields: fieldNames(params), Complete: true}, nil
		}
	}

	if len(body) < seqFieldWidth {
		return Recovered{}, ErrUnrecoverable
	}
	cid, err := decodeUint62(body[:seqFieldWidth])
	if err != nil {
		return Recovered{}, ErrUnrecoverable
	}
	return Recovered{
		Params: TrackingParams{CampaignID: cid},
		Fields: []string{"campaign_id"},
	}, nil
}

// recoverCompressed re-parses the binary payload field by field,
// keeping everything up to the first parse failure.
func recoverCompressed(body, trimmed string) (Recovered, error) {
	for _, candidate := range []string{trimmed, body} {
		payload, err := decodeBytes62(candidate)
		if err != nil {
			continue
		}
		cid, n := binary.Uvarint(payload)
		if n <= 0 {
			continue
		}
		params := TrackingParams{CampaignID: cid}
		if err := unpackFields(payload[n:], &params); err != nil {
			// Campaign id parsed, the field section did not. Keep any
			// subs that survived a prefix parse.
			partial := TrackingParams{CampaignID: cid}
			unpackPrefix(payload[n:], &partial)
			return Recovered{Params: partial, Fields: fieldNames(partial)}, nil
		}
		return Recovered{Params: params, Fields: fieldNames(params), Complete: true}, nil
	}
	return Recovered{}, ErrUnrecoverable
}

// unpackPrefix is a lenient variant of unpackFields that stops at the
// first truncated field instead of failing outright.
func unpackPrefix(payload []byte, params *TrackingParams) {
	if len(payload) == 0 {
		return
	}
	mask := payload[0]
	rest := payload[1:]

	read := func() (string, bool) {
		if len(rest) == 0 {
			return "", false
		}
		n := int(rest[0])
		rest = rest[1:]
		if n == 0 || n > MaxFieldLength || n > len(rest) {
			return "", false
		}
		v := string(rest[:n])
		rest = rest[n:]
		return v, true
	}

	for i := 0; i < 5; i++ {
		if mask&(1<<i) == 0 {
			continue
		}
		v, ok := read()
		if !ok {
			return
		}
		params.setSub(i, v)
	}
	if mask&(1<<clickMaskBit) != 0 {
		if v, ok := read(); ok {
			params.ClickID = v
		}
	}
}

// fieldNames lists the populated logical fields of params.
func fieldNames(params TrackingParams) []string {
	names := []string{"campaign_id"}
	for i, sub := range params.Subs() {
		if sub != "" {
			names = append(names, subName(i))
		}
	}
	if params.ClickID != "" {
		names = append(names, "click_id")
	}
	return names
}

func subName(i int) string {
	return string([]byte{'s', 'u', 'b', byte('1' + i)})
}
