// Package shortlink implements the tracking short-link codec.
//
// A code is a compact alphanumeric token carrying a campaign id, up to
// five free-text sub-parameters and an optional click identifier. The
// first character tags the packing strategy, the last character is a
// mod-62 checksum over everything before it. Decoding is a pure
// function of the code and never consults external state.
package shortlink

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Strategy identifies how tracking parameters are packed into a code.
type Strategy byte

const (
	// StrategySequential packs fixed-width fields. Cheapest to decode,
	// only fits a campaign id and a short numeric click token.
	StrategySequential Strategy = 's'
	// StrategyCompressed packs a variable-width binary payload.
	// Densest when most sub-parameters are empty.
	StrategyCompressed Strategy = 'c'
	// StrategyHybrid mixes a fixed campaign-id field with a compressed
	// trailer for sub-parameters.
	StrategyHybrid Strategy = 'h'
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategySequential:
		return "sequential"
	case StrategyCompressed:
		return "compressed"
	case StrategyHybrid:
		return "hybrid"
	}
	return "unknown"
}

// TrackingParams is the parameter set embedded in a short-link code.
type TrackingParams struct {
	CampaignID uint64
	Sub1       string
	Sub2       string
	Sub3       string
	Sub4       string
	Sub5       string
	ClickID    string
}

// Subs returns the sub-parameters as a fixed-size slice.
func (p TrackingParams) Subs() [5]string {
	return [5]string{p.Sub1, p.Sub2, p.Sub3, p.Sub4, p.Sub5}
}

func (p *TrackingParams) setSub(i int, v string) {
	switch i {
	case 0:
		p.Sub1 = v
	case 1:
		p.Sub2 = v
	case 2:
		p.Sub3 = v
	case 3:
		p.Sub4 = v
	case 4:
		p.Sub5 = v
	}
}

// Codec errors.
var (
	ErrCodeTooShort     = errors.New("code too short")
	ErrBadLength        = errors.New("code length invalid for strategy")
	ErrUnknownStrategy  = errors.New("unknown strategy tag")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformedPayload = errors.New("malformed code payload")
	ErrFieldTooLong     = errors.New("parameter exceeds max length")
	ErrUnrecoverable    = errors.New("code is unrecoverable")
)

const (
	// alphabet is the base-62 digit set, in digit order.
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// MinCodeLength is the shortest code the encoder emits; shorter
	// bodies are zero-padded so codes in the current scheme are 10
	// characters for typical parameter sets.
	MinCodeLength = 10

	// MaxFieldLength caps each sub-parameter and the click id.
	MaxFieldLength = 64

	// seqFieldWidth is the width of each fixed field in a sequential code.
	seqFieldWidth = 4

	// payloadSentinel precedes binary payloads so leading zero bytes
	// survive the big-integer base62 round trip.
	payloadSentinel = 0x01
)

// Encode packs params into the smallest valid code. The sequential
// strategy is preferred when the parameter set fits its fixed fields;
// otherwise the shorter of compressed and hybrid wins.
func Encode(params TrackingParams) (string, error) {
	if err := validateParams(params); err != nil {
		return "", err
	}

	best := ""
	if seqEligible(params) {
		best = encodeSequential(params)
	}

	compressed := encodeCompressed(params)
	if best == "" || len(compressed) < len(best) {
		best = compressed
	}

	if hybridEligible(params) {
		hybrid := encodeHybrid(params)
		if len(hybrid) < len(best) {
			best = hybrid
		}
	}

	return best, nil
}

// EncodeWith packs params using a specific strategy, failing if the
// parameter set does not fit that strategy.
func EncodeWith(strategy Strategy, params TrackingParams) (string, error) {
	if err := validateParams(params); err != nil {
		return "", err
	}

	switch strategy {
	case StrategySequential:
		if !seqEligible(params) {
			return "", fmt.Errorf("%w: parameter set does not fit sequential fields", ErrMalformedPayload)
		}
		return encodeSequential(params), nil
	case StrategyCompressed:
		return encodeCompressed(params), nil
	case StrategyHybrid:
		if !hybridEligible(params) {
			return "", fmt.Errorf("%w: campaign id does not fit hybrid field", ErrMalformedPayload)
		}
		return encodeHybrid(params), nil
	}
	return "", ErrUnknownStrategy
}

// Decode unpacks a code. It is total: every input either yields a
// fully populated TrackingParams or a typed error.
func Decode(code string) (TrackingParams, error) {
	if len(code) < 3 {
		return TrackingParams{}, ErrCodeTooShort
	}

	tag := Strategy(code[0])
	body := code[1 : len(code)-1]
	sum := code[len(code)-1]

	if checksum(code[:len(code)-1]) != sum {
		return TrackingParams{}, ErrChecksumMismatch
	}

	switch tag {
	case StrategySequential:
		return decodeSequential(body)
	case StrategyCompressed:
		return decodeCompressed(body)
	case StrategyHybrid:
		return decodeHybrid(body)
	}
	return TrackingParams{}, ErrUnknownStrategy
}

func validateParams(params TrackingParams) error {
	for i, sub := range params.Subs() {
		if len(sub) > MaxFieldLength {
			return fmt.Errorf("%w: sub%d", ErrFieldTooLong, i+1)
		}
	}
	if len(params.ClickID) > MaxFieldLength {
		return fmt.Errorf("%w: click id", ErrFieldTooLong)
	}
	return nil
}

// checksum computes the trailing check character: the sum of the
// base-62 digit values of every preceding character, mod 62. Bytes
// outside the alphabet contribute their raw value so the checksum is
// still defined (and will simply not verify) for foreign codes.
func checksum(prefix string) byte {
	var sum int
	for i := 0; i < len(prefix); i++ {
		if v := digitValue(prefix[i]); v >= 0 {
			sum += v
		} else {
			sum += int(prefix[i])
		}
	}
	return alphabet[sum%62]
}

// digitValue returns the base-62 value of c, or -1 if c is not a digit.
func digitValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'Z':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 36
	}
	return -1
}

// encodeUint62 renders v in base 62, left-padded with '0' to width.
func encodeUint62(v uint64, width int) string {
	if v == 0 {
		return strings.Repeat("0", width)
	}
	var b [16]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = alphabet[v%62]
		v /= 62
	}
	s := string(b[i:])
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// decodeUint62 parses a base-62 string into a uint64.
func decodeUint62(s string) (uint64, error) {
	if s == "" {
		return 0, ErrMalformedPayload
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		d := digitValue(s[i])
		if d < 0 {
			return 0, fmt.Errorf("%w: invalid base62 digit %q", ErrMalformedPayload, s[i])
		}
		if v > (1<<64-1)/62 {
			return 0, fmt.Errorf("%w: base62 overflow", ErrMalformedPayload)
		}
		v = v*62 + uint64(d)
	}
	return v, nil
}

// encodeBytes62 renders a binary payload as base 62, left-padded with
// '0' to minWidth. The payload must start with payloadSentinel.
func encodeBytes62(payload []byte, minWidth int) string {
	n := new(big.Int).SetBytes(payload)
	s := n.Text(62)
	// math/big uses 0-9a-zA-Z digits; remap to our 0-9A-Za-z alphabet.
	s = remapFromBig(s)
	if len(s) < minWidth {
		s = strings.Repeat("0", minWidth-len(s)) + s
	}
	return s
}

// decodeBytes62 reverses encodeBytes62, returning the payload with the
// sentinel stripped.
func decodeBytes62(s string) ([]byte, error) {
	n, ok := new(big.Int).SetString(remapToBig(s), 62)
	if !ok {
		return nil, fmt.Errorf("%w: invalid base62 body", ErrMalformedPayload)
	}
	raw := n.Bytes()
	if len(raw) == 0 || raw[0] != payloadSentinel {
		return nil, fmt.Errorf("%w: missing payload sentinel", ErrMalformedPayload)
	}
	return raw[1:], nil
}

// remapFromBig converts math/big's 0-9a-zA-Z base62 digits to the
// codec alphabet (0-9A-Za-z), which sorts case-sensitively the way
// existing link databases expect.
func remapFromBig(s string) string {
	out := []byte(s)
	for i, c := range out {
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = 'A' + (c - 'a')
		case c >= 'A' && c <= 'Z':
			out[i] = 'a' + (c - 'A')
		}
	}
	return string(out)
}

// remapToBig is the inverse of remapFromBig.
func remapToBig(s string) string {
	return remapFromBig(s) // the mapping is an involution
}
