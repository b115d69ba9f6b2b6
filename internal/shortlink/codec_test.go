package shortlink

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		params TrackingParams
	}{
		{"campaign_only", TrackingParams{CampaignID: 42}},
		{"campaign_zero", TrackingParams{CampaignID: 0}},
		{"with_click_token", TrackingParams{CampaignID: 7, ClickID: "x3"}},
		{"single_sub", TrackingParams{CampaignID: 7, Sub1: "fb"}},
		{"sparse_subs", TrackingParams{CampaignID: 1001, Sub2: "email", Sub5: "retarget"}},
		{
			"all_fields",
			TrackingParams{
				CampaignID: 987654321,
				Sub1:       "facebook", Sub2: "cpc", Sub3: "us",
				Sub4: "adset-19", Sub5: "creative-b",
				ClickID: "550e8400-e29b-41d4-a716-446655440000",
			},
		},
		{"large_campaign", TrackingParams{CampaignID: 1<<63 + 5, Sub1: "x"}},
		{"max_length_sub", TrackingParams{CampaignID: 3, Sub3: strings.Repeat("a", MaxFieldLength)}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, err := Encode(test.params)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(code) < MinCodeLength {
				t.Errorf("code %q shorter than %d chars", code, MinCodeLength)
			}

			decoded, err := Decode(code)
			if err != nil {
				t.Fatalf("decode %q: %v", code, err)
			}
			if decoded != test.params {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded, test.params)
			}
		})
	}
}

func TestEncodeWithRoundTripPerStrategy(t *testing.T) {
	params := map[Strategy][]TrackingParams{
		StrategySequential: {
			{CampaignID: 7},
			{CampaignID: 7, ClickID: "x3"},
			{CampaignID: seqMaxValue, ClickID: "zzzz"},
		},
		StrategyCompressed: {
			{CampaignID: 7},
			{CampaignID: 7, Sub1: "fb"},
			{CampaignID: 1 << 40, Sub1: "a", Sub2: "b", Sub3: "c", Sub4: "d", Sub5: "e", ClickID: "f"},
		},
		StrategyHybrid: {
			{CampaignID: 7},
			{CampaignID: 4000, Sub1: "fb", ClickID: "abc123"},
		},
	}

	for strategy, sets := range params {
		for _, p := range sets {
			code, err := EncodeWith(strategy, p)
			if err != nil {
				t.Fatalf("%s encode %+v: %v", strategy, p, err)
			}
			if Strategy(code[0]) != strategy {
				t.Errorf("%s code %q has wrong tag", strategy, code)
			}

			decoded, err := Decode(code)
			if err != nil {
				t.Fatalf("%s decode %q: %v", strategy, code, err)
			}
			if decoded != p {
				t.Errorf("%s round trip mismatch: got %+v, want %+v", strategy, decoded, p)
			}
		}
	}
}

func TestEncodePicksSmallestStrategy(t *testing.T) {
	// Campaign id plus a short click token fits the fixed sequential layout.
	code, err := Encode(TrackingParams{CampaignID: 7, ClickID: "x3"})
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != MinCodeLength {
		t.Errorf("expected fixed %d-char code, got %q (%d)", MinCodeLength, code, len(code))
	}
	if Strategy(code[0]) != StrategySequential {
		t.Errorf("expected sequential tag, got %q", code[0])
	}

	// A sub-parameter forces a packed strategy but still fits 10 chars.
	code, err = Encode(TrackingParams{CampaignID: 7, Sub1: "fb"})
	if err != nil {
		t.Fatal(err)
	}
	if len(code) != MinCodeLength {
		t.Errorf("expected %d-char code, got %q (%d)", MinCodeLength, code, len(code))
	}
	decoded, err := Decode(code)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.CampaignID != 7 || decoded.Sub1 != "fb" {
		t.Errorf("unexpected decode: %+v", decoded)
	}
}

func TestEncodeRejectsOversizeFields(t *testing.T) {
	_, err := Encode(TrackingParams{CampaignID: 1, Sub2: strings.Repeat("x", MaxFieldLength+1)})
	if !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("expected ErrFieldTooLong, got %v", err)
	}

	_, err = Encode(TrackingParams{CampaignID: 1, ClickID: strings.Repeat("x", MaxFieldLength+1)})
	if !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestDecodeMalformedNeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"s",
		"ss",
		"z123456789",  // unknown tag
		"s123",        // too short for sequential
		"sAAAABBBBX",  // bad checksum
		"c!!!!!!!!!$", // non-alphabet body
		"c0000000000", // zero payload, no sentinel
		strings.Repeat("h", 300),
		"\x00\xff\x7f12345678",
	}

	for _, input := range inputs {
		if _, err := Decode(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	code, err := Encode(TrackingParams{CampaignID: 99, Sub1: "news"})
	if err != nil {
		t.Fatal(err)
	}

	// Flip the trailing checksum character.
	bad := code[:len(code)-1] + flipChar(code[len(code)-1])
	if _, err := Decode(bad); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestBase62FieldHelpers(t *testing.T) {
	for _, v := range []uint64{0, 1, 61, 62, 14776335, 1<<32 - 1} {
		if v > seqMaxValue {
			continue
		}
		enc := encodeUint62(v, seqFieldWidth)
		if len(enc) != seqFieldWidth {
			t.Fatalf("width mismatch for %d: %q", v, enc)
		}
		dec, err := decodeUint62(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if dec != v {
			t.Errorf("uint62 round trip: got %d, want %d", dec, v)
		}
	}
}

func TestBytes62RoundTrip(t *testing.T) {
	payloads := [][]byte{
		{payloadSentinel},
		{payloadSentinel, 0x00},
		{payloadSentinel, 0x00, 0x00, 0xff},
		append([]byte{payloadSentinel}, []byte("hello world")...),
	}

	for _, payload := range payloads {
		enc := encodeBytes62(payload, minBodyWidth)
		dec, err := decodeBytes62(enc)
		if err != nil {
			t.Fatalf("decode %q: %v", enc, err)
		}
		if string(dec) != string(payload[1:]) {
			t.Errorf("bytes62 round trip: got %x, want %x", dec, payload[1:])
		}
	}
}

// flipChar returns a different alphanumeric character.
func flipChar(c byte) string {
	if c == 'A' {
		return "B"
	}
	return "A"
}
