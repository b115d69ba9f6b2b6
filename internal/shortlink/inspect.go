package shortlink

// Report is a diagnostic description of a code, used for operational
// triage of broken links. Inspect never fails on malformed input.
type Report struct {
	Code             string          `json:"code"`
	ApparentStrategy string          `json:"apparent_strategy"`
	LengthOK         bool            `json:"length_ok"`
	ChecksumOK       bool            `json:"checksum_ok"`
	Decodable        bool            `json:"decodable"`
	Recoverable      bool            `json:"recoverable"`
	Fields           map[string]bool `json:"fields"`
}

// Inspect reports the apparent strategy, length validity, checksum
// validity and per-field decodability of a code.
func Inspect(code string) Report {
	report := Report{
		Code:             code,
		ApparentStrategy: "unknown",
		Fields:           fieldReport(TrackingParams{}, nil),
	}

	if len(code) < 2 {
		return report
	}

	tag := Strategy(code[0])
	switch tag {
	case StrategySequential:
		report.ApparentStrategy = tag.String()
		report.LengthOK = len(code) == MinCodeLength
	case StrategyCompressed, StrategyHybrid:
		report.ApparentStrategy = tag.String()
		report.LengthOK = len(code) >= MinCodeLength
	default:
		return report
	}

	report.ChecksumOK = checksum(code[:len(code)-1]) == code[len(code)-1]

	if params, err := Decode(code); err == nil {
		report.Decodable = true
		report.Recoverable = true
		report.Fields = fieldReport(params, fieldNames(params))
		return report
	}

	if recovered, err := Recover(code); err == nil {
		report.Recoverable = true
		report.Fields = fieldReport(recovered.Params, recovered.Fields)
	}
	return report
}

// fieldReport maps every logical field to whether it was decodable.
func fieldReport(params TrackingParams, recovered []string) map[string]bool {
	fields := map[string]bool{
		"campaign_id": false,
		"sub1":        false,
		"sub2":        false,
		"sub3":        false,
		"sub4":        false,
		"sub5":        false,
		"click_id":    false,
	}
	for _, name := range recovered {
		fields[name] = true
	}
	return fields
}
