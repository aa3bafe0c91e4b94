package domain

// Verdict is implemented by provider reports that can say whether the indicator looks malicious.
type Verdict interface {
	Flagged() bool
}

// Summary counts source outcomes for one aggregated result.
type Summary struct {
	Queried   int          `json:"queried"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Flagged   int          `json:"flagged"`
	FlaggedBy []SourceName `json:"flagged_by,omitempty"`
}

// Summarize is a pure function over the sources map. A source is flagged only when it
// succeeded and its report implements Verdict and answers true.
func Summarize(result AggregatedResult) Summary {
	s := Summary{Queried: len(result.Sources)}

	// iterate in a stable order so FlaggedBy is deterministic
	for _, name := range SourceOrder {
		outcome, ok := result.Sources[name]
		if !ok {
			continue
		}
		if !outcome.Success {
			s.Failed++
			continue
		}
		s.Succeeded++
		if v, ok := outcome.Data.(Verdict); ok && v.Flagged() {
			s.Flagged++
			s.FlaggedBy = append(s.FlaggedBy, name)
		}
	}

	return s
}

// SourceOrder is the display order for sources.
var SourceOrder = []SourceName{
	SourceVirusTotal,
	SourceAbuseIPDB,
	SourceURLScan,
	SourceGreyNoise,
	SourceOTX,
	SourceWhois,
	SourceMXToolbox,
	SourceIPVoid,
	SourceURLAnalysis,
	SourceError,
}
