package domain

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type fakeVerdict bool

func (f fakeVerdict) Flagged() bool { return bool(f) }

func TestSummarize(t *testing.T) {
	result := AggregatedResult{
		Indicator: "1.2.3.4",
		Type:      IPv4,
		Sources: map[SourceName]LookupOutcome{
			SourceVirusTotal: Succeeded(fakeVerdict(true)),
			SourceAbuseIPDB:  Succeeded(fakeVerdict(false)),
			SourceGreyNoise:  NotConfigured(),
			SourceOTX:        StatusFailure(429),
			SourceWhois:      Succeeded(map[string]any{"country": "US"}),
			SourceIPVoid:     Failed(errors.New("dial tcp: timeout")),
			SourceMXToolbox:  Succeeded(fakeVerdict(true)),
		},
	}

	expected := Summary{
		Queried:   7,
		Succeeded: 4,
		Failed:    3,
		Flagged:   2,
		FlaggedBy: []SourceName{SourceVirusTotal, SourceMXToolbox},
	}

	if diff := cmp.Diff(expected, Summarize(result)); diff != "" {
		t.Errorf("Summarize mismatch (-want +got):\n%s", diff)
	}
}

func TestOutcomeHelpers(t *testing.T) {
	tests := []struct {
		name     string
		outcome  LookupOutcome
		expected LookupOutcome
	}{
		{"Not configured", NotConfigured(), LookupOutcome{Error: "API key not configured"}},
		{"Status", StatusFailure(404), LookupOutcome{Error: "HTTP 404"}},
		{"Transport", Failed(errors.New("connection refused")), LookupOutcome{Error: "connection refused"}},
		{"Nil error", Failed(nil), LookupOutcome{Error: "unknown error"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.expected, tt.outcome); diff != "" {
				t.Errorf("outcome mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
