package domain

import "fmt"

// SourceName identifies one external intelligence source in an aggregated result.
type SourceName string

const (
	SourceVirusTotal  SourceName = "virustotal"
	SourceAbuseIPDB   SourceName = "abuseipdb"
	SourceURLScan     SourceName = "urlscan"
	SourceOTX         SourceName = "otx"
	SourceGreyNoise   SourceName = "greynoise"
	SourceWhois       SourceName = "whois"
	SourceMXToolbox   SourceName = "mxtoolbox"
	SourceIPVoid      SourceName = "ipvoid"
	SourceURLAnalysis SourceName = "url_analysis"

	// SourceError is the synthetic key used when a type has no route.
	SourceError SourceName = "error"
)

// ErrMissingAPIKey is the outcome message for sources that need credentials they don't have.
const ErrMissingAPIKey = "API key not configured"

// LookupOutcome is what a single source call returns. It is always one of:
// not configured, failed (HTTP status or transport error) or successful with a report.
type LookupOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data"`
}

// Succeeded wraps a provider report.
func Succeeded(report any) LookupOutcome {
	return LookupOutcome{Success: true, Data: report}
}

// Failed records a transport or parsing error.
func Failed(err error) LookupOutcome {
	if err == nil {
		return LookupOutcome{Success: false, Error: "unknown error"}
	}
	return LookupOutcome{Success: false, Error: err.Error()}
}

// FailedMessage records a failure described by a plain message.
func FailedMessage(format string, args ...any) LookupOutcome {
	return LookupOutcome{Success: false, Error: fmt.Sprintf(format, args...)}
}

// NotConfigured is returned without any network activity when credentials are absent.
func NotConfigured() LookupOutcome {
	return LookupOutcome{Success: false, Error: ErrMissingAPIKey}
}

// StatusFailure is returned for any non-200 upstream response.
func StatusFailure(code int) LookupOutcome {
	return FailedMessage("HTTP %d", code)
}

// AggregatedResult bundles every source outcome for one indicator.
// Sources holds exactly the keys routed for Type.
type AggregatedResult struct {
	Indicator string                       `json:"ioc"`
	Type      IndicatorType                `json:"type"`
	Sources   map[SourceName]LookupOutcome `json:"sources"`
}
