package domain

import "time"

type IndicatorType string

const (
	SHA256  IndicatorType = "sha256"
	SHA1    IndicatorType = "sha1"
	MD5     IndicatorType = "md5"
	URL     IndicatorType = "url"
	Email   IndicatorType = "email"
	IPv4    IndicatorType = "ipv4"
	Domain  IndicatorType = "domain"
	Unknown IndicatorType = "unknown"
)

// IndicatorTypes lists every type in classification priority order.
var IndicatorTypes = []IndicatorType{SHA256, SHA1, MD5, URL, Email, IPv4, Domain, Unknown}

// Priority ranks the type for disambiguation only. Lower wins.
func (t IndicatorType) Priority() int {
	for i, candidate := range IndicatorTypes {
		if candidate == t {
			return i
		}
	}
	return len(IndicatorTypes)
}

// IsHash reports whether the type is one of the file hash digests.
func (t IndicatorType) IsHash() bool {
	return t == MD5 || t == SHA1 || t == SHA256
}

func (t IndicatorType) String() string {
	return string(t)
}

// IndicatorToken is one classified indicator pulled out of free text.
// Value is always the fanged (canonical) form.
type IndicatorToken struct {
	Value       string        `json:"value"`
	Type        IndicatorType `json:"type"`
	WasDefanged bool          `json:"was_defanged"`
}

// LookupRecord is a persisted copy of one aggregated lookup.
type LookupRecord struct {
	ID          string           `json:"id"`
	Indicator   string           `json:"ioc"`
	Type        IndicatorType    `json:"type"`
	WasDefanged bool             `json:"was_defanged"`
	Result      AggregatedResult `json:"results"`
	Summary     Summary          `json:"summary"`
	Timestamp   time.Time        `json:"timestamp"`
}
