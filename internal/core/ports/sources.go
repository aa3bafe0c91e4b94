package ports

import (
	"context"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// Source adapters implement one or more of the lookup interfaces below. Every method
// returns an outcome and never an error: missing credentials, upstream status codes and
// transport failures are all reported through domain.LookupOutcome.

type IPLookup interface {
	LookupIP(ctx context.Context, ip string) domain.LookupOutcome
}

type DomainLookup interface {
	LookupDomain(ctx context.Context, name string) domain.LookupOutcome
}

type URLLookup interface {
	LookupURL(ctx context.Context, rawURL string) domain.LookupOutcome
}

type HashLookup interface {
	LookupHash(ctx context.Context, hash string) domain.LookupOutcome
}

// URLAnalyzer follows a URL and reports on where it ends up.
type URLAnalyzer interface {
	AnalyzeURL(ctx context.Context, rawURL string) domain.LookupOutcome
}

// SourceRecorder observes individual source calls.
type SourceRecorder interface {
	ObserveSource(source domain.SourceName, success bool, elapsed time.Duration)
}

// IndicatorRecorder observes every aggregated indicator.
type IndicatorRecorder interface {
	RecordIndicator(typ domain.IndicatorType, flagged bool)
}
