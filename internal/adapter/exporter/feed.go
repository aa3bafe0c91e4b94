package exporter

import (
	"context"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// maxFeedRecords bounds a single export.
const maxFeedRecords = 10000

// LookupFeed supplies stored lookups for export. service.LookupService satisfies it.
type LookupFeed interface {
	Since(ctx context.Context, since time.Time, limit int) ([]domain.LookupRecord, error)
}

func defaultSince(since time.Time) time.Time {
	// Default to last 24 hours if no time specified
	if since.IsZero() {
		return time.Now().Add(-24 * time.Hour)
	}
	return since
}

// calculateConfidence scores a lookup from how many sources flagged it.
func calculateConfidence(summary domain.Summary) int {
	if summary.Flagged == 0 {
		return 30
	}

	confidence := 60 + 10*summary.Flagged

	// Cap at 100
	if confidence > 100 {
		confidence = 100
	}

	return confidence
}

var sourceURLs = map[domain.SourceName]string{
	domain.SourceVirusTotal: "https://www.virustotal.com",
	domain.SourceAbuseIPDB:  "https://www.abuseipdb.com",
	domain.SourceURLScan:    "https://urlscan.io",
	domain.SourceOTX:        "https://otx.alienvault.com",
	domain.SourceGreyNoise:  "https://viz.greynoise.io",
	domain.SourceMXToolbox:  "https://mxtoolbox.com",
	domain.SourceIPVoid:     "https://www.ipvoid.com",
}
