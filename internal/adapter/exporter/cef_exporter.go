package exporter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// CEFExporter exports stored lookups in Common Event Format for SIEM ingestion
type CEFExporter struct {
	feed LookupFeed
}

func NewCEFExporter(feed LookupFeed) *CEFExporter {
	return &CEFExporter{feed: feed}
}

// Export generates one CEF line per stored lookup.
// Format: CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (e *CEFExporter) Export(ctx context.Context, since time.Time) (string, error) {
	records, err := e.feed.Since(ctx, defaultSince(since), maxFeedRecords)
	if err != nil {
		return "", fmt.Errorf("failed to fetch lookups: %w", err)
	}

	var output strings.Builder
	for _, record := range records {
		output.WriteString(formatCEF(record))
		output.WriteString("\n")
	}

	return output.String(), nil
}

func formatCEF(record domain.LookupRecord) string {
	const (
		vendor  = "HiveCorporation"
		product = "iocscope"
		version = "1.0"
	)

	summary := record.Summary
	confidence := calculateConfidence(summary)

	verb := "Checked"
	if summary.Flagged > 0 {
		verb = "Flagged"
	}
	name := fmt.Sprintf("%s IOC %s", strings.ToUpper(record.Type.String()), verb)

	flaggedBy := make([]string, len(summary.FlaggedBy))
	for i, source := range summary.FlaggedBy {
		flaggedBy[i] = string(source)
	}

	// CEF Extensions (key=value pairs)
	extensions := []string{
		fmt.Sprintf("%s=%s", extensionKey(record.Type), escapeExtension(record.Indicator)),
		"cn1Label=ConfidenceScore",
		fmt.Sprintf("cn1=%d", confidence),
		"cn2Label=SourcesQueried",
		fmt.Sprintf("cn2=%d", summary.Queried),
		"cs1Label=FlaggedBy",
		fmt.Sprintf("cs1=%s", escapeExtension(strings.Join(flaggedBy, ","))),
		"cs2Label=WasDefanged",
		fmt.Sprintf("cs2=%t", record.WasDefanged),
		fmt.Sprintf("rt=%d", record.Timestamp.UnixMilli()),
	}

	return fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
		vendor, product, version, escapeHeader(record.Type.String()), escapeHeader(name),
		calculateSeverity(confidence), strings.Join(extensions, " "))
}

// extensionKey picks the CEF dictionary key that fits the indicator type.
func extensionKey(typ domain.IndicatorType) string {
	switch {
	case typ == domain.IPv4:
		return "src"
	case typ == domain.Domain:
		return "dhost"
	case typ == domain.URL:
		return "request"
	case typ == domain.Email:
		return "duser"
	case typ.IsHash():
		return "fileHash"
	default:
		return "msg"
	}
}

func calculateSeverity(confidence int) int {
	// Map confidence (0-100) to CEF severity (0-10)
	if confidence >= 90 {
		return 10 // Critical
	} else if confidence >= 80 {
		return 8 // High
	} else if confidence >= 70 {
		return 6 // Medium
	} else if confidence >= 60 {
		return 4 // Low
	}
	return 2 // Info
}

func escapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "|", `\|`)
}

func escapeExtension(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "=", `\=`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}
