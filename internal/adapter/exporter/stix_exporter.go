package exporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// STIXExporter exports stored lookups as a STIX 2.1 bundle for SIEM ingestion
type STIXExporter struct {
	feed LookupFeed
	now  func() time.Time
}

func NewSTIXExporter(feed LookupFeed) *STIXExporter {
	return &STIXExporter{feed: feed, now: time.Now}
}

// Export generates a STIX 2.1 bundle with one indicator per stored lookup.
func (e *STIXExporter) Export(ctx context.Context, since time.Time) (string, error) {
	records, err := e.feed.Since(ctx, defaultSince(since), maxFeedRecords)
	if err != nil {
		return "", fmt.Errorf("failed to fetch lookups: %w", err)
	}

	bundle := STIXBundle{
		Type:    "bundle",
		ID:      fmt.Sprintf("bundle--%s", uuid.New().String()),
		Objects: []STIXObject{},
	}

	for _, record := range records {
		bundle.Objects = append(bundle.Objects, e.convertToSTIX(record))
	}

	jsonData, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal STIX bundle: %w", err)
	}

	return string(jsonData), nil
}

func (e *STIXExporter) convertToSTIX(record domain.LookupRecord) STIXObject {
	now := e.now().UTC()

	var externalRefs []ExternalReference
	for _, source := range record.Summary.FlaggedBy {
		externalRefs = append(externalRefs, ExternalReference{
			SourceName: string(source),
			URL:        sourceURLs[source],
		})
	}

	labels := make([]string, 0, len(record.Summary.FlaggedBy))
	for _, source := range record.Summary.FlaggedBy {
		labels = append(labels, "flagged-by-"+string(source))
	}

	return STIXObject{
		Type:               "indicator",
		SpecVersion:        "2.1",
		ID:                 fmt.Sprintf("indicator--%s", uuid.New().String()),
		Created:            now.Format(time.RFC3339),
		Modified:           now.Format(time.RFC3339),
		Name:               fmt.Sprintf("%s Indicator", strings.ToUpper(record.Type.String())),
		Pattern:            buildPattern(record.Type, record.Indicator),
		PatternType:        "stix",
		ValidFrom:          record.Timestamp.UTC().Format(time.RFC3339),
		IndicatorTypes:     indicatorTypes(record.Summary),
		Confidence:         calculateConfidence(record.Summary),
		Labels:             labels,
		ExternalReferences: externalRefs,
	}
}

func buildPattern(typ domain.IndicatorType, value string) string {
	value = escapePatternValue(value)

	switch typ {
	case domain.IPv4:
		return fmt.Sprintf("[ipv4-addr:value = '%s']", value)
	case domain.Domain:
		return fmt.Sprintf("[domain-name:value = '%s']", value)
	case domain.URL:
		return fmt.Sprintf("[url:value = '%s']", value)
	case domain.Email:
		return fmt.Sprintf("[email-addr:value = '%s']", value)
	case domain.MD5:
		return fmt.Sprintf("[file:hashes.'MD5' = '%s']", value)
	case domain.SHA1:
		return fmt.Sprintf("[file:hashes.'SHA-1' = '%s']", value)
	case domain.SHA256:
		return fmt.Sprintf("[file:hashes.'SHA-256' = '%s']", value)
	default:
		return fmt.Sprintf("[x-iocscope-unknown:value = '%s']", value)
	}
}

// escapePatternValue escapes a STIX pattern string literal.
func escapePatternValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func indicatorTypes(summary domain.Summary) []string {
	if summary.Flagged > 0 {
		return []string{"malicious-activity"}
	}
	return []string{"unknown"}
}

// STIX 2.1 data structures

type STIXBundle struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Objects []STIXObject `json:"objects"`
}

type STIXObject struct {
	Type               string              `json:"type"`
	SpecVersion        string              `json:"spec_version"`
	ID                 string              `json:"id"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	Name               string              `json:"name"`
	Pattern            string              `json:"pattern"`
	PatternType        string              `json:"pattern_type"`
	ValidFrom          string              `json:"valid_from"`
	IndicatorTypes     []string            `json:"indicator_types"`
	Confidence         int                 `json:"confidence"`
	Labels             []string            `json:"labels,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`
}

type ExternalReference struct {
	SourceName string `json:"source_name"`
	URL        string `json:"url,omitempty"`
}
