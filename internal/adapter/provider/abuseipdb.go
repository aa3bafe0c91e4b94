package provider

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const abuseIPDBURL = "https://api.abuseipdb.com/api/v2"

// abuseFlagScore is the confidence score from which an address counts as abusive.
const abuseFlagScore = 50

type AbuseIPDBProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewAbuseIPDBProvider(client Doer, apiKey string, opts ...Option) *AbuseIPDBProvider {
	o := buildOptions(abuseIPDBURL, opts)
	return &AbuseIPDBProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *AbuseIPDBProvider) Name() domain.SourceName {
	return domain.SourceAbuseIPDB
}

type abuseIPDBResponse struct {
	Data struct {
		AbuseConfidenceScore int    `json:"abuseConfidenceScore"`
		CountryCode          string `json:"countryCode"`
		UsageType            string `json:"usageType"`
		ISP                  string `json:"isp"`
		Domain               string `json:"domain"`
		IsWhitelisted        bool   `json:"isWhitelisted"`
		TotalReports         int    `json:"totalReports"`
		NumDistinctUsers     int    `json:"numDistinctUsers"`
	} `json:"data"`
}

type AbuseIPDBReport struct {
	AbuseConfidenceScore int    `json:"abuse_confidence_score"`
	CountryCode          string `json:"country_code"`
	UsageType            string `json:"usage_type"`
	ISP                  string `json:"isp"`
	Domain               string `json:"domain"`
	IsWhitelisted        bool   `json:"is_whitelisted"`
	TotalReports         int    `json:"total_reports"`
	NumDistinctUsers     int    `json:"num_distinct_users"`
}

func (r AbuseIPDBReport) Flagged() bool {
	return !r.IsWhitelisted && r.AbuseConfidenceScore >= abuseFlagScore
}

// LookupIP checks reports from the last 90 days.
func (p *AbuseIPDBProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.NotConfigured()
	}

	var payload abuseIPDBResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source: domain.SourceAbuseIPDB,
		url:    p.baseURL + "/check",
		query: url.Values{
			"ipAddress":    {ip},
			"maxAgeInDays": {"90"},
			"verbose":      {"true"},
		},
		headers: map[string]string{"Key": p.apiKey},
	}, &payload)
	if !ok {
		return outcome
	}

	d := payload.Data
	return domain.Succeeded(AbuseIPDBReport{
		AbuseConfidenceScore: d.AbuseConfidenceScore,
		CountryCode:          orUnknown(d.CountryCode),
		UsageType:            orUnknown(d.UsageType),
		ISP:                  orUnknown(d.ISP),
		Domain:               orUnknown(d.Domain),
		IsWhitelisted:        d.IsWhitelisted,
		TotalReports:         d.TotalReports,
		NumDistinctUsers:     d.NumDistinctUsers,
	})
}
