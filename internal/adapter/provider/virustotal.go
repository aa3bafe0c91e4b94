package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const virusTotalURL = "https://www.virustotal.com/api/v3"

type VirusTotalProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewVirusTotalProvider(client Doer, apiKey string, opts ...Option) *VirusTotalProvider {
	o := buildOptions(virusTotalURL, opts)
	return &VirusTotalProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *VirusTotalProvider) Name() domain.SourceName {
	return domain.SourceVirusTotal
}

type vtResponse struct {
	Data struct {
		Attributes vtAttributes `json:"attributes"`
	} `json:"data"`
}

type vtAttributes struct {
	LastAnalysisStats struct {
		Malicious  int `json:"malicious"`
		Suspicious int `json:"suspicious"`
		Harmless   int `json:"harmless"`
		Undetected int `json:"undetected"`
	} `json:"last_analysis_stats"`
	Reputation int               `json:"reputation"`
	Country    string            `json:"country"`
	ASOwner    string            `json:"as_owner"`
	Categories map[string]string `json:"categories"`

	// file objects only
	TypeDescription     string   `json:"type_description"`
	TypeExtension       string   `json:"type_extension"`
	MeaningfulName      string   `json:"meaningful_name"`
	Names               []string `json:"names"`
	Size                int64    `json:"size"`
	MD5                 string   `json:"md5"`
	SHA1                string   `json:"sha1"`
	SHA256              string   `json:"sha256"`
	FirstSubmissionDate int64    `json:"first_submission_date"`
	LastAnalysisDate    int64    `json:"last_analysis_date"`
	TimesSubmitted      int      `json:"times_submitted"`
	Tags                []string `json:"tags"`
}

// VirusTotalStats are the engine verdict counts shared by every VirusTotal report.
type VirusTotalStats struct {
	Malicious      int    `json:"malicious"`
	Suspicious     int    `json:"suspicious"`
	Harmless       int    `json:"harmless"`
	Undetected     int    `json:"undetected"`
	TotalScans     int    `json:"total_scans"`
	DetectionRatio string `json:"detection_ratio"`
}

type VirusTotalIPReport struct {
	VirusTotalStats
	Reputation int    `json:"reputation"`
	Country    string `json:"country"`
	ASOwner    string `json:"as_owner"`
}

type VirusTotalDomainReport struct {
	VirusTotalStats
	Reputation int               `json:"reputation"`
	Categories map[string]string `json:"categories"`
}

type VirusTotalURLReport struct {
	VirusTotalStats
}

type VirusTotalFileReport struct {
	VirusTotalStats
	FileType        string   `json:"file_type"`
	FileExtension   string   `json:"file_extension"`
	FileName        string   `json:"file_name"`
	FileNames       []string `json:"file_names"`
	Size            int64    `json:"size"`
	SizeReadable    string   `json:"size_readable"`
	MD5             string   `json:"md5"`
	SHA1            string   `json:"sha1"`
	SHA256          string   `json:"sha256"`
	FirstSubmission int64    `json:"first_submission"`
	LastAnalysis    int64    `json:"last_analysis"`
	TimesSubmitted  int      `json:"times_submitted"`
	Reputation      int      `json:"reputation"`
	Tags            []string `json:"tags"`
}

// Flagged reports whether at least one engine called the indicator malicious.
func (s VirusTotalStats) Flagged() bool {
	return s.Malicious > 0
}

func (p *VirusTotalProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	attrs, outcome, ok := p.fetch(ctx, "/ip_addresses/"+url.PathEscape(ip))
	if !ok {
		return outcome
	}
	return domain.Succeeded(VirusTotalIPReport{
		VirusTotalStats: attrs.stats(),
		Reputation:      attrs.Reputation,
		Country:         orUnknown(attrs.Country),
		ASOwner:         orUnknown(attrs.ASOwner),
	})
}

func (p *VirusTotalProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	attrs, outcome, ok := p.fetch(ctx, "/domains/"+url.PathEscape(name))
	if !ok {
		return outcome
	}
	categories := attrs.Categories
	if categories == nil {
		categories = map[string]string{}
	}
	return domain.Succeeded(VirusTotalDomainReport{
		VirusTotalStats: attrs.stats(),
		Reputation:      attrs.Reputation,
		Categories:      categories,
	})
}

// LookupURL queries the URL object whose id is the unpadded URL-safe base64 of the URL.
func (p *VirusTotalProvider) LookupURL(ctx context.Context, rawURL string) domain.LookupOutcome {
	id := base64.RawURLEncoding.EncodeToString([]byte(rawURL))
	attrs, outcome, ok := p.fetch(ctx, "/urls/"+id)
	if !ok {
		return outcome
	}
	return domain.Succeeded(VirusTotalURLReport{VirusTotalStats: attrs.stats()})
}

func (p *VirusTotalProvider) LookupHash(ctx context.Context, hash string) domain.LookupOutcome {
	attrs, outcome, ok := p.fetch(ctx, "/files/"+url.PathEscape(hash))
	if !ok {
		return outcome
	}

	name := attrs.MeaningfulName
	if name == "" && len(attrs.Names) > 0 {
		name = attrs.Names[0]
	}

	return domain.Succeeded(VirusTotalFileReport{
		VirusTotalStats: attrs.stats(),
		FileType:        orUnknown(attrs.TypeDescription),
		FileExtension:   orUnknown(attrs.TypeExtension),
		FileName:        orUnknown(name),
		FileNames:       firstN(attrs.Names, 5),
		Size:            attrs.Size,
		SizeReadable:    formatFileSize(attrs.Size),
		MD5:             orNA(attrs.MD5),
		SHA1:            orNA(attrs.SHA1),
		SHA256:          orNA(attrs.SHA256),
		FirstSubmission: attrs.FirstSubmissionDate,
		LastAnalysis:    attrs.LastAnalysisDate,
		TimesSubmitted:  attrs.TimesSubmitted,
		Reputation:      attrs.Reputation,
		Tags:            firstN(attrs.Tags, 5),
	})
}

func (p *VirusTotalProvider) fetch(ctx context.Context, path string) (vtAttributes, domain.LookupOutcome, bool) {
	if p.apiKey == "" {
		return vtAttributes{}, domain.NotConfigured(), false
	}

	var payload vtResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source:  domain.SourceVirusTotal,
		url:     p.baseURL + path,
		headers: map[string]string{"x-apikey": p.apiKey},
	}, &payload)

	return payload.Data.Attributes, outcome, ok
}

func (a vtAttributes) stats() VirusTotalStats {
	s := a.LastAnalysisStats
	total := s.Malicious + s.Suspicious + s.Harmless + s.Undetected
	return VirusTotalStats{
		Malicious:      s.Malicious,
		Suspicious:     s.Suspicious,
		Harmless:       s.Harmless,
		Undetected:     s.Undetected,
		TotalScans:     total,
		DetectionRatio: detectionRatio(s.Malicious+s.Suspicious, total),
	}
}

func formatFileSize(size int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case size < kb:
		return fmt.Sprintf("%d B", size)
	case size < mb:
		return fmt.Sprintf("%.2f KB", float64(size)/kb)
	case size < gb:
		return fmt.Sprintf("%.2f MB", float64(size)/mb)
	default:
		return fmt.Sprintf("%.2f GB", float64(size)/gb)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
