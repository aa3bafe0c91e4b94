package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const urlscanURL = "https://urlscan.io/api/v1"

type URLScanProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewURLScanProvider(client Doer, apiKey string, opts ...Option) *URLScanProvider {
	o := buildOptions(urlscanURL, opts)
	return &URLScanProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *URLScanProvider) Name() domain.SourceName {
	return domain.SourceURLScan
}

type urlscanSubmitResponse struct {
	UUID       string `json:"uuid"`
	Result     string `json:"result"`
	Visibility string `json:"visibility"`
}

type urlscanSearchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		Page struct {
			URL     string `json:"url"`
			Country string `json:"country"`
			Server  string `json:"server"`
			IP      string `json:"ip"`
			ASN     string `json:"asn"`
		} `json:"page"`
		Verdicts struct {
			Overall struct {
				Malicious  bool     `json:"malicious"`
				Score      int      `json:"score"`
				Categories []string `json:"categories"`
			} `json:"overall"`
		} `json:"verdicts"`
		Task struct {
			Time string `json:"time"`
		} `json:"task"`
	} `json:"results"`
}

// URLScanSubmission is returned for URLs: the scan runs asynchronously on urlscan.io.
type URLScanSubmission struct {
	ResultURL  string `json:"result_url"`
	ScanID     string `json:"scan_id"`
	Message    string `json:"message"`
	Visibility string `json:"visibility"`
}

type URLScanScan struct {
	URL        string   `json:"url"`
	Country    string   `json:"country"`
	Server     string   `json:"server"`
	IP         string   `json:"ip"`
	ASN        string   `json:"asn"`
	Malicious  bool     `json:"malicious"`
	Score      int      `json:"score"`
	Categories []string `json:"categories"`
	ScanTime   string   `json:"scan_time"`
}

type URLScanDomainReport struct {
	TotalResults int           `json:"total_results"`
	HasResults   bool          `json:"has_results"`
	RecentScans  int           `json:"recent_scans"`
	ScanDetails  []URLScanScan `json:"scan_details"`
}

// Flagged is true when any of the recent scans was judged malicious.
func (r URLScanDomainReport) Flagged() bool {
	for _, scan := range r.ScanDetails {
		if scan.Malicious {
			return true
		}
	}
	return false
}

// LookupURL submits a private scan.
func (p *URLScanProvider) LookupURL(ctx context.Context, rawURL string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.NotConfigured()
	}

	body, err := json.Marshal(map[string]string{"url": rawURL, "visibility": "private"})
	if err != nil {
		return domain.Failed(err)
	}

	var payload urlscanSubmitResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source: domain.SourceURLScan,
		method: http.MethodPost,
		url:    p.baseURL + "/scan/",
		headers: map[string]string{
			"API-Key":      p.apiKey,
			"Content-Type": "application/json",
		},
		body: bytes.NewReader(body),
	}, &payload)
	if !ok {
		return outcome
	}

	return domain.Succeeded(URLScanSubmission{
		ResultURL:  payload.Result,
		ScanID:     payload.UUID,
		Message:    "Scan submitted successfully. Results will be available shortly.",
		Visibility: payload.Visibility,
	})
}

// LookupDomain searches existing scans and details the five most recent.
func (p *URLScanProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.NotConfigured()
	}

	var payload urlscanSearchResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source:  domain.SourceURLScan,
		url:     p.baseURL + "/search/",
		query:   url.Values{"q": {"domain:" + name}},
		headers: map[string]string{"API-Key": p.apiKey},
	}, &payload)
	if !ok {
		return outcome
	}

	details := []URLScanScan{}
	for _, r := range firstN(payload.Results, 5) {
		categories := r.Verdicts.Overall.Categories
		if categories == nil {
			categories = []string{}
		}
		details = append(details, URLScanScan{
			URL:        orNA(r.Page.URL),
			Country:    orUnknown(r.Page.Country),
			Server:     orUnknown(r.Page.Server),
			IP:         orUnknown(r.Page.IP),
			ASN:        orUnknown(r.Page.ASN),
			Malicious:  r.Verdicts.Overall.Malicious,
			Score:      r.Verdicts.Overall.Score,
			Categories: categories,
			ScanTime:   orUnknown(r.Task.Time),
		})
	}

	return domain.Succeeded(URLScanDomainReport{
		TotalResults: payload.Total,
		HasResults:   len(payload.Results) > 0,
		RecentScans:  len(payload.Results),
		ScanDetails:  details,
	})
}
