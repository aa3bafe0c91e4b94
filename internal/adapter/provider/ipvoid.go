package provider

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const (
	apiVoidURL          = "https://endpoint.apivoid.com"
	ipVoidManualIP      = "https://www.ipvoid.com/ip-blacklist-check/"
	ipVoidManualDomain  = "https://www.ipvoid.com/domain-reputation-check/"
	ipVoidManualMessage = "IPVoid API key not configured. Visit the link to check manually."
)

// IPVoidProvider works without a key: it then answers with a link for a manual check
// instead of failing.
type IPVoidProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewIPVoidProvider(client Doer, apiKey string, opts ...Option) *IPVoidProvider {
	o := buildOptions(apiVoidURL, opts)
	return &IPVoidProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *IPVoidProvider) Name() domain.SourceName {
	return domain.SourceIPVoid
}

type apiVoidResponse struct {
	Data struct {
		Report struct {
			Blacklists struct {
				Detections int `json:"detections"`
				Engines    int `json:"engines"`
			} `json:"blacklists"`
			RiskScore struct {
				Result int `json:"result"`
			} `json:"risk_score"`
			Anonymity struct {
				IsProxy bool `json:"is_proxy"`
				IsVPN   bool `json:"is_vpn"`
				IsTor   bool `json:"is_tor"`
			} `json:"anonymity"`
			Information struct {
				CountryName string `json:"country_name"`
				ISP         string `json:"isp"`
			} `json:"information"`
			Server struct {
				DomainAgeDays int    `json:"domain_age_days"`
				IP            string `json:"ip"`
			} `json:"server"`
		} `json:"report"`
	} `json:"data"`
}

// IPVoidManualCheck is returned when no API key is configured.
type IPVoidManualCheck struct {
	CheckURL   string `json:"check_url"`
	Message    string `json:"message"`
	Detections int    `json:"detections"`
	Blacklists int    `json:"blacklists"`
	RiskScore  int    `json:"risk_score"`
}

type IPVoidIPReport struct {
	Detections     int    `json:"detections"`
	TotalEngines   int    `json:"total_engines"`
	DetectionRatio string `json:"detection_ratio"`
	RiskScore      int    `json:"risk_score"`
	IsProxy        bool   `json:"is_proxy"`
	IsVPN          bool   `json:"is_vpn"`
	IsTor          bool   `json:"is_tor"`
	Country        string `json:"country"`
	ISP            string `json:"isp"`
}

type IPVoidDomainReport struct {
	Detections     int    `json:"detections"`
	TotalEngines   int    `json:"total_engines"`
	DetectionRatio string `json:"detection_ratio"`
	RiskScore      int    `json:"risk_score"`
	DomainAge      int    `json:"domain_age"`
	ServerIP       string `json:"server_ip"`
}

func (r IPVoidIPReport) Flagged() bool     { return r.Detections > 0 }
func (r IPVoidDomainReport) Flagged() bool { return r.Detections > 0 }

func (p *IPVoidProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.Succeeded(IPVoidManualCheck{CheckURL: ipVoidManualIP, Message: ipVoidManualMessage})
	}

	payload, outcome, ok := p.fetch(ctx, "/iprep/v1/pay-as-you-go/", url.Values{"ip": {ip}})
	if !ok {
		return outcome
	}

	r := payload.Data.Report
	return domain.Succeeded(IPVoidIPReport{
		Detections:     r.Blacklists.Detections,
		TotalEngines:   r.Blacklists.Engines,
		DetectionRatio: engineRatio(r.Blacklists.Detections, r.Blacklists.Engines),
		RiskScore:      r.RiskScore.Result,
		IsProxy:        r.Anonymity.IsProxy,
		IsVPN:          r.Anonymity.IsVPN,
		IsTor:          r.Anonymity.IsTor,
		Country:        orUnknown(r.Information.CountryName),
		ISP:            orUnknown(r.Information.ISP),
	})
}

func (p *IPVoidProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.Succeeded(IPVoidManualCheck{CheckURL: ipVoidManualDomain, Message: ipVoidManualMessage})
	}

	payload, outcome, ok := p.fetch(ctx, "/domainbl/v1/pay-as-you-go/", url.Values{"host": {name}})
	if !ok {
		return outcome
	}

	r := payload.Data.Report
	return domain.Succeeded(IPVoidDomainReport{
		Detections:     r.Blacklists.Detections,
		TotalEngines:   r.Blacklists.Engines,
		DetectionRatio: engineRatio(r.Blacklists.Detections, r.Blacklists.Engines),
		RiskScore:      r.RiskScore.Result,
		DomainAge:      r.Server.DomainAgeDays,
		ServerIP:       orUnknown(r.Server.IP),
	})
}

func (p *IPVoidProvider) fetch(ctx context.Context, path string, query url.Values) (apiVoidResponse, domain.LookupOutcome, bool) {
	// APIVoid authenticates with a query parameter
	query.Set("key", p.apiKey)

	var payload apiVoidResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source: domain.SourceIPVoid,
		url:    p.baseURL + path,
		query:  query,
	}, &payload)

	return payload, outcome, ok
}

func engineRatio(detections, engines int) string {
	if engines <= 0 {
		return "0/0"
	}
	return detectionRatio(detections, engines)
}
