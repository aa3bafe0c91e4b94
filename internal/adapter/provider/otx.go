package provider

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const otxURL = "https://otx.alienvault.com/api/v1"

type OTXProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewOTXProvider(client Doer, apiKey string, opts ...Option) *OTXProvider {
	o := buildOptions(otxURL, opts)
	return &OTXProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *OTXProvider) Name() domain.SourceName {
	return domain.SourceOTX
}

// otxGeneral is the "general" section OTX returns for every indicator type.
type otxGeneral struct {
	PulseInfo struct {
		Count  int        `json:"count"`
		Pulses []otxPulse `json:"pulses"`
	} `json:"pulse_info"`

	// IPv4 only
	CountryName   string  `json:"country_name"`
	CountryCode   string  `json:"country_code"`
	City          string  `json:"city"`
	Region        string  `json:"region"`
	ASN           string  `json:"asn"`
	Organization  string  `json:"organization"`
	Reputation    int     `json:"reputation"`
	ContinentCode string  `json:"continent_code"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`

	// domain only
	Alexa         string         `json:"alexa"`
	Whois         string         `json:"whois"`
	Sections      []string       `json:"sections"`
	BaseIndicator map[string]any `json:"base_indicator"`
}

type otxPulse struct {
	Name    string   `json:"name"`
	Created string   `json:"created"`
	Tags    []string `json:"tags"`
}

// OTXPulse is a trimmed pulse: name, creation date and up to three tags.
type OTXPulse struct {
	Name    string   `json:"name"`
	Created string   `json:"created"`
	Tags    []string `json:"tags"`
}

// OTXPulseReport is returned for URLs and hashes.
type OTXPulseReport struct {
	PulseCount int `json:"pulse_count"`
}

type OTXIPReport struct {
	PulseCount   int        `json:"pulse_count"`
	Pulses       []OTXPulse `json:"pulses"`
	Country      string     `json:"country"`
	CountryCode  string     `json:"country_code"`
	City         string     `json:"city"`
	Region       string     `json:"region"`
	ASN          string     `json:"asn"`
	Organization string     `json:"organization"`
	Reputation   int        `json:"reputation"`
	Continent    string     `json:"continent"`
	Latitude     float64    `json:"latitude"`
	Longitude    float64    `json:"longitude"`
}

type OTXDomainReport struct {
	PulseCount    int            `json:"pulse_count"`
	Pulses        []OTXPulse     `json:"pulses"`
	AlexaRank     string         `json:"alexa_rank"`
	Whois         string         `json:"whois"`
	Sections      []string       `json:"sections"`
	BaseIndicator map[string]any `json:"base_indicator"`
}

// An indicator referenced by at least one pulse is treated as flagged.
func (r OTXPulseReport) Flagged() bool  { return r.PulseCount > 0 }
func (r OTXIPReport) Flagged() bool     { return r.PulseCount > 0 }
func (r OTXDomainReport) Flagged() bool { return r.PulseCount > 0 }

func (p *OTXProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	data, outcome, ok := p.general(ctx, "IPv4", url.PathEscape(ip))
	if !ok {
		return outcome
	}

	return domain.Succeeded(OTXIPReport{
		PulseCount:   data.PulseInfo.Count,
		Pulses:       trimPulses(data.PulseInfo.Pulses),
		Country:      orUnknown(data.CountryName),
		CountryCode:  orUnknown(data.CountryCode),
		City:         orUnknown(data.City),
		Region:       orUnknown(data.Region),
		ASN:          orUnknown(data.ASN),
		Organization: orUnknown(data.Organization),
		Reputation:   data.Reputation,
		Continent:    orUnknown(data.ContinentCode),
		Latitude:     data.Latitude,
		Longitude:    data.Longitude,
	})
}

func (p *OTXProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	data, outcome, ok := p.general(ctx, "domain", url.PathEscape(name))
	if !ok {
		return outcome
	}

	sections := data.Sections
	if sections == nil {
		sections = []string{}
	}
	base := data.BaseIndicator
	if base == nil {
		base = map[string]any{}
	}

	return domain.Succeeded(OTXDomainReport{
		PulseCount:    data.PulseInfo.Count,
		Pulses:        trimPulses(data.PulseInfo.Pulses),
		AlexaRank:     orUnknown(data.Alexa),
		Whois:         orNA(data.Whois),
		Sections:      sections,
		BaseIndicator: base,
	})
}

// LookupURL sends the URL unescaped in the path, which is what the OTX API expects.
func (p *OTXProvider) LookupURL(ctx context.Context, rawURL string) domain.LookupOutcome {
	data, outcome, ok := p.general(ctx, "url", rawURL)
	if !ok {
		return outcome
	}
	return domain.Succeeded(OTXPulseReport{PulseCount: data.PulseInfo.Count})
}

func (p *OTXProvider) LookupHash(ctx context.Context, hash string) domain.LookupOutcome {
	data, outcome, ok := p.general(ctx, "file", url.PathEscape(hash))
	if !ok {
		return outcome
	}
	return domain.Succeeded(OTXPulseReport{PulseCount: data.PulseInfo.Count})
}

func (p *OTXProvider) general(ctx context.Context, section, indicator string) (otxGeneral, domain.LookupOutcome, bool) {
	if p.apiKey == "" {
		return otxGeneral{}, domain.NotConfigured(), false
	}

	var data otxGeneral
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source: domain.SourceOTX,
		url:    p.baseURL + "/indicators/" + section + "/" + indicator + "/general",
		// OTX expects the key in a header
		headers: map[string]string{"X-OTX-API-KEY": p.apiKey},
	}, &data)

	return data, outcome, ok
}

func trimPulses(pulses []otxPulse) []OTXPulse {
	out := []OTXPulse{}
	for _, pulse := range firstN(pulses, 5) {
		out = append(out, OTXPulse{
			Name:    orUnknown(pulse.Name),
			Created: orUnknown(pulse.Created),
			Tags:    firstN(pulse.Tags, 3),
		})
	}
	return out
}
