package provider

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const greyNoiseURL = "https://api.greynoise.io/v3"

type GreyNoiseProvider struct {
	client  Doer
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

func NewGreyNoiseProvider(client Doer, apiKey string, opts ...Option) *GreyNoiseProvider {
	o := buildOptions(greyNoiseURL, opts)
	return &GreyNoiseProvider{
		client:  orDefault(client),
		apiKey:  apiKey,
		baseURL: o.baseURL,
		logger:  o.logger,
	}
}

func (p *GreyNoiseProvider) Name() domain.SourceName {
	return domain.SourceGreyNoise
}

type greyNoiseResponse struct {
	Classification string `json:"classification"`
	Noise          bool   `json:"noise"`
	RIOT           bool   `json:"riot"`
	Name           string `json:"name"`
	LastSeen       string `json:"last_seen"`
}

type GreyNoiseReport struct {
	Classification string `json:"classification"` // benign, malicious or unknown
	Noise          bool   `json:"noise"`
	RIOT           bool   `json:"riot"`
	Name           string `json:"name"`
	LastSeen       string `json:"last_seen"`
}

func (r GreyNoiseReport) Flagged() bool {
	return r.Classification == "malicious"
}

// LookupIP uses the community endpoint.
func (p *GreyNoiseProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	if p.apiKey == "" {
		return domain.NotConfigured()
	}

	var payload greyNoiseResponse
	outcome, ok := fetchJSON(ctx, p.client, p.logger, call{
		source:  domain.SourceGreyNoise,
		url:     p.baseURL + "/community/" + url.PathEscape(ip),
		headers: map[string]string{"key": p.apiKey},
	}, &payload)
	if !ok {
		return outcome
	}

	classification := payload.Classification
	if classification == "" {
		classification = "unknown"
	}

	return domain.Succeeded(GreyNoiseReport{
		Classification: classification,
		Noise:          payload.Noise,
		RIOT:           payload.RIOT,
		Name:           orUnknown(payload.Name),
		LastSeen:       orUnknown(payload.LastSeen),
	})
}
