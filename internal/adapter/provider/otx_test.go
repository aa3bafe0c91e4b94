package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

func TestOTXLookupIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indicators/IPv4/1.2.3.4/general" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-OTX-API-KEY") != "otx-key" {
			t.Errorf("missing OTX key header")
		}
		fmt.Fprint(w, `{
			"pulse_info": {"count": 7, "pulses": [
				{"name": "Botnet C2", "created": "2025-01-01", "tags": ["c2", "botnet", "mirai", "iot"]},
				{"name": "", "tags": []},
				{"name": "p3"}, {"name": "p4"}, {"name": "p5"}, {"name": "p6"}
			]},
			"country_name": "Brazil",
			"country_code": "BR",
			"asn": "AS123 Example",
			"reputation": 2,
			"latitude": -23.5,
			"longitude": -46.6
		}`)
	}))
	defer server.Close()

	p := NewOTXProvider(server.Client(), "otx-key", WithBaseURL(server.URL))
	outcome := p.LookupIP(context.Background(), "1.2.3.4")
	if !outcome.Success {
		t.Fatalf("lookup failed: %s", outcome.Error)
	}

	report := outcome.Data.(OTXIPReport)
	if report.PulseCount != 7 || len(report.Pulses) != 5 {
		t.Errorf("pulse count %d with %d pulses, want 7 with 5", report.PulseCount, len(report.Pulses))
	}
	if diff := cmp.Diff([]string{"c2", "botnet", "mirai"}, report.Pulses[0].Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if report.Pulses[1].Name != "Unknown" || report.Pulses[1].Created != "Unknown" {
		t.Errorf("empty pulse not defaulted: %+v", report.Pulses[1])
	}
	if report.Country != "Brazil" || report.City != "Unknown" || report.Latitude != -23.5 {
		t.Errorf("geo fields wrong: %+v", report)
	}
	if !report.Flagged() {
		t.Errorf("indicator in pulses should be flagged")
	}
}

func TestOTXPathsPerType(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		fmt.Fprint(w, `{"pulse_info": {"count": 0}}`)
	}))
	defer server.Close()

	p := NewOTXProvider(server.Client(), "otx-key", WithBaseURL(server.URL))
	ctx := context.Background()

	domainOutcome := p.LookupDomain(ctx, "evil.com")
	urlOutcome := p.LookupURL(ctx, "http://evil.com/x")
	hashOutcome := p.LookupHash(ctx, "d41d8cd98f00b204e9800998ecf8427e")

	expected := []string{
		"/indicators/domain/evil.com/general",
		"/indicators/url/http://evil.com/x/general",
		"/indicators/file/d41d8cd98f00b204e9800998ecf8427e/general",
	}
	if diff := cmp.Diff(expected, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(domain.Succeeded(OTXPulseReport{}), hashOutcome); diff != "" {
		t.Errorf("hash outcome mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(domain.Succeeded(OTXPulseReport{}), urlOutcome); diff != "" {
		t.Errorf("url outcome mismatch (-want +got):\n%s", diff)
	}

	d := domainOutcome.Data.(OTXDomainReport)
	if d.AlexaRank != "Unknown" || d.Whois != "N/A" || d.Sections == nil || d.Pulses == nil {
		t.Errorf("domain defaults wrong: %+v", d)
	}
}

func TestOTXNotConfigured(t *testing.T) {
	p := NewOTXProvider(nil, "")
	if outcome := p.LookupHash(context.Background(), "abc"); outcome.Error != domain.ErrMissingAPIKey {
		t.Errorf("outcome = %+v", outcome)
	}
}
