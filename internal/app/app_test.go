package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hive-corporation/iocscope/internal/adapter/metrics"
	"github.com/hive-corporation/iocscope/internal/adapter/provider"
	"github.com/hive-corporation/iocscope/internal/config"
	"github.com/hive-corporation/iocscope/internal/core/domain"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildSourcesHonorsOverrides(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("x-apikey") != "vt-key" {
			t.Errorf("missing api key")
		}
		w.Write([]byte(`{"data": {"attributes": {"last_analysis_stats": {"malicious": 1}}}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIKeys.VirusTotal = "vt-key"
	cfg.CircuitBreakerEnabled = true
	cfg.Sources = map[domain.SourceName]config.SourceSettings{
		domain.SourceVirusTotal: {BaseURL: server.URL},
		domain.SourceOTX:        {Enabled: boolPtr(false)},
	}

	sources := BuildSources(cfg, nil)

	if _, ok := sources.OTX.(provider.DisabledSource); !ok {
		t.Errorf("OTX = %T, want DisabledSource", sources.OTX)
	}
	if _, ok := sources.VirusTotal.(*provider.VirusTotalProvider); !ok {
		t.Fatalf("VirusTotal = %T", sources.VirusTotal)
	}

	outcome := sources.VirusTotal.LookupHash(context.Background(), "d41d8cd98f00b204e9800998ecf8427e")
	if !outcome.Success || hits != 1 {
		t.Errorf("outcome = %+v, hits = %d", outcome, hits)
	}
}

func TestBuildInMemory(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, name := range domain.SourceOrder {
		cfg.Sources[name] = config.SourceSettings{Enabled: boolPtr(false)}
	}

	m := metrics.New(prometheus.NewRegistry())
	a, err := Build(context.Background(), cfg, m, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer a.Close()

	report, err := a.Service.Lookup(context.Background(), "d41d8cd98f00b204e9800998ecf8427e")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	result := report.Results[0]
	if result.Summary.Queried != 2 || result.Summary.Failed != 2 {
		t.Errorf("summary = %+v", result.Summary)
	}
	if got := result.Sources[domain.SourceVirusTotal].Error; got != "Source disabled" {
		t.Errorf("virustotal error = %q", got)
	}

	stats, err := a.Service.Stats(context.Background())
	if err != nil || stats.TotalLookups != 1 {
		t.Errorf("stats = %+v, %v", stats, err)
	}
}

func TestBuildHonorsLongerSourceTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(`{"data": {"attributes": {"last_analysis_stats": {"undetected": 70}}}}`))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.APIKeys.VirusTotal = "vt-key"
	cfg.SourceTimeout = 100 * time.Millisecond
	for _, name := range domain.SourceOrder {
		cfg.Sources[name] = config.SourceSettings{Enabled: boolPtr(false)}
	}
	cfg.Sources[domain.SourceVirusTotal] = config.SourceSettings{BaseURL: server.URL, Timeout: 2 * time.Second}

	a, err := Build(context.Background(), cfg, metrics.New(prometheus.NewRegistry()), nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer a.Close()

	report, err := a.Service.Lookup(context.Background(), "d41d8cd98f00b204e9800998ecf8427e")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if vt := report.Results[0].Sources[domain.SourceVirusTotal]; !vt.Success {
		t.Errorf("virustotal outcome = %+v, want success within its 2s override", vt)
	}
}

func TestSourceTimeouts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sources[domain.SourceVirusTotal] = config.SourceSettings{Timeout: 5 * time.Second}
	cfg.Sources[domain.SourceOTX] = config.SourceSettings{Enabled: boolPtr(false)}

	expected := map[domain.SourceName]time.Duration{domain.SourceVirusTotal: 5 * time.Second}
	if diff := cmp.Diff(expected, SourceTimeouts(cfg)); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}
}
