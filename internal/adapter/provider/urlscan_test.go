package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

func TestURLScanLookupURLSubmitsPrivateScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/scan/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("API-Key") != "us-key" {
			t.Errorf("missing API-Key header")
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if body["url"] != "https://bad.site/path" || body["visibility"] != "private" {
			t.Errorf("unexpected submission %v", body)
		}

		fmt.Fprint(w, `{"uuid": "abc-123", "result": "https://urlscan.io/result/abc-123/", "visibility": "private"}`)
	}))
	defer server.Close()

	p := NewURLScanProvider(server.Client(), "us-key", WithBaseURL(server.URL))
	outcome := p.LookupURL(context.Background(), "https://bad.site/path")

	expected := domain.Succeeded(URLScanSubmission{
		ResultURL:  "https://urlscan.io/result/abc-123/",
		ScanID:     "abc-123",
		Message:    "Scan submitted successfully. Results will be available shortly.",
		Visibility: "private",
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestURLScanLookupDomain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "domain:evil.com" {
			t.Errorf("query = %q", q)
		}
		fmt.Fprint(w, `{"total": 42, "results": [
			{"page": {"url": "https://evil.com/login", "country": "RU", "ip": "5.6.7.8"},
			 "verdicts": {"overall": {"malicious": true, "score": 100, "categories": ["phishing"]}},
			 "task": {"time": "2025-01-01T00:00:00Z"}},
			{"page": {}}
		]}`)
	}))
	defer server.Close()

	p := NewURLScanProvider(server.Client(), "us-key", WithBaseURL(server.URL))
	outcome := p.LookupDomain(context.Background(), "evil.com")

	expected := domain.Succeeded(URLScanDomainReport{
		TotalResults: 42,
		HasResults:   true,
		RecentScans:  2,
		ScanDetails: []URLScanScan{
			{
				URL: "https://evil.com/login", Country: "RU", Server: "Unknown", IP: "5.6.7.8", ASN: "Unknown",
				Malicious: true, Score: 100, Categories: []string{"phishing"}, ScanTime: "2025-01-01T00:00:00Z",
			},
			{
				URL: "N/A", Country: "Unknown", Server: "Unknown", IP: "Unknown", ASN: "Unknown",
				Categories: []string{}, ScanTime: "Unknown",
			},
		},
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if !outcome.Data.(URLScanDomainReport).Flagged() {
		t.Errorf("domain with a malicious scan should be flagged")
	}
}

func TestURLScanNotConfigured(t *testing.T) {
	p := NewURLScanProvider(nil, "")
	for _, outcome := range []domain.LookupOutcome{
		p.LookupURL(context.Background(), "http://x.com"),
		p.LookupDomain(context.Background(), "x.com"),
	} {
		if diff := cmp.Diff(domain.NotConfigured(), outcome); diff != "" {
			t.Errorf("outcome mismatch (-want +got):\n%s", diff)
		}
	}
}
