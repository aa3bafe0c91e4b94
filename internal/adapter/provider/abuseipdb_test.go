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

func TestAbuseIPDBLookupIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/check" || q.Get("ipAddress") != "1.2.3.4" || q.Get("maxAgeInDays") != "90" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Key") != "abuse-key" || r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing headers: %v", r.Header)
		}
		fmt.Fprint(w, `{"data": {
			"abuseConfidenceScore": 87,
			"countryCode": "CN",
			"usageType": "Data Center/Web Hosting/Transit",
			"isp": "Example Hosting",
			"isWhitelisted": false,
			"totalReports": 112,
			"numDistinctUsers": 31
		}}`)
	}))
	defer server.Close()

	p := NewAbuseIPDBProvider(server.Client(), "abuse-key", WithBaseURL(server.URL))
	outcome := p.LookupIP(context.Background(), "1.2.3.4")

	expected := domain.Succeeded(AbuseIPDBReport{
		AbuseConfidenceScore: 87,
		CountryCode:          "CN",
		UsageType:            "Data Center/Web Hosting/Transit",
		ISP:                  "Example Hosting",
		Domain:               "Unknown",
		TotalReports:         112,
		NumDistinctUsers:     31,
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestAbuseIPDBReportFlagged(t *testing.T) {
	tests := []struct {
		name     string
		report   AbuseIPDBReport
		expected bool
	}{
		{"High score", AbuseIPDBReport{AbuseConfidenceScore: 90}, true},
		{"At threshold", AbuseIPDBReport{AbuseConfidenceScore: 50}, true},
		{"Low score", AbuseIPDBReport{AbuseConfidenceScore: 10}, false},
		{"Whitelisted", AbuseIPDBReport{AbuseConfidenceScore: 100, IsWhitelisted: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.Flagged(); got != tt.expected {
				t.Errorf("Flagged() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAbuseIPDBNotConfiguredAndStatus(t *testing.T) {
	if outcome := NewAbuseIPDBProvider(nil, "").LookupIP(context.Background(), "1.2.3.4"); outcome.Error != domain.ErrMissingAPIKey {
		t.Errorf("outcome = %+v, want not configured", outcome)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewAbuseIPDBProvider(server.Client(), "bad-key", WithBaseURL(server.URL))
	if diff := cmp.Diff(domain.StatusFailure(401), p.LookupIP(context.Background(), "1.2.3.4")); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}
