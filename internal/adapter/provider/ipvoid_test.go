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

func TestIPVoidWithoutKeyLinksManualCheck(t *testing.T) {
	p := NewIPVoidProvider(nil, "")

	ipOutcome := p.LookupIP(context.Background(), "1.2.3.4")
	expected := domain.Succeeded(IPVoidManualCheck{
		CheckURL: "https://www.ipvoid.com/ip-blacklist-check/",
		Message:  "IPVoid API key not configured. Visit the link to check manually.",
	})
	if diff := cmp.Diff(expected, ipOutcome); diff != "" {
		t.Errorf("ip outcome mismatch (-want +got):\n%s", diff)
	}

	domainOutcome := p.LookupDomain(context.Background(), "evil.com")
	if !domainOutcome.Success || domainOutcome.Data.(IPVoidManualCheck).CheckURL != "https://www.ipvoid.com/domain-reputation-check/" {
		t.Errorf("domain outcome = %+v", domainOutcome)
	}
}

func TestIPVoidLookupIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/iprep/v1/pay-as-you-go/" || q.Get("key") != "iv-key" || q.Get("ip") != "1.2.3.4" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, `{"data": {"report": {
			"blacklists": {"detections": 4, "engines": 80},
			"risk_score": {"result": 100},
			"anonymity": {"is_proxy": false, "is_vpn": true, "is_tor": false},
			"information": {"country_name": "Netherlands", "isp": "Example BV"}
		}}}`)
	}))
	defer server.Close()

	p := NewIPVoidProvider(server.Client(), "iv-key", WithBaseURL(server.URL))
	outcome := p.LookupIP(context.Background(), "1.2.3.4")

	expected := domain.Succeeded(IPVoidIPReport{
		Detections:     4,
		TotalEngines:   80,
		DetectionRatio: "4/80",
		RiskScore:      100,
		IsVPN:          true,
		Country:        "Netherlands",
		ISP:            "Example BV",
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestIPVoidLookupDomainNoEngines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("host") != "evil.com" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"data": {"report": {"server": {"domain_age_days": 3}}}}`)
	}))
	defer server.Close()

	p := NewIPVoidProvider(server.Client(), "iv-key", WithBaseURL(server.URL))
	outcome := p.LookupDomain(context.Background(), "evil.com")

	expected := domain.Succeeded(IPVoidDomainReport{
		DetectionRatio: "0/0",
		DomainAge:      3,
		ServerIP:       "Unknown",
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}
