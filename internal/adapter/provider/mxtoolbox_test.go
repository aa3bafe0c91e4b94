package provider

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

type fakeResolver struct {
	mu      sync.Mutex
	mx      map[string][]*net.MX
	hosts   map[string][]string
	fail    error
	queries []string
}

func (r *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	records, ok := r.mx[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func (r *fakeResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	r.mu.Lock()
	r.queries = append(r.queries, host)
	r.mu.Unlock()

	if r.fail != nil {
		return nil, r.fail
	}
	addrs, ok := r.hosts[host]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
	}
	return addrs, nil
}

func TestMXToolboxLookupIP(t *testing.T) {
	zones := []string{"zen.example", "bl.example", "refuse.example"}

	tests := []struct {
		name     string
		hosts    map[string][]string
		fail     error
		expected MXToolboxIPReport
	}{
		{
			name: "Listed on two zones",
			hosts: map[string][]string{
				"4.3.2.1.zen.example": {"127.0.0.2"},
				"4.3.2.1.bl.example":  {"127.0.0.4", "127.0.0.10"},
			},
			expected: MXToolboxIPReport{
				BlacklistStatus: "Listed on: bl.example, zen.example",
				ListedOn:        []string{"bl.example", "zen.example"},
				Note:            mxIPNote,
			},
		},
		{
			name:  "Not listed anywhere",
			hosts: map[string][]string{},
			expected: MXToolboxIPReport{
				BlacklistStatus: mxNotListed,
				ListedOn:        []string{},
				Note:            mxIPNote,
			},
		},
		{
			name: "Operator refusal code is not a listing",
			hosts: map[string][]string{
				"4.3.2.1.refuse.example": {"127.255.255.254"},
			},
			expected: MXToolboxIPReport{
				BlacklistStatus: mxNotListed,
				ListedOn:        []string{},
				Note:            mxIPNote,
			},
		},
		{
			name: "Every query fails",
			fail: errors.New("i/o timeout while contacting resolver"),
			expected: MXToolboxIPReport{
				BlacklistStatus: "Check manually: zen.example: i/o timeout wh",
				ListedOn:        []string{},
				Note:            mxIPNote,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver := &fakeResolver{hosts: tt.hosts, fail: tt.fail}
			p := NewMXToolboxProvider(resolver, zones)

			outcome := p.LookupIP(context.Background(), "1.2.3.4")
			if !outcome.Success {
				t.Fatalf("lookup failed: %s", outcome.Error)
			}

			got := outcome.Data.(MXToolboxIPReport)
			if tt.fail != nil {
				// the failing zone reported first depends on scheduling
				if !strings.HasPrefix(got.BlacklistStatus, "Check manually: ") {
					t.Errorf("BlacklistStatus = %q", got.BlacklistStatus)
				}
				return
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("report mismatch (-want +got):\n%s", diff)
			}
			if got.Flagged() != (len(tt.expected.ListedOn) > 0) {
				t.Errorf("Flagged() = %v", got.Flagged())
			}
			if len(resolver.queries) != len(zones) {
				t.Errorf("made %d DNSBL queries, want %d", len(resolver.queries), len(zones))
			}
		})
	}
}

func TestMXToolboxLookupDomain(t *testing.T) {
	resolver := &fakeResolver{
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx1.example.com.", Pref: 10}, {Host: "mx2.example.com.", Pref: 20}},
		},
	}
	p := NewMXToolboxProvider(resolver, nil)

	outcome := p.LookupDomain(context.Background(), "example.com")
	expected := domain.Succeeded(MXToolboxDomainReport{
		MXRecords:       "mx1.example.com., mx2.example.com.",
		BlacklistStatus: mxManualCheck,
		DNSHealth:       mxDNSHealthNote,
	})
	if diff := cmp.Diff(expected, outcome); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
	if len(resolver.queries) != 0 {
		t.Errorf("domains must not be checked against IP blocklists, got queries %v", resolver.queries)
	}

	missing := p.LookupDomain(context.Background(), "nomail.example").Data.(MXToolboxDomainReport)
	if !strings.HasPrefix(missing.MXRecords, "No MX records found") {
		t.Errorf("MXRecords = %q", missing.MXRecords)
	}
}

func TestReverseIPv4(t *testing.T) {
	tests := []struct {
		host     string
		expected string
		ok       bool
	}{
		{"1.2.3.4", "4.3.2.1", true},
		{"192.168.10.200", "200.10.168.192", true},
		{"::1", "", false},
		{"example.com", "", false},
	}

	for _, tt := range tests {
		got, ok := reverseIPv4(tt.host)
		if got != tt.expected || ok != tt.ok {
			t.Errorf("reverseIPv4(%q) = %q, %v; want %q, %v", tt.host, got, ok, tt.expected, tt.ok)
		}
	}
}
