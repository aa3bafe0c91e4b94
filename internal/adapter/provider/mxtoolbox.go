package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// DefaultBlocklists are the DNSBL zones checked for IP addresses.
var DefaultBlocklists = []string{"zen.spamhaus.org", "bl.spamcop.net", "dnsbl.sorbs.net"}

const (
	mxManualCheck   = "Check manually on MXToolbox website"
	mxNotListed     = "Not listed on checked blacklists"
	mxDNSHealthNote = "Use MXToolbox website for detailed analysis"
	mxIPNote        = "Use MXToolbox website for detailed blacklist analysis"
)

// Resolver is the subset of *net.Resolver used for MX and DNSBL queries.
type Resolver interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// MXToolboxProvider answers the mail-infrastructure questions MXToolbox is used for
// (MX records, DNS blocklists) straight from DNS.
type MXToolboxProvider struct {
	resolver   Resolver
	blocklists []string
	logger     *slog.Logger
}

func NewMXToolboxProvider(resolver Resolver, blocklists []string, opts ...Option) *MXToolboxProvider {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if len(blocklists) == 0 {
		blocklists = DefaultBlocklists
	}
	o := buildOptions("", opts)
	return &MXToolboxProvider{
		resolver:   resolver,
		blocklists: blocklists,
		logger:     o.logger,
	}
}

func (p *MXToolboxProvider) Name() domain.SourceName {
	return domain.SourceMXToolbox
}

type MXToolboxDomainReport struct {
	MXRecords       string `json:"mx_records"`
	BlacklistStatus string `json:"blacklist_status"`
	DNSHealth       string `json:"dns_health"`
}

type MXToolboxIPReport struct {
	BlacklistStatus string   `json:"blacklist_status"`
	ListedOn        []string `json:"listed_on"`
	Note            string   `json:"note"`
}

func (r MXToolboxIPReport) Flagged() bool {
	return len(r.ListedOn) > 0
}

func (p *MXToolboxProvider) LookupDomain(ctx context.Context, name string) domain.LookupOutcome {
	status, _ := p.blocklistStatus(ctx, name)
	return domain.Succeeded(MXToolboxDomainReport{
		MXRecords:       p.mxRecords(ctx, name),
		BlacklistStatus: status,
		DNSHealth:       mxDNSHealthNote,
	})
}

func (p *MXToolboxProvider) LookupIP(ctx context.Context, ip string) domain.LookupOutcome {
	status, listed := p.blocklistStatus(ctx, ip)
	return domain.Succeeded(MXToolboxIPReport{
		BlacklistStatus: status,
		ListedOn:        listed,
		Note:            mxIPNote,
	})
}

func (p *MXToolboxProvider) mxRecords(ctx context.Context, name string) string {
	records, err := p.resolver.LookupMX(ctx, name)
	if err != nil {
		return "No MX records found: " + truncate(err.Error(), 50)
	}
	if len(records) == 0 {
		return "No MX records found"
	}

	hosts := make([]string, len(records))
	for i, mx := range records {
		hosts[i] = mx.Host
	}
	return strings.Join(hosts, ", ")
}

// blocklistStatus queries every DNSBL zone concurrently. Only IPv4 hosts can be checked.
func (p *MXToolboxProvider) blocklistStatus(ctx context.Context, host string) (string, []string) {
	reversed, ok := reverseIPv4(host)
	if !ok {
		return mxManualCheck, []string{}
	}

	var (
		mu       sync.Mutex
		listed   = []string{}
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, zone := range p.blocklists {
		g.Go(func() error {
			addrs, err := p.resolver.LookupHost(gctx, reversed+"."+zone)

			mu.Lock()
			defer mu.Unlock()

			var dnsErr *net.DNSError
			switch {
			case err == nil && listingAnswer(addrs):
				listed = append(listed, zone)
			case err == nil:
				// refusal codes from the zone operator, not a listing
			case errors.As(err, &dnsErr) && dnsErr.IsNotFound:
				// NXDOMAIN means not listed
			default:
				failures = append(failures, fmt.Errorf("%s: %w", zone, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(listed)
	if len(listed) > 0 {
		return "Listed on: " + strings.Join(listed, ", "), listed
	}
	if len(failures) == len(p.blocklists) {
		p.logger.Warn("blocklist checks failed", "source", domain.SourceMXToolbox, "host", host, "error", errors.Join(failures...))
		return "Check manually: " + truncate(failures[0].Error(), 30), listed
	}
	return mxNotListed, listed
}

// listingAnswer reports whether a DNSBL answer is a real listing. Answers in
// 127.255.255.0/24 are operator error codes (e.g. queries through public resolvers).
func listingAnswer(addrs []string) bool {
	for _, a := range addrs {
		if strings.HasPrefix(a, "127.") && !strings.HasPrefix(a, "127.255.255.") {
			return true
		}
	}
	return false
}

func reverseIPv4(host string) (string, bool) {
	ip := net.ParseIP(host)
	if ip == nil {
		return "", false
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0]), true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
