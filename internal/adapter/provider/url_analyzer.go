package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

const (
	browserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxRedirects      = 10
	maxExtractedURLs  = 20
	maxAnalyzedBodyKB = 2048
)

var embeddedURLPattern = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+[^\\s<>\"{}|\\\\^`\\[\\].,;!?]")

// noisyURLFragments filters analytics, CDN and static asset links out of extracted URLs.
var noisyURLFragments = []string{
	"google-analytics", "googleapis", "facebook.com/tr",
	"doubleclick", "jquery", "bootstrap", "cloudflare",
	".css", ".js", ".png", ".jpg", ".gif", ".woff",
}

// URLAnalyzer fetches a URL, records its redirect chain and lists links found in the final page.
type URLAnalyzer struct {
	client *http.Client
	logger *slog.Logger
}

// NewURLAnalyzer copies client so it can install its own redirect policy.
func NewURLAnalyzer(client *http.Client, opts ...Option) *URLAnalyzer {
	c := &http.Client{Timeout: DefaultTimeout}
	if client != nil {
		*c = *client
	}
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	o := buildOptions("", opts)
	return &URLAnalyzer{client: c, logger: o.logger}
}

func (a *URLAnalyzer) Name() domain.SourceName {
	return domain.SourceURLAnalysis
}

type RedirectHop struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

type URLAnalysisReport struct {
	FinalURL           string        `json:"final_url"`
	FinalDomain        string        `json:"final_domain"`
	CrossDomain        bool          `json:"cross_domain"`
	HasRedirects       bool          `json:"has_redirects"`
	RedirectCount      int           `json:"redirect_count"`
	RedirectChain      []RedirectHop `json:"redirect_chain"`
	ExtractedURLsCount int           `json:"extracted_urls_count"`
	ExtractedURLs      []string      `json:"extracted_urls"`
	StatusCode         int           `json:"status_code"`
}

func (a *URLAnalyzer) AnalyzeURL(ctx context.Context, rawURL string) domain.LookupOutcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fail(a.logger, domain.SourceURLAnalysis, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return fail(a.logger, domain.SourceURLAnalysis, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.StatusFailure(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnalyzedBodyKB<<10))
	if err != nil && !errors.Is(err, io.EOF) {
		return fail(a.logger, domain.SourceURLAnalysis, fmt.Errorf("failed to read body: %w", err))
	}

	chain := redirectChain(resp)
	extracted := extractURLs(string(body))
	finalDomain := registrableHost(resp.Request.URL.Hostname())

	return domain.Succeeded(URLAnalysisReport{
		FinalURL:           resp.Request.URL.String(),
		FinalDomain:        finalDomain,
		CrossDomain:        finalDomain != registrableHost(req.URL.Hostname()),
		HasRedirects:       len(chain) > 0,
		RedirectCount:      len(chain),
		RedirectChain:      chain,
		ExtractedURLsCount: len(extracted),
		ExtractedURLs:      extracted,
		StatusCode:         resp.StatusCode,
	})
}

// redirectChain walks back from the final response through every redirect response.
func redirectChain(final *http.Response) []RedirectHop {
	var hops []RedirectHop
	for r := final.Request.Response; r != nil; r = r.Request.Response {
		hops = append(hops, RedirectHop{URL: r.Request.URL.String(), StatusCode: r.StatusCode})
	}

	// oldest first
	for i, j := 0, len(hops)-1; i < j; i, j = i+1, j-1 {
		hops[i], hops[j] = hops[j], hops[i]
	}
	if hops == nil {
		hops = []RedirectHop{}
	}
	return hops
}

func extractURLs(body string) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, u := range embeddedURLPattern.FindAllString(body, -1) {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if isNoisyURL(u) {
			continue
		}
		out = append(out, u)
		if len(out) == maxExtractedURLs {
			break
		}
	}
	return out
}

func isNoisyURL(u string) bool {
	lower := strings.ToLower(u)
	for _, fragment := range noisyURLFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func registrableHost(host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registered
}
