package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// DefaultTimeout is the per-call budget for every outbound source request.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a provider response is decoded.
const maxBodyBytes = 4 << 20

// Doer sends one HTTP request. *http.Client and *BreakerDoer satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient returns the client shared by the API-backed sources.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Option customizes a provider at construction time.
type Option func(*options)

type options struct {
	baseURL string
	logger  *slog.Logger
}

// WithBaseURL points a provider at a different endpoint, e.g. an httptest server.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(defaultBase string, opts []Option) options {
	o := options{baseURL: defaultBase, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func orDefault(doer Doer) Doer {
	if doer == nil {
		return http.DefaultClient
	}
	return doer
}

// call describes one outbound JSON request.
type call struct {
	source  domain.SourceName
	method  string
	url     string
	query   url.Values
	headers map[string]string
	body    io.Reader
}

// fetchJSON issues exactly one request and decodes a 200 response into out.
// ok is false when the returned outcome already describes a failure.
func fetchJSON(ctx context.Context, doer Doer, logger *slog.Logger, c call, out any) (outcome domain.LookupOutcome, ok bool) {
	method := c.method
	if method == "" {
		method = http.MethodGet
	}

	target := c.url
	if len(c.query) > 0 {
		target += "?" + c.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, c.body)
	if err != nil {
		return fail(logger, c.source, fmt.Errorf("failed to create request: %w", err)), false
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return fail(logger, c.source, err), false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("source returned non-200", "source", c.source, "status", resp.StatusCode)
		return domain.StatusFailure(resp.StatusCode), false
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fail(logger, c.source, fmt.Errorf("failed to decode %s json: %w", c.source, err)), false
	}

	return domain.LookupOutcome{}, true
}

func fail(logger *slog.Logger, source domain.SourceName, err error) domain.LookupOutcome {
	logger.Warn("source lookup error", "source", source, "error", err)
	return domain.Failed(err)
}

// detectionRatio renders "flagged/total".
func detectionRatio(flagged, total int) string {
	return fmt.Sprintf("%d/%d", flagged, total)
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	if items == nil {
		return []T{}
	}
	return items
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
