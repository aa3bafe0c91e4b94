package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"

	"github.com/hive-corporation/iocscope/internal/core/domain"
	"github.com/hive-corporation/iocscope/internal/core/ports"
)

const tracerName = "github.com/hive-corporation/iocscope/internal/core/service"

// MultiLookup is implemented by sources that answer for every indicator family.
type MultiLookup interface {
	ports.IPLookup
	ports.DomainLookup
	ports.URLLookup
	ports.HashLookup
}

// HostLookup is implemented by sources that answer for IPs and domains.
type HostLookup interface {
	ports.IPLookup
	ports.DomainLookup
}

// WebLookup is implemented by sources that answer for domains and URLs.
type WebLookup interface {
	ports.DomainLookup
	ports.URLLookup
}

// Sources holds one adapter per external service.
type Sources struct {
	VirusTotal  MultiLookup
	AbuseIPDB   ports.IPLookup
	URLScan     WebLookup
	OTX         MultiLookup
	GreyNoise   ports.IPLookup
	Whois       HostLookup
	MXToolbox   HostLookup
	IPVoid      HostLookup
	URLAnalyzer ports.URLAnalyzer
}

// Aggregator fans one indicator out to the sources that understand its type.
type Aggregator struct {
	sources  Sources
	timeout  time.Duration
	timeouts map[domain.SourceName]time.Duration
	recorder ports.SourceRecorder
	tracer   trace.Tracer
	logger   *slog.Logger
}

type AggregatorOption func(*Aggregator)

// WithSourceTimeout bounds each individual source call. Zero disables the extra bound.
func WithSourceTimeout(d time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.timeout = d }
}

// WithSourceTimeouts overrides the call bound for individual sources. Sources missing
// from the map keep the WithSourceTimeout value.
func WithSourceTimeouts(overrides map[domain.SourceName]time.Duration) AggregatorOption {
	return func(a *Aggregator) { a.timeouts = overrides }
}

func WithRecorder(r ports.SourceRecorder) AggregatorOption {
	return func(a *Aggregator) { a.recorder = r }
}

func WithLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = l }
}

func NewAggregator(sources Sources, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		sources: sources,
		timeout: 10 * time.Second,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type route struct {
	name domain.SourceName
	call func(ctx context.Context) domain.LookupOutcome
}

// routes is the static routing table.
func (a *Aggregator) routes(value string, typ domain.IndicatorType) []route {
	s := a.sources

	switch typ {
	case domain.IPv4:
		return []route{
			{domain.SourceVirusTotal, func(ctx context.Context) domain.LookupOutcome { return s.VirusTotal.LookupIP(ctx, value) }},
			{domain.SourceAbuseIPDB, func(ctx context.Context) domain.LookupOutcome { return s.AbuseIPDB.LookupIP(ctx, value) }},
			{domain.SourceGreyNoise, func(ctx context.Context) domain.LookupOutcome { return s.GreyNoise.LookupIP(ctx, value) }},
			{domain.SourceOTX, func(ctx context.Context) domain.LookupOutcome { return s.OTX.LookupIP(ctx, value) }},
			{domain.SourceWhois, func(ctx context.Context) domain.LookupOutcome { return s.Whois.LookupIP(ctx, value) }},
			{domain.SourceMXToolbox, func(ctx context.Context) domain.LookupOutcome { return s.MXToolbox.LookupIP(ctx, value) }},
			{domain.SourceIPVoid, func(ctx context.Context) domain.LookupOutcome { return s.IPVoid.LookupIP(ctx, value) }},
		}
	case domain.Domain:
		return []route{
			{domain.SourceVirusTotal, func(ctx context.Context) domain.LookupOutcome { return s.VirusTotal.LookupDomain(ctx, value) }},
			{domain.SourceURLScan, func(ctx context.Context) domain.LookupOutcome { return s.URLScan.LookupDomain(ctx, value) }},
			{domain.SourceOTX, func(ctx context.Context) domain.LookupOutcome { return s.OTX.LookupDomain(ctx, value) }},
			{domain.SourceWhois, func(ctx context.Context) domain.LookupOutcome { return s.Whois.LookupDomain(ctx, value) }},
			{domain.SourceMXToolbox, func(ctx context.Context) domain.LookupOutcome { return s.MXToolbox.LookupDomain(ctx, value) }},
			{domain.SourceIPVoid, func(ctx context.Context) domain.LookupOutcome { return s.IPVoid.LookupDomain(ctx, value) }},
		}
	case domain.URL:
		return []route{
			{domain.SourceVirusTotal, func(ctx context.Context) domain.LookupOutcome { return s.VirusTotal.LookupURL(ctx, value) }},
			{domain.SourceURLScan, func(ctx context.Context) domain.LookupOutcome { return s.URLScan.LookupURL(ctx, value) }},
			{domain.SourceOTX, func(ctx context.Context) domain.LookupOutcome { return s.OTX.LookupURL(ctx, value) }},
			{domain.SourceURLAnalysis, func(ctx context.Context) domain.LookupOutcome { return s.URLAnalyzer.AnalyzeURL(ctx, value) }},
		}
	case domain.MD5, domain.SHA1, domain.SHA256:
		return []route{
			{domain.SourceVirusTotal, func(ctx context.Context) domain.LookupOutcome { return s.VirusTotal.LookupHash(ctx, value) }},
			{domain.SourceOTX, func(ctx context.Context) domain.LookupOutcome { return s.OTX.LookupHash(ctx, value) }},
		}
	case domain.Email:
		mailDomain := EmailDomain(value)
		registered := RegistrableDomain(mailDomain)
		return []route{
			{domain.SourceWhois, func(ctx context.Context) domain.LookupOutcome { return s.Whois.LookupDomain(ctx, registered) }},
			{domain.SourceMXToolbox, func(ctx context.Context) domain.LookupOutcome { return s.MXToolbox.LookupDomain(ctx, mailDomain) }},
		}
	default:
		return nil
	}
}

// RoutedSources lists the source names an indicator of the given type is sent to.
func (a *Aggregator) RoutedSources(typ domain.IndicatorType) []domain.SourceName {
	routes := a.routes("", typ)
	if len(routes) == 0 {
		return []domain.SourceName{domain.SourceError}
	}
	names := make([]domain.SourceName, len(routes))
	for i, r := range routes {
		names[i] = r.name
	}
	return names
}

// Lookup queries every source routed for typ concurrently and waits for all of them.
// It never returns an error: panics, failures and cancellation all end up as failure
// outcomes under the source's own key. When ctx is done before every source has answered,
// Lookup returns right away and the missing sources report ctx.Err().
func (a *Aggregator) Lookup(ctx context.Context, value string, typ domain.IndicatorType) domain.AggregatedResult {
	result := domain.AggregatedResult{
		Indicator: value,
		Type:      typ,
		Sources:   make(map[domain.SourceName]domain.LookupOutcome),
	}

	routes := a.routes(value, typ)
	if len(routes) == 0 {
		result.Sources[domain.SourceError] = domain.FailedMessage("Unsupported IOC type: %s", typ)
		return result
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, r := range routes {
		g.Go(func() error {
			outcome := a.call(ctx, r, value, typ)
			mu.Lock()
			result.Sources[r.name] = outcome
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		return result
	case <-ctx.Done():
	}

	// abandoned calls keep running until their own timeout; their late writes go to the
	// live map, so hand back a copy
	mu.Lock()
	defer mu.Unlock()
	snapshot := domain.AggregatedResult{
		Indicator: value,
		Type:      typ,
		Sources:   make(map[domain.SourceName]domain.LookupOutcome, len(routes)),
	}
	for _, r := range routes {
		if outcome, ok := result.Sources[r.name]; ok {
			snapshot.Sources[r.name] = outcome
		} else {
			snapshot.Sources[r.name] = domain.Failed(ctx.Err())
		}
	}
	return snapshot
}

func (a *Aggregator) call(ctx context.Context, r route, value string, typ domain.IndicatorType) (outcome domain.LookupOutcome) {
	ctx, span := a.tracer.Start(ctx, "source."+string(r.name),
		trace.WithAttributes(
			attribute.String("ioc.type", typ.String()),
			attribute.String("ioc.source", string(r.name)),
		))
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			outcome = domain.FailedMessage("panic in %s: %v", r.name, rec)
		}

		if outcome.Success {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, outcome.Error)
			a.logger.Warn("source lookup failed",
				"source", r.name,
				"type", typ,
				"ioc", value,
				"error", outcome.Error,
			)
		}
		span.End()

		if a.recorder != nil {
			a.recorder.ObserveSource(r.name, outcome.Success, time.Since(start))
		}
	}()

	if timeout := a.timeoutFor(r.name); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return r.call(ctx)
}

func (a *Aggregator) timeoutFor(name domain.SourceName) time.Duration {
	if d, ok := a.timeouts[name]; ok && d > 0 {
		return d
	}
	return a.timeout
}

// EmailDomain returns the part after the last '@', lower-cased.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return strings.ToLower(email)
	}
	return strings.ToLower(email[at+1:])
}

// RegistrableDomain reduces a host to its eTLD+1, e.g. mail.corp.example.co.uk -> example.co.uk.
// Hosts the public suffix list can't reduce are returned unchanged.
func RegistrableDomain(host string) string {
	registered, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registered
}
