package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/hive-corporation/iocscope/internal/adapter/metrics"
	"github.com/hive-corporation/iocscope/internal/adapter/notifier"
	"github.com/hive-corporation/iocscope/internal/adapter/provider"
	"github.com/hive-corporation/iocscope/internal/adapter/publisher"
	"github.com/hive-corporation/iocscope/internal/adapter/repository"
	"github.com/hive-corporation/iocscope/internal/config"
	"github.com/hive-corporation/iocscope/internal/core/domain"
	"github.com/hive-corporation/iocscope/internal/core/ports"
	"github.com/hive-corporation/iocscope/internal/core/service"
)

// databaseWait bounds how long startup waits for Postgres to accept connections.
const databaseWait = 30 * time.Second

// App is the wired lookup service shared by the API commands.
type App struct {
	Service *service.LookupService
	Metrics *metrics.Metrics

	closers []func()
}

// Build wires sources, history storage and publishing from cfg. An empty DATABASE_URL keeps
// history in memory; an empty or unreachable NATS_URL disables publishing.
func Build(ctx context.Context, cfg config.Config, m *metrics.Metrics, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Metrics: m}

	repo, err := a.buildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	aggregator := service.NewAggregator(BuildSources(cfg, logger),
		service.WithSourceTimeout(cfg.SourceTimeout),
		service.WithSourceTimeouts(SourceTimeouts(cfg)),
		service.WithRecorder(m),
		service.WithLogger(logger),
	)

	opts := []service.Option{
		service.WithConcurrency(cfg.LookupConcurrency),
		service.WithHistoryLimit(cfg.HistoryLimit),
		service.WithIndicatorRecorder(m),
		service.WithServiceLogger(logger),
	}
	if pub := a.buildPublisher(cfg, logger); pub != nil {
		opts = append(opts, service.WithPublisher(pub))
	}
	if cfg.SlackBotToken != "" {
		opts = append(opts, service.WithPublisher(
			notifier.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel, cfg.SlackMentionTeam, cfg.SlackMinFlagged),
		))
		log.Printf("✅ Slack alerts enabled (%s, %d+ flagging sources)", cfg.SlackChannel, cfg.SlackMinFlagged)
	} else {
		log.Println("⚠️  Slack alerts disabled (no SLACK_BOT_TOKEN)")
	}

	a.Service = service.NewLookupService(aggregator, repo, opts...)
	return a, nil
}

func (a *App) buildRepository(ctx context.Context, cfg config.Config) (ports.LookupRepository, error) {
	if cfg.DatabaseURL == "" {
		log.Println("⚠️  DATABASE_URL not set - lookup history kept in memory")
		return repository.NewMemoryRepository(), nil
	}

	pool, err := repository.Connect(ctx, cfg.DatabaseURL, databaseWait)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, pool.Close)

	repo := repository.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}

	log.Println("✅ Lookup history stored in Postgres")
	return repo, nil
}

func (a *App) buildPublisher(cfg config.Config, logger *slog.Logger) ports.ResultPublisher {
	if cfg.NATSURL == "" {
		return nil
	}

	pub, err := publisher.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		log.Printf("⚠️  NATS publishing disabled: %v", err)
		return nil
	}
	a.closers = append(a.closers, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("failed to drain nats connection", "error", err)
		}
	})

	log.Printf("✅ Publishing lookups to NATS (%s.*)", cfg.NATSSubjectPrefix)
	return pub
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// BuildSources creates one adapter per source. Per-source overrides come from the sources
// file; disabled sources are replaced by provider.DisabledSource.
func BuildSources(cfg config.Config, logger *slog.Logger) service.Sources {
	if logger == nil {
		logger = slog.Default()
	}
	b := sourceBuilder{cfg: cfg, logger: logger}
	keys := cfg.APIKeys

	return service.Sources{
		VirusTotal: enabled[service.MultiLookup](b, domain.SourceVirusTotal, func() service.MultiLookup {
			return provider.NewVirusTotalProvider(b.doer(domain.SourceVirusTotal), keys.VirusTotal, b.options(domain.SourceVirusTotal)...)
		}),
		AbuseIPDB: enabled[ports.IPLookup](b, domain.SourceAbuseIPDB, func() ports.IPLookup {
			return provider.NewAbuseIPDBProvider(b.doer(domain.SourceAbuseIPDB), keys.AbuseIPDB, b.options(domain.SourceAbuseIPDB)...)
		}),
		URLScan: enabled[service.WebLookup](b, domain.SourceURLScan, func() service.WebLookup {
			return provider.NewURLScanProvider(b.doer(domain.SourceURLScan), keys.URLScan, b.options(domain.SourceURLScan)...)
		}),
		OTX: enabled[service.MultiLookup](b, domain.SourceOTX, func() service.MultiLookup {
			return provider.NewOTXProvider(b.doer(domain.SourceOTX), keys.OTX, b.options(domain.SourceOTX)...)
		}),
		GreyNoise: enabled[ports.IPLookup](b, domain.SourceGreyNoise, func() ports.IPLookup {
			return provider.NewGreyNoiseProvider(b.doer(domain.SourceGreyNoise), keys.GreyNoise, b.options(domain.SourceGreyNoise)...)
		}),
		Whois: enabled[service.HostLookup](b, domain.SourceWhois, func() service.HostLookup {
			return provider.NewWhoisProvider(b.doer(domain.SourceWhois), b.options(domain.SourceWhois)...)
		}),
		MXToolbox: enabled[service.HostLookup](b, domain.SourceMXToolbox, func() service.HostLookup {
			return provider.NewMXToolboxProvider(nil, nil, b.options(domain.SourceMXToolbox)...)
		}),
		IPVoid: enabled[service.HostLookup](b, domain.SourceIPVoid, func() service.HostLookup {
			return provider.NewIPVoidProvider(b.doer(domain.SourceIPVoid), keys.IPVoid, b.options(domain.SourceIPVoid)...)
		}),
		URLAnalyzer: enabled[ports.URLAnalyzer](b, domain.SourceURLAnalysis, func() ports.URLAnalyzer {
			return provider.NewURLAnalyzer(b.client(domain.SourceURLAnalysis), b.options(domain.SourceURLAnalysis)...)
		}),
	}
}

// SourceTimeouts collects the per-source timeout overrides of the sources file.
func SourceTimeouts(cfg config.Config) map[domain.SourceName]time.Duration {
	overrides := make(map[domain.SourceName]time.Duration)
	for name, settings := range cfg.Sources {
		if settings.Timeout > 0 {
			overrides[name] = settings.Timeout
		}
	}
	return overrides
}

type sourceBuilder struct {
	cfg    config.Config
	logger *slog.Logger
}

func enabled[T any](b sourceBuilder, name domain.SourceName, build func() T) T {
	if !b.cfg.SourceEnabled(name) {
		log.Printf("⚠️  Source %s disabled", name)
		var off any = provider.DisabledSource{}
		return off.(T)
	}
	return build()
}

func (b sourceBuilder) client(name domain.SourceName) *http.Client {
	timeout := b.cfg.SourceTimeout
	if override := b.cfg.Source(name).Timeout; override > 0 {
		timeout = override
	}
	return provider.NewHTTPClient(timeout)
}

func (b sourceBuilder) doer(name domain.SourceName) provider.Doer {
	client := b.client(name)
	if !b.cfg.CircuitBreakerEnabled {
		return client
	}
	return provider.NewBreakerDoer(string(name), client, provider.DefaultBreakerConfig())
}

func (b sourceBuilder) options(name domain.SourceName) []provider.Option {
	opts := []provider.Option{provider.WithLogger(b.logger)}
	if baseURL := b.cfg.Source(name).BaseURL; baseURL != "" {
		opts = append(opts, provider.WithBaseURL(baseURL))
	}
	return opts
}
