package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/iocscope/internal/core/domain"
)

// APIKeys holds the credentials of the keyed sources. An empty key disables the source's
// remote calls; the source then answers "API key not configured".
type APIKeys struct {
	VirusTotal string
	AbuseIPDB  string
	URLScan    string
	OTX        string
	GreyNoise  string
	IPVoid     string
}

// SourceSettings overrides one source. Zero values keep the built-in defaults.
type SourceSettings struct {
	Enabled *bool         `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Config struct {
	APIKeys APIKeys

	DatabaseURL       string
	NATSURL           string
	NATSSubjectPrefix string

	// Slack alerts fire for lookups flagged by at least SlackMinFlagged sources.
	SlackBotToken    string
	SlackChannel     string
	SlackMentionTeam string
	SlackMinFlagged  int

	RESTAddr string
	GRPCAddr string

	SourceTimeout         time.Duration
	LookupConcurrency     int
	HistoryLimit          int
	CORSOrigins           []string
	CircuitBreakerEnabled bool

	SourcesFile string
	Sources     map[domain.SourceName]SourceSettings
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		NATSSubjectPrefix: "iocscope.lookups",
		SlackChannel:      "#security-alerts",
		SlackMinFlagged:   2,
		RESTAddr:          "localhost:8080",  // Secure default - localhost only
		GRPCAddr:          "localhost:50051", // Secure default - localhost only
		SourceTimeout:     10 * time.Second,
		LookupConcurrency: 4,
		HistoryLimit:      150,
		CORSOrigins:       []string{"http://localhost:3000"},
		Sources:           map[domain.SourceName]SourceSettings{},
	}
}

// Load reads .env (if present), then the environment, then command-line flags, then the
// optional YAML sources file. Later layers win.
func Load(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	loadFromEnv(&cfg)

	if err := loadFromFlags(&cfg, args); err != nil {
		return Config{}, err
	}

	if cfg.SourcesFile != "" {
		sources, err := LoadSourcesFile(cfg.SourcesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = sources
	}

	return cfg, nil
}

func loadFromEnv(cfg *Config) {
	cfg.APIKeys = APIKeys{
		VirusTotal: os.Getenv("VIRUSTOTAL_API_KEY"),
		AbuseIPDB:  os.Getenv("ABUSEIPDB_API_KEY"),
		URLScan:    os.Getenv("URLSCAN_API_KEY"),
		OTX:        os.Getenv("OTX_API_KEY"),
		GreyNoise:  os.Getenv("GREYNOISE_API_KEY"),
		IPVoid:     os.Getenv("IPVOID_API_KEY"),
	}

	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnv("NATS_URL", cfg.NATSURL)
	cfg.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", cfg.NATSSubjectPrefix)
	cfg.SlackBotToken = getEnv("SLACK_BOT_TOKEN", cfg.SlackBotToken)
	cfg.SlackChannel = getEnv("SLACK_CHANNEL_SECURITY", cfg.SlackChannel)
	cfg.SlackMentionTeam = getEnv("SLACK_MENTION_TEAM", cfg.SlackMentionTeam)
	cfg.SlackMinFlagged = getEnvInt("SLACK_MIN_FLAGGED", cfg.SlackMinFlagged)
	cfg.RESTAddr = getEnv("REST_API_ADDR", cfg.RESTAddr)
	cfg.GRPCAddr = getEnv("GRPC_LISTEN_ADDR", cfg.GRPCAddr)
	cfg.SourceTimeout = time.Duration(getEnvInt("SOURCE_TIMEOUT_SECONDS", int(cfg.SourceTimeout/time.Second))) * time.Second
	cfg.LookupConcurrency = getEnvInt("LOOKUP_CONCURRENCY", cfg.LookupConcurrency)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.CircuitBreakerEnabled = getEnvBool("SOURCE_CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerEnabled)
	cfg.SourcesFile = getEnv("SOURCES_FILE", cfg.SourcesFile)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitList(v)
	}
}

func loadFromFlags(cfg *Config, args []string) error {
	flags := pflag.NewFlagSet("iocscope", pflag.ContinueOnError)

	flags.StringVar(&cfg.RESTAddr, "rest-addr", cfg.RESTAddr, "REST API listen address")
	flags.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC API listen address")
	flags.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres URL for lookup history (empty keeps history in memory)")
	flags.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS URL for lookup events (empty disables publishing)")
	flags.StringVar(&cfg.SourcesFile, "sources-file", cfg.SourcesFile, "YAML file with per-source overrides")
	flags.DurationVar(&cfg.SourceTimeout, "source-timeout", cfg.SourceTimeout, "timeout for a single source call")
	flags.IntVar(&cfg.LookupConcurrency, "concurrency", cfg.LookupConcurrency, "indicators aggregated in parallel per request")
	flags.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "maximum number of stored lookups (0 keeps all)")
	flags.StringSliceVar(&cfg.CORSOrigins, "cors-origins", cfg.CORSOrigins, "allowed CORS origins")
	flags.BoolVar(&cfg.CircuitBreakerEnabled, "circuit-breaker", cfg.CircuitBreakerEnabled, "wrap each source in a circuit breaker")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

type sourcesFile struct {
	Sources map[string]SourceSettings `yaml:"sources"`
}

// LoadSourcesFile reads per-source overrides keyed by source name:
//
//	sources:
//	  virustotal:
//	    timeout: 5s
//	  ipvoid:
//	    enabled: false
func LoadSourcesFile(path string) (map[domain.SourceName]SourceSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file sourcesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}

	known := make(map[domain.SourceName]bool, len(domain.SourceOrder))
	for _, name := range domain.SourceOrder {
		known[name] = true
	}

	sources := make(map[domain.SourceName]SourceSettings, len(file.Sources))
	for name, settings := range file.Sources {
		source := domain.SourceName(strings.ToLower(name))
		if !known[source] || source == domain.SourceError {
			return nil, fmt.Errorf("unknown source %q in %s", name, path)
		}
		if settings.Timeout < 0 {
			return nil, fmt.Errorf("negative timeout for source %q", name)
		}
		sources[source] = settings
	}
	return sources, nil
}

// Source returns the overrides for name.
func (c Config) Source(name domain.SourceName) SourceSettings {
	return c.Sources[name]
}

// SourceEnabled reports whether name should be wired. Sources are enabled unless disabled
// in the sources file.
func (c Config) SourceEnabled(name domain.SourceName) bool {
	s, ok := c.Sources[name]
	return !ok || s.Enabled == nil || *s.Enabled
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
