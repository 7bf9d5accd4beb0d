package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"arb_go/internal/domain"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent is a browser-like user agent string to avoid bot detection
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// EnvPrefix는 모든 환경 변수 오버라이드의 접두사입니다.
	EnvPrefix = "ARB_"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 YAML을 읽은 뒤 ARB_ 환경 변수로 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name" env:"NAME"`
		Version string `yaml:"version"`
	} `yaml:"app" envPrefix:"APP_"`

	Book         BookConfig         `yaml:"book" envPrefix:"BOOK_"`
	Cache        CacheConfig        `yaml:"cache" envPrefix:"CACHE_"`
	Health       HealthConfig       `yaml:"health" envPrefix:"HEALTH_"`
	Ingest       IngestConfig       `yaml:"ingest" envPrefix:"INGEST_"`
	Feeds        FeedsConfig        `yaml:"feeds" envPrefix:"FEEDS_"`
	ExchangeRate ExchangeRateConfig `yaml:"exchange_rate" envPrefix:"FX_"`
	Metrics      MetricsConfig      `yaml:"metrics" envPrefix:"METRICS_"`
	Journal      JournalConfig      `yaml:"journal" envPrefix:"JOURNAL_"`

	Logging struct {
		Level string `yaml:"level" env:"LEVEL"`
		Dir   string `yaml:"dir" env:"DIR"`
	} `yaml:"logging" envPrefix:"LOG_"`
}

// BookConfig bounds the live books.
type BookConfig struct {
	MaxDepth         int             `yaml:"max_depth" env:"MAX_DEPTH"`
	SnapshotOnUpdate bool            `yaml:"snapshot_on_update" env:"SNAPSHOT_ON_UPDATE"`
	Overrides        []DepthOverride `yaml:"overrides"`
}

// DepthOverride sets max depth for one (venue, symbol) book.
type DepthOverride struct {
	Venue    string `yaml:"venue"`
	Symbol   string `yaml:"symbol"` // "BTC/USDT"
	MaxDepth int    `yaml:"max_depth"`
}

// CacheConfig sizes the snapshot cache.
type CacheConfig struct {
	MaxSize       int `yaml:"max_size" env:"MAX_SIZE"`
	TTLSec        int `yaml:"ttl_sec" env:"TTL_SEC"`
	HistoryPerKey int `yaml:"history_per_key" env:"HISTORY_PER_KEY"`
}

// HealthConfig drives the periodic health pass.
type HealthConfig struct {
	IntervalSec   int `yaml:"interval_sec" env:"INTERVAL_SEC"`
	StaleAfterSec int `yaml:"stale_after_sec" env:"STALE_AFTER_SEC"`
}

// IngestConfig sizes the per-feed inboxes.
type IngestConfig struct {
	InboxSize int    `yaml:"inbox_size" env:"INBOX_SIZE"`
	DumpDir   string `yaml:"dump_dir" env:"DUMP_DIR"`
}

// FeedsConfig lists the venue streams to subscribe.
// Upbit symbols are market codes ("KRW-BTC"); Bitget symbols are instIds
// ("BTCUSDT") with inst_type SPOT or USDT-FUTURES and channel books, books5 or books15.
type FeedsConfig struct {
	Upbit struct {
		Enabled bool     `yaml:"enabled" env:"ENABLED"`
		WSURL   string   `yaml:"ws_url" env:"WS_URL"`
		Symbols []string `yaml:"symbols" env:"SYMBOLS" envSeparator:","` // "KRW-BTC"
	} `yaml:"upbit" envPrefix:"UPBIT_"`
	Bitget struct {
		Enabled  bool     `yaml:"enabled" env:"ENABLED"`
		WSURL    string   `yaml:"ws_url" env:"WS_URL"`
		InstType string   `yaml:"inst_type" env:"INST_TYPE"`
		Channel  string   `yaml:"channel" env:"CHANNEL"`
		Symbols  []string `yaml:"symbols" env:"SYMBOLS" envSeparator:","`
	} `yaml:"bitget" envPrefix:"BITGET_"`
}

// ExchangeRateConfig is the FX source used for cross-quote premiums.
type ExchangeRateConfig struct {
	Enabled         bool   `yaml:"enabled" env:"ENABLED"`
	URL             string `yaml:"url" env:"URL"`
	PollIntervalSec int    `yaml:"poll_interval_sec" env:"POLL_INTERVAL_SEC"`
}

// MetricsConfig exposes Prometheus metrics and pprof.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Addr    string `yaml:"addr" env:"ADDR"`
	Pprof   bool   `yaml:"pprof" env:"PPROF"`
}

// JournalConfig locates the anomaly journal database.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	// .env는 선택 사항
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &domain.ConfigError{Field: "path", Err: fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)}
		}
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML, applies environment overrides and defaults, then validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &domain.ConfigError{Field: "yaml", Err: err}
	}

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, &domain.ConfigError{Field: "env", Err: err}
	}

	cfg.applyDefaults()

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "arb_go"
	}
	if c.Book.MaxDepth == 0 {
		c.Book.MaxDepth = 1000
	}
	if c.Cache.MaxSize == 0 {
		c.Cache.MaxSize = 1024
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 30
	}
	if c.Health.IntervalSec == 0 {
		c.Health.IntervalSec = 5
	}
	if c.Health.StaleAfterSec == 0 {
		c.Health.StaleAfterSec = 30
	}
	if c.Ingest.InboxSize == 0 {
		c.Ingest.InboxSize = 4096
	}
	if c.Feeds.Upbit.WSURL == "" {
		c.Feeds.Upbit.WSURL = "wss://api.upbit.com/websocket/v1"
	}
	if c.Feeds.Bitget.WSURL == "" {
		c.Feeds.Bitget.WSURL = "wss://ws.bitget.com/v2/ws/public"
	}
	if c.Feeds.Bitget.InstType == "" {
		c.Feeds.Bitget.InstType = "SPOT"
	}
	if c.Feeds.Bitget.Channel == "" {
		c.Feeds.Bitget.Channel = "books"
	}
	if c.ExchangeRate.URL == "" {
		c.ExchangeRate.URL = "https://quotation-api-cdn.dunamu.com/v1/forex/recent?codes=FRX.KRWUSD"
	}
	if c.ExchangeRate.PollIntervalSec == 0 {
		c.ExchangeRate.PollIntervalSec = 60
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "data/anomalies.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Book.MaxDepth <= 0 {
		return &domain.ConfigError{Field: "book.max_depth", Err: domain.ErrInvalidDepth}
	}
	for i, o := range c.Book.Overrides {
		field := fmt.Sprintf("book.overrides[%d]", i)
		if o.Venue == "" {
			return &domain.ConfigError{Field: field, Err: domain.ErrVenueRequired}
		}
		if _, err := domain.ParseSymbol(o.Symbol); err != nil {
			return &domain.ConfigError{Field: field, Err: err}
		}
		if o.MaxDepth <= 0 {
			return &domain.ConfigError{Field: field, Err: domain.ErrInvalidDepth}
		}
	}
	if c.Cache.MaxSize < 0 || c.Cache.TTLSec < 0 || c.Cache.HistoryPerKey < 0 {
		return &domain.ConfigError{Field: "cache", Err: errors.New("sizes must not be negative")}
	}
	if c.Health.IntervalSec < 0 || c.Health.StaleAfterSec < 0 {
		return &domain.ConfigError{Field: "health", Err: errors.New("durations must not be negative")}
	}
	if c.Ingest.InboxSize < 0 {
		return &domain.ConfigError{Field: "ingest.inbox_size", Err: errors.New("must not be negative")}
	}

	if c.Feeds.Upbit.Enabled {
		if !isWSURL(c.Feeds.Upbit.WSURL) {
			return &domain.ConfigError{Field: "feeds.upbit.ws_url", Err: fmt.Errorf("invalid WS URL: %s", c.Feeds.Upbit.WSURL)}
		}
		if len(c.Feeds.Upbit.Symbols) == 0 {
			return &domain.ConfigError{Field: "feeds.upbit.symbols", Err: errors.New("at least one symbol is required")}
		}
	}
	if c.Feeds.Bitget.Enabled {
		if !isWSURL(c.Feeds.Bitget.WSURL) {
			return &domain.ConfigError{Field: "feeds.bitget.ws_url", Err: fmt.Errorf("invalid WS URL: %s", c.Feeds.Bitget.WSURL)}
		}
		if len(c.Feeds.Bitget.Symbols) == 0 {
			return &domain.ConfigError{Field: "feeds.bitget.symbols", Err: errors.New("at least one symbol is required")}
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

func isWSURL(s string) bool {
	return strings.HasPrefix(s, "ws://") || strings.HasPrefix(s, "wss://")
}
