package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"crypto_feed/internal/domain"
	"crypto_feed/internal/infra/storage"

	"gopkg.in/yaml.v3"
)

const (
	ChannelL2Book = "l2_book"
	ChannelTrades = "trades"

	defaultInboxSize = 4096
)

// ExchangeConfig describes one exchange subscription.
type ExchangeConfig struct {
	Name     string   `yaml:"name"`
	Pairs    []string `yaml:"pairs"`
	Channels []string `yaml:"channels"`
	Depth    int      `yaml:"depth"`
	URL      string   `yaml:"url"` // Optional websocket endpoint override
}

// Config holds every setting of the feed service.
// LoadConfig reads the file first, then lets environment variables override secrets.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchanges []ExchangeConfig `yaml:"exchanges"`

	Engine struct {
		InboxSize int    `yaml:"inbox_size"`
		DumpFile  string `yaml:"dump_file"`
	} `yaml:"engine"`

	Storage struct {
		Enabled     bool   `yaml:"enabled"`
		Driver      string `yaml:"driver"`
		DSN         string `yaml:"dsn"`
		RotateDaily bool   `yaml:"rotate_daily"`
	} `yaml:"storage"`

	Redis struct {
		Enabled       bool   `yaml:"enabled"`
		Addr          string `yaml:"addr"`
		Password      string `yaml:"password"`
		DB            int    `yaml:"db"`
		ChannelPrefix string `yaml:"channel_prefix"`
	} `yaml:"redis"`

	HTTP struct {
		Addr string `yaml:"addr"` // /metrics, /snapshots, pprof
	} `yaml:"http"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, applies defaults and env overrides, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.InboxSize == 0 {
		cfg.Engine.InboxSize = defaultInboxSize
	}
	if cfg.Engine.DumpFile == "" {
		cfg.Engine.DumpFile = "panic_dump.json"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = storage.DriverSQLite
	}
	if cfg.Redis.ChannelPrefix == "" {
		cfg.Redis.ChannelPrefix = "crypto_feed"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = "logs/app.log"
	}
	for i := range cfg.Exchanges {
		ex := &cfg.Exchanges[i]
		if len(ex.Channels) == 0 {
			ex.Channels = []string{ChannelL2Book, ChannelTrades}
		}
		if ex.Depth == 0 {
			ex.Depth = domain.DefaultDepth
		}
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Exchanges) == 0 {
		return &domain.ConfigError{Field: "exchanges", Err: errors.New("at least one exchange is required")}
	}

	seen := make(map[string]bool, len(c.Exchanges))
	for i, ex := range c.Exchanges {
		field := fmt.Sprintf("exchanges[%d]", i)
		if ex.Name == "" {
			return &domain.ConfigError{Field: field + ".name", Err: errors.New("name is required")}
		}
		key := strings.ToLower(ex.Name)
		if seen[key] {
			return &domain.ConfigError{Field: field + ".name", Err: fmt.Errorf("duplicate exchange %q", ex.Name)}
		}
		seen[key] = true

		if len(ex.Pairs) == 0 {
			return &domain.ConfigError{Field: field + ".pairs", Err: errors.New("at least one pair is required")}
		}
		for _, p := range ex.Pairs {
			base, quote, ok := strings.Cut(p, "/")
			if !ok || base == "" || quote == "" {
				return &domain.ConfigError{Field: field + ".pairs", Err: fmt.Errorf("pair %q: %w", p, domain.ErrInvalidSymbol)}
			}
		}
		for _, ch := range ex.Channels {
			if ch != ChannelL2Book && ch != ChannelTrades {
				return &domain.ConfigError{Field: field + ".channels", Err: fmt.Errorf("unknown channel %q", ch)}
			}
		}
		if ex.URL != "" && !hasPrefix(ex.URL, "ws://") && !hasPrefix(ex.URL, "wss://") {
			return &domain.ConfigError{Field: field + ".url", Err: fmt.Errorf("invalid WS URL: %s", ex.URL)}
		}
	}

	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("inbox size must be positive")}
	}

	if c.Storage.Enabled {
		if c.Storage.Driver != storage.DriverSQLite && c.Storage.Driver != storage.DriverPostgres {
			return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unsupported driver %q", c.Storage.Driver)}
		}
		if c.Storage.DSN == "" {
			return &domain.ConfigError{Field: "storage.dsn", Err: errors.New("dsn is required")}
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return &domain.ConfigError{Field: "redis.addr", Err: errors.New("addr is required")}
	}

	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv overrides settings from the environment when present.
func overrideWithEnv(cfg *Config) {
	if dsn := os.Getenv("CRYPTO_FEED_DB_DSN"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if addr := os.Getenv("CRYPTO_FEED_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pass := os.Getenv("CRYPTO_FEED_REDIS_PASSWORD"); pass != "" {
		cfg.Redis.Password = pass
	}
	if level := os.Getenv("CRYPTO_FEED_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
