package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the quantdesk server and CLI.
type Config struct {
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Backtest Backtest `yaml:"backtest"`
	Heatmap  Heatmap  `yaml:"heatmap"`
	Retry    Retry    `yaml:"retry"`
}

// Server holds network listener configuration.
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	GRPCPort        int           `yaml:"grpc_port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Alpaca holds the default credentials and endpoints for market data.
// Requests may carry their own credentials, which take precedence.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backtest toggles the optional persistence around backtests.
type Backtest struct {
	CacheBars  *bool `yaml:"cache_bars"`
	RecordRuns *bool `yaml:"record_runs"`
}

// Heatmap controls the cross-sectional scan.
type Heatmap struct {
	BatchSize int `yaml:"batch_size"`
}

// Retry controls backoff around transient market-data failures.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// CachingBars reports whether closed bar ranges are cached on disk.
func (b Backtest) CachingBars() bool { return b.CacheBars == nil || *b.CacheBars }

// RecordingRuns reports whether backtests are written to the run log.
func (b Backtest) RecordingRuns() bool { return b.RecordRuns == nil || *b.RecordRuns }

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// EnvPath names the environment variable that points at the config file.
const EnvPath = "QUANTDESK_CONFIG"

// DefaultPath is used when neither a path nor EnvPath is given.
const DefaultPath = "config/quantdesk.yaml"

// Defaults returns a configuration with every field at its default value.
func Defaults() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = 9090
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Alpaca.BaseURL == "" {
		c.Alpaca.BaseURL = "https://paper-api.alpaca.markets"
	}
	if c.Alpaca.DataURL == "" {
		c.Alpaca.DataURL = "https://data.alpaca.markets"
	}
	if c.Alpaca.Feed == "" {
		c.Alpaca.Feed = "sip"
	}
	if c.Alpaca.RateLimitPerMin == 0 {
		c.Alpaca.RateLimitPerMin = 200
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = c.Storage.DataDir + "/quantdesk.db"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Heatmap.BatchSize == 0 {
		c.Heatmap.BatchSize = 50
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = 500 * time.Millisecond
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	for name, port := range map[string]int{"server.port": c.Server.Port, "server.grpc_port": c.Server.GRPCPort} {
		if port < 1 || port > 65535 {
			return fmt.Errorf("%s %d out of range", name, port)
		}
	}
	if c.Server.Port == c.Server.GRPCPort {
		return fmt.Errorf("server.port and server.grpc_port are both %d", c.Server.Port)
	}
	switch strings.ToLower(c.Alpaca.Feed) {
	case "sip", "iex", "otc":
	default:
		return fmt.Errorf("alpaca.feed %q not one of sip, iex, otc", c.Alpaca.Feed)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format %q not one of json, text", c.Logging.Format)
	}
	if c.Heatmap.BatchSize < 1 {
		return fmt.Errorf("heatmap.batch_size must be positive, got %d", c.Heatmap.BatchSize)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault loads path, or the file named by QUANTDESK_CONFIG, or
// DefaultPath. A missing DefaultPath is not an error: defaults plus
// environment overrides are returned.
func LoadDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path != "" {
		return Load(path)
	}

	cfg, err := Load(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = &Config{}
		applyEnvOverrides(cfg)
		cfg.applyDefaults()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
