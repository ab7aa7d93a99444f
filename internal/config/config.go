package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	NSE      NSEConfig      `mapstructure:"nse"`
	Report   ReportConfig   `mapstructure:"report"`
	Market   MarketConfig   `mapstructure:"market"`
	Run      RunConfig      `mapstructure:"run"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// NSEConfig holds option chain source configuration
type NSEConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Symbol            string        `mapstructure:"symbol"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	WarmUpDelay       time.Duration `mapstructure:"warm_up_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// ReportConfig holds report selection and rendering configuration
type ReportConfig struct {
	TopN      int     `mapstructure:"top_n"`
	ATMRange  float64 `mapstructure:"atm_range"`  // 0 = no band
	ATMMarker float64 `mapstructure:"atm_marker"` // 0 = no marker
	Selection string  `mapstructure:"selection"`  // magnitude or strike
	Source    string  `mapstructure:"source"`
	Timezone  string  `mapstructure:"timezone"`
}

// MarketConfig holds the trading session used to gate cycles
type MarketConfig struct {
	Timezone string   `mapstructure:"timezone"`
	Open     string   `mapstructure:"open"`
	Close    string   `mapstructure:"close"`
	Holidays []string `mapstructure:"holidays"`
	Force    bool     `mapstructure:"force"`
}

// RunConfig holds scheduling configuration
type RunConfig struct {
	Mode         string        `mapstructure:"mode"` // once or loop
	Interval     time.Duration `mapstructure:"interval"`
	MessageDelay time.Duration `mapstructure:"message_delay"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	Enabled     bool          `mapstructure:"enabled"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	ChunkSize   int           `mapstructure:"chunk_size"`
	ChunkDelay  time.Duration `mapstructure:"chunk_delay"`
	APIEndpoint string        `mapstructure:"api_endpoint"`
}

// StorageConfig holds snapshot persistence configuration
type StorageConfig struct {
	Backend  string      `mapstructure:"backend"` // file, sqlite, s3 or redis
	FilePath string      `mapstructure:"file_path"`
	DBPath   string      `mapstructure:"db_path"`
	Name     string      `mapstructure:"name"`
	S3       S3Config    `mapstructure:"s3"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// S3Config holds S3 backend configuration
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Key       string `mapstructure:"key"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

// RedisConfig holds redis backend configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig holds metrics exposure configuration
type MetricsConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// legacyEnv maps keys to the bare environment names earlier deployments used.
var legacyEnv = map[string]string{
	"telegram.bot_token": "TELEGRAM_TOKEN",
	"telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"market.force":       "FORCE_RUN",
	"report.atm_range":   "ATM_RANGE",
	"run.interval":       "FETCH_INTERVAL",
}

// Load reads configuration from an optional file and environment variables.
// A missing file is not an error; every key has a default.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("OIDELTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, "OIDELTA_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", legacy, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	// Bare numbers are seconds.
	if s := strings.TrimSpace(v.GetString("run.interval")); s != "" && isDigits(s) {
		v.Set("run.interval", s+"s")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("nse.base_url", "https://www.nseindia.com")
	v.SetDefault("nse.symbol", "NIFTY")
	v.SetDefault("nse.timeout", "30s")
	v.SetDefault("nse.max_retries", 5)
	v.SetDefault("nse.retry_delay", "3s")
	v.SetDefault("nse.warm_up_delay", "1s")
	v.SetDefault("nse.requests_per_second", 1.0)

	v.SetDefault("report.top_n", 15)
	v.SetDefault("report.atm_range", 300.0)
	v.SetDefault("report.atm_marker", 50.0)
	v.SetDefault("report.selection", "magnitude")
	v.SetDefault("report.source", "NSE India")
	v.SetDefault("report.timezone", "Asia/Kolkata")

	v.SetDefault("market.timezone", "Asia/Kolkata")
	v.SetDefault("market.open", "09:15")
	v.SetDefault("market.close", "15:30")
	v.SetDefault("market.holidays", []string{})
	v.SetDefault("market.force", false)

	v.SetDefault("run.mode", "once")
	v.SetDefault("run.interval", "5m")
	v.SetDefault("run.message_delay", "1s")
	v.SetDefault("run.timeout", "3m")

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", true)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay", "1s")
	v.SetDefault("telegram.chunk_size", 4000)
	v.SetDefault("telegram.chunk_delay", "500ms")
	v.SetDefault("telegram.api_endpoint", "")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.file_path", "last_oi.json")
	v.SetDefault("storage.db_path", "")
	v.SetDefault("storage.name", "last_oi")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.key", "oidelta/last_oi.json")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.path_style", false)
	v.SetDefault("storage.redis.addr", "")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.key", "oidelta:last_oi")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_age_days", 0)

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "oidelta")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.NSE.BaseURL); err != nil {
		return fmt.Errorf("nse.base_url must be an absolute URL")
	}
	if c.NSE.Symbol == "" {
		return fmt.Errorf("nse.symbol is required")
	}
	if c.NSE.Timeout <= 0 {
		return fmt.Errorf("nse.timeout must be positive")
	}
	if c.NSE.MaxRetries < 1 {
		return fmt.Errorf("nse.max_retries must be at least 1")
	}
	if c.NSE.RequestsPerSecond < 0 {
		return fmt.Errorf("nse.requests_per_second must not be negative")
	}

	if c.Report.TopN < 0 {
		return fmt.Errorf("report.top_n must not be negative")
	}
	if c.Report.ATMRange < 0 {
		return fmt.Errorf("report.atm_range must not be negative")
	}
	if c.Report.ATMMarker < 0 {
		return fmt.Errorf("report.atm_marker must not be negative")
	}
	switch strings.ToLower(c.Report.Selection) {
	case "magnitude", "strike":
	default:
		return fmt.Errorf("report.selection must be one of: magnitude, strike")
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone is invalid: %w", err)
	}

	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone is invalid: %w", err)
	}
	for _, d := range c.Market.Holidays {
		if _, err := time.Parse(time.DateOnly, d); err != nil {
			return fmt.Errorf("market.holidays entry %q must be YYYY-MM-DD", d)
		}
	}

	switch c.Run.Mode {
	case "once":
	case "loop":
		if c.Run.Interval < 1*time.Minute {
			return fmt.Errorf("run.interval must be at least 1 minute")
		}
	default:
		return fmt.Errorf("run.mode must be one of: once, loop")
	}
	if c.Run.MessageDelay < 0 {
		return fmt.Errorf("run.message_delay must not be negative")
	}
	if c.Run.Timeout <= 0 {
		return fmt.Errorf("run.timeout must be positive")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.ChunkSize < 100 || c.Telegram.ChunkSize > 4096 {
		return fmt.Errorf("telegram.chunk_size must be between 100 and 4096")
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.FilePath == "" {
			return fmt.Errorf("storage.file_path is required for the file backend")
		}
	case "sqlite":
		if c.Storage.Name == "" {
			return fmt.Errorf("storage.name is required for the sqlite backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Key == "" {
			return fmt.Errorf("storage.s3.bucket and storage.s3.key are required for the s3 backend")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" || c.Storage.Redis.Key == "" {
			return fmt.Errorf("storage.redis.addr and storage.redis.key are required for the redis backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of: file, sqlite, s3, redis")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}
	if c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging.max_age_days must not be negative")
	}

	if c.Metrics.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(c.Metrics.PushgatewayURL); err != nil {
			return fmt.Errorf("metrics.pushgateway_url must be an absolute URL")
		}
	}

	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
