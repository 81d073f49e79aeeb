package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nepse-observer/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment overrides
const (
	EnvChromePath = "NEPSE_CHROME_PATH"
	EnvHeadless   = "NEPSE_HEADLESS"
	EnvDBType     = "NEPSE_DB_TYPE"
	EnvDBPath     = "NEPSE_DB_PATH"
	EnvDBDSN      = "NEPSE_DB_DSN"
	EnvCacheType  = "NEPSE_CACHE_TYPE"
	EnvRedisAddr  = "NEPSE_REDIS_ADDR"
	EnvRedisPass  = "NEPSE_REDIS_PASS"
	EnvLogLevel   = "NEPSE_LOG_LEVEL"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig creates a new MConfig instance from YAML file
func NewConfig(configPath string) (*Config, error) {
	// 1. Pick up a local .env if present
	_ = godotenv.Load()

	// 2. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	return Parse(data)
}

// -----------------------------------------------------------------------------

// Parse builds a validated Config from YAML bytes, applying defaults and
// environment overrides.
func Parse(data []byte) (*Config, error) {
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}
	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "nepse-observer"
	}
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8090
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}
	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = "nepse.db"
	}
	if c.Cache.Type == "" {
		c.Cache.Type = "memory"
	}
	if c.Browser.LaunchTimeoutSeconds == 0 {
		c.Browser.LaunchTimeoutSeconds = 30
	}
	if c.Browser.NavigationsPerSecond == 0 {
		c.Browser.NavigationsPerSecond = 1
	}
	if c.Extract.BaseURL == "" {
		c.Extract.BaseURL = "https://www.nepalstock.com"
	}
	if c.Extract.Attempts == 0 {
		c.Extract.Attempts = 3
	}
	if c.Extract.RetryDelaySeconds == 0 {
		c.Extract.RetryDelaySeconds = 2
	}
	if c.Extract.InterceptTimeoutSeconds == 0 {
		c.Extract.InterceptTimeoutSeconds = 20
	}
	if c.Extract.DownloadTimeoutSeconds == 0 {
		c.Extract.DownloadTimeoutSeconds = 30
	}
	if c.Extract.DomTimeoutSeconds == 0 {
		c.Extract.DomTimeoutSeconds = 20
	}
	if c.Extract.MainIndexID == 0 {
		c.Extract.MainIndexID = 58
	}
	if c.Jobs.IndexIntervalSeconds == 0 {
		c.Jobs.IndexIntervalSeconds = 60
	}
	if c.Jobs.PriceIntervalSeconds == 0 {
		c.Jobs.PriceIntervalSeconds = 120
	}
	if c.Jobs.PostCloseMinutes == 0 {
		c.Jobs.PostCloseMinutes = 10
	}
	if c.Jobs.CompanyCron == "" {
		c.Jobs.CompanyCron = "30 16 * * 0-4"
	}
	if c.Jobs.HistoryCron == "" {
		c.Jobs.HistoryCron = "0 17 * * 0-4"
	}
	if c.Jobs.ArchiveCron == "" {
		c.Jobs.ArchiveCron = "15 15 * * 0-4"
	}
	if c.Jobs.JobTimeoutSeconds == 0 {
		c.Jobs.JobTimeoutSeconds = 300
	}
	if c.Jobs.ShutdownGraceSeconds == 0 {
		c.Jobs.ShutdownGraceSeconds = 30
	}
	if c.Market.OpenTime == "" {
		c.Market.OpenTime = "11:00"
	}
	if c.Market.CloseTime == "" {
		c.Market.CloseTime = "15:00"
	}
	if len(c.Market.TradingDays) == 0 {
		c.Market.TradingDays = []string{"sun", "mon", "tue", "wed", "thu"}
	}
}

// -----------------------------------------------------------------------------

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvChromePath); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv(EnvHeadless); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Browser.Headless = b
		}
	}
	if v := os.Getenv(EnvDBType); v != "" {
		c.Storage.DBType = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv(EnvDBDSN); v != "" {
		c.Storage.DBConnectionString = v
	}
	if v := os.Getenv(EnvCacheType); v != "" {
		c.Cache.Type = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.Host = v
	}
	if v := os.Getenv(EnvRedisPass); v != "" {
		c.Cache.Pass = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d", c.GrpcPort)
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("database connection string cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Storage.DBType)
	}
	if c.Storage.HistoryRetentionDays < 0 {
		return fmt.Errorf("history retention days cannot be negative")
	}

	// Validate Cache configuration
	switch c.Cache.Type {
	case "redis":
		if c.Cache.Host == "" {
			return fmt.Errorf("redis host cannot be empty")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("unsupported cache type: %s", c.Cache.Type)
	}

	// Validate extraction
	if c.Extract.Attempts <= 0 {
		return fmt.Errorf("extract attempts must be greater than 0")
	}
	if c.Extract.RetryDelaySeconds < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.Browser.NavigationsPerSecond < 0 {
		return fmt.Errorf("navigations per second cannot be negative")
	}

	// Validate jobs
	if c.Jobs.IndexIntervalSeconds <= 0 || c.Jobs.PriceIntervalSeconds <= 0 {
		return fmt.Errorf("job intervals must be greater than 0")
	}
	if c.Jobs.JobTimeoutSeconds <= 0 {
		return fmt.Errorf("job timeout must be greater than 0")
	}
	if c.Jobs.PostCloseMinutes < 0 {
		return fmt.Errorf("post close minutes cannot be negative")
	}

	// Validate market window
	open, err := ParseClock(c.Market.OpenTime)
	if err != nil {
		return fmt.Errorf("invalid market open time: %w", err)
	}
	closeAt, err := ParseClock(c.Market.CloseTime)
	if err != nil {
		return fmt.Errorf("invalid market close time: %w", err)
	}
	if closeAt <= open {
		return fmt.Errorf("market close time must be after open time")
	}
	for _, d := range c.Market.TradingDays {
		if _, ok := ParseWeekday(d); !ok {
			return fmt.Errorf("invalid trading day: %s", d)
		}
	}
	for _, h := range c.Market.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return fmt.Errorf("invalid holiday %q: %w", h, err)
		}
	}

	return nil
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c.MConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// ParseClock parses "HH:MM" into the offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// -----------------------------------------------------------------------------

// ParseWeekday accepts short or long English day names.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	switch s[:3] {
	case "sun":
		return time.Sunday, true
	case "mon":
		return time.Monday, true
	case "tue":
		return time.Tuesday, true
	case "wed":
		return time.Wednesday, true
	case "thu":
		return time.Thursday, true
	case "fri":
		return time.Friday, true
	case "sat":
		return time.Saturday, true
	}
	return 0, false
}

// -----------------------------------------------------------------------------

// Seconds converts an int config field into a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
