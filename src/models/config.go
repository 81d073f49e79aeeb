package models

// MConfig Structure
type MConfig struct {
	Name     string         `yaml:"name"`
	Env      string         `yaml:"env"`
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	GrpcHost string         `yaml:"grpc_host"`
	GrpcPort int            `yaml:"grpc_port"`
	Storage  MStorageConfig `yaml:"storage"`
	Cache    MCacheConfig   `yaml:"cache"`
	Browser  MBrowserConfig `yaml:"browser"`
	Extract  MExtractConfig `yaml:"extract"`
	Jobs     MJobsConfig    `yaml:"jobs"`
	Market   MMarketConfig  `yaml:"market"`
}

type MStorageConfig struct {
	DBType               string `yaml:"db_type"`
	DBPath               string `yaml:"db_path"`
	DBConnectionString   string `yaml:"db_connection_string"`
	HistoryRetentionDays int    `yaml:"history_retention_days"` // 0 keeps everything
}

type MCacheConfig struct {
	Type string `yaml:"type"` // redis, memory or none
	Host string `yaml:"host"`
	Pass string `yaml:"pass"`
}

type MBrowserConfig struct {
	ExecPath             string   `yaml:"exec_path"`
	Headless             bool     `yaml:"headless"`
	NoSandbox            bool     `yaml:"no_sandbox"`
	BlockStylesheets     bool     `yaml:"block_stylesheets"`
	LaunchTimeoutSeconds int      `yaml:"launch_timeout_seconds"`
	NavigationsPerSecond float64  `yaml:"navigations_per_second"`
	Proxies              []string `yaml:"proxies"`
	UserAgent            string   `yaml:"user_agent"` // empty rotates a built-in list
}

type MExtractConfig struct {
	BaseURL                 string `yaml:"base_url"`
	Attempts                int    `yaml:"attempts"`
	RetryDelaySeconds       int    `yaml:"retry_delay_seconds"`
	InterceptTimeoutSeconds int    `yaml:"intercept_timeout_seconds"`
	DownloadTimeoutSeconds  int    `yaml:"download_timeout_seconds"`
	DomTimeoutSeconds       int    `yaml:"dom_timeout_seconds"`
	MainIndexID             int64  `yaml:"main_index_id"`
}

type MJobsConfig struct {
	IndexIntervalSeconds int      `yaml:"index_interval_seconds"`
	PriceIntervalSeconds int      `yaml:"price_interval_seconds"`
	PostCloseMinutes     int      `yaml:"post_close_minutes"` // live jobs keep ticking this long after close
	CompanyCron          string   `yaml:"company_cron"`
	HistoryCron          string   `yaml:"history_cron"`
	ArchiveCron          string   `yaml:"archive_cron"`
	JobTimeoutSeconds    int      `yaml:"job_timeout_seconds"`
	ShutdownGraceSeconds int      `yaml:"shutdown_grace_seconds"`
	Symbols              []string `yaml:"symbols"` // empty means every symbol seen in the live table
}

type MMarketConfig struct {
	MIC         string   `yaml:"mic"`
	OpenTime    string   `yaml:"open_time"`  // HH:MM, market local
	CloseTime   string   `yaml:"close_time"` // HH:MM, market local
	TradingDays []string `yaml:"trading_days"`
	Holidays    []string `yaml:"holidays"` // YYYY-MM-DD
}
