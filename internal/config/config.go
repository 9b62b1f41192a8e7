package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Business   string           `yaml:"business" mapstructure:"business"`
	Site       string           `yaml:"site" mapstructure:"site"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	GSC        GSCConfig        `yaml:"gsc" mapstructure:"gsc"`
	Budget     BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Detect     DetectConfig     `yaml:"detect" mapstructure:"detect"`
	Inspect    InspectConfig    `yaml:"inspect" mapstructure:"inspect"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Metrics    MetricsConfig    `yaml:"metrics" mapstructure:"metrics"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// GSCConfig holds Search Console API credentials and endpoints.
type GSCConfig struct {
	ClientID       string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret   string `yaml:"client_secret" mapstructure:"client_secret"`
	RefreshToken   string `yaml:"refresh_token" mapstructure:"refresh_token"`
	AccessToken    string `yaml:"access_token" mapstructure:"access_token"`
	InspectBaseURL string `yaml:"inspect_base_url" mapstructure:"inspect_base_url"`
	WebmastersURL  string `yaml:"webmasters_base_url" mapstructure:"webmasters_base_url"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	LanguageCode   string `yaml:"language_code" mapstructure:"language_code"`
}

// BudgetConfig caps external diagnostic calls per run.
type BudgetConfig struct {
	Total           int `yaml:"total" mapstructure:"total"`
	TrafficDrop     int `yaml:"traffic_drop" mapstructure:"traffic_drop"`
	FixVerification int `yaml:"fix_verification" mapstructure:"fix_verification"`
	NewURL          int `yaml:"new_url" mapstructure:"new_url"`
	Rotation        int `yaml:"rotation" mapstructure:"rotation"`
}

// DetectConfig tunes the anomaly detectors.
type DetectConfig struct {
	MinImpressions      float64 `yaml:"min_impressions" mapstructure:"min_impressions"`
	DropThreshold       float64 `yaml:"drop_threshold" mapstructure:"drop_threshold"`
	HistoryDays         int     `yaml:"history_days" mapstructure:"history_days"`
	MinHistoryDays      int     `yaml:"min_history_days" mapstructure:"min_history_days"`
	NewURLWindowDays    int     `yaml:"new_url_window_days" mapstructure:"new_url_window_days"`
	RecheckDays         int     `yaml:"recheck_days" mapstructure:"recheck_days"`
	FixWindowDays       int     `yaml:"fix_window_days" mapstructure:"fix_window_days"`
	FixPriority         int     `yaml:"fix_priority" mapstructure:"fix_priority"`
	RotationTopN        int     `yaml:"rotation_top_n" mapstructure:"rotation_top_n"`
	RotationWindowDays  int     `yaml:"rotation_window_days" mapstructure:"rotation_window_days"`
	RotationDivisor     float64 `yaml:"rotation_divisor" mapstructure:"rotation_divisor"`
	NewURLPriorityFloor int     `yaml:"new_url_priority_floor" mapstructure:"new_url_priority_floor"`
}

// InspectConfig configures the URL inspector.
type InspectConfig struct {
	DelayMs        int  `yaml:"delay_ms" mapstructure:"delay_ms"`
	SkipInspection bool `yaml:"skip_inspection" mapstructure:"skip_inspection"`
}

// IngestConfig configures the analytics refresh stage. The Retry* fields
// apply to search analytics queries only; URL inspections are never retried.
type IngestConfig struct {
	LookbackDays    int     `yaml:"lookback_days" mapstructure:"lookback_days"`
	LagDays         int     `yaml:"lag_days" mapstructure:"lag_days"`
	MaxPages        int     `yaml:"max_pages" mapstructure:"max_pages"`
	SkipRefresh     bool    `yaml:"skip_refresh" mapstructure:"skip_refresh"`
	MaxConcurrency  int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	RetryAttempts   int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs  int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxBackoff int     `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`
	RetryMultiplier float64 `yaml:"retry_multiplier" mapstructure:"retry_multiplier"`
	RetryJitter     float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
}

// MonitoringConfig configures run-outcome alerting.
type MonitoringConfig struct {
	WebhookURL          string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ErrorRateThreshold  float64 `yaml:"error_rate_threshold" mapstructure:"error_rate_threshold"`
	MinInspectedForRate int     `yaml:"min_inspected_for_rate" mapstructure:"min_inspected_for_rate"`
	AlertOnCritical     bool    `yaml:"alert_on_critical" mapstructure:"alert_on_critical"`
	CheckIntervalSecs   int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackRuns        int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	FailureStreak       int     `yaml:"failure_streak" mapstructure:"failure_streak"`
	StaleAfterHours     int     `yaml:"stale_after_hours" mapstructure:"stale_after_hours"`
}

// MetricsConfig configures Prometheus metrics export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" mapstructure:"pushgateway_url"`
	Job            string `yaml:"job" mapstructure:"job"`
}

// TemporalConfig configures recurring schedules.
type TemporalConfig struct {
	HostPort   string `yaml:"host_port" mapstructure:"host_port"`
	Namespace  string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue  string `yaml:"task_queue" mapstructure:"task_queue"`
	Cron       string `yaml:"cron" mapstructure:"cron"`
	TimeoutMin int    `yaml:"timeout_minutes" mapstructure:"timeout_minutes"`
}

// ServerConfig configures the read-only HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SEOMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("business", "")
	v.SetDefault("site", "")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("gsc.client_id", "")
	v.SetDefault("gsc.client_secret", "")
	v.SetDefault("gsc.refresh_token", "")
	v.SetDefault("gsc.access_token", "")
	v.SetDefault("gsc.inspect_base_url", "https://searchconsole.googleapis.com/v1")
	v.SetDefault("gsc.webmasters_base_url", "https://www.googleapis.com/webmasters/v3")
	v.SetDefault("gsc.timeout_secs", 30)
	v.SetDefault("gsc.language_code", "en-US")
	v.SetDefault("budget.total", 500)
	v.SetDefault("budget.traffic_drop", 200)
	v.SetDefault("budget.fix_verification", 100)
	v.SetDefault("budget.new_url", 100)
	v.SetDefault("budget.rotation", 100)
	v.SetDefault("detect.min_impressions", 10)
	v.SetDefault("detect.drop_threshold", 50)
	v.SetDefault("detect.history_days", 8)
	v.SetDefault("detect.min_history_days", 3)
	v.SetDefault("detect.new_url_window_days", 2)
	v.SetDefault("detect.recheck_days", 7)
	v.SetDefault("detect.fix_window_days", 7)
	v.SetDefault("detect.fix_priority", 100)
	v.SetDefault("detect.rotation_top_n", 100)
	v.SetDefault("detect.rotation_window_days", 30)
	v.SetDefault("detect.rotation_divisor", 100)
	v.SetDefault("detect.new_url_priority_floor", 1)
	v.SetDefault("inspect.delay_ms", 500)
	v.SetDefault("inspect.skip_inspection", false)
	v.SetDefault("ingest.lookback_days", 3)
	v.SetDefault("ingest.lag_days", 2)
	v.SetDefault("ingest.max_pages", 20)
	v.SetDefault("ingest.skip_refresh", false)
	v.SetDefault("ingest.max_concurrency", 3)
	v.SetDefault("ingest.retry_attempts", 2)
	v.SetDefault("ingest.retry_backoff_ms", 1000)
	v.SetDefault("ingest.retry_max_backoff_ms", 10000)
	v.SetDefault("ingest.retry_multiplier", 2.0)
	v.SetDefault("ingest.retry_jitter", 0.25)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.error_rate_threshold", 0.2)
	v.SetDefault("monitoring.min_inspected_for_rate", 10)
	v.SetDefault("monitoring.alert_on_critical", true)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_runs", 10)
	v.SetDefault("monitoring.failure_streak", 2)
	v.SetDefault("monitoring.stale_after_hours", 36)
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "seo_monitor_sync")
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "seo-monitor")
	v.SetDefault("temporal.cron", "0 6 * * *")
	v.SetDefault("temporal.timeout_minutes", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a sync run cannot proceed without.
func (c *Config) Validate() error {
	if c.Business == "" {
		return eris.New("config: business is required (SEOMON_BUSINESS)")
	}
	if c.Budget.Total <= 0 {
		return eris.Errorf("config: budget.total must be positive, got %d", c.Budget.Total)
	}
	for name, v := range map[string]int{
		"traffic_drop":     c.Budget.TrafficDrop,
		"fix_verification": c.Budget.FixVerification,
		"new_url":          c.Budget.NewURL,
		"rotation":         c.Budget.Rotation,
	} {
		if v < 0 {
			return eris.Errorf("config: budget.%s must not be negative, got %d", name, v)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
