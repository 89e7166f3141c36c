package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"newsdesk/pkg/errors"
)

type Config struct {
	App           AppConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
	Pipeline      PipelineConfig
	Council       CouncilConfig
	Cache         CacheConfig
	Preferences   PreferenceConfig
	Workers       WorkerConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"newsdesk"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

// RedisConfig is optional: with Enabled=false profiles and influence
// snapshots live in memory only.
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled         bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers         []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	SelectionTopic  string   `envconfig:"KAFKA_SELECTION_TOPIC" default:"newsdesk.selection.delivered"`
	PreferenceTopic string   `envconfig:"KAFKA_PREFERENCE_TOPIC" default:"newsdesk.preference.changed"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR" default:""`
}

// PipelineConfig bounds a single request
type PipelineConfig struct {
	RequestTimeout time.Duration `envconfig:"PIPELINE_REQUEST_TIMEOUT" default:"30s"`
	AgentTimeout   time.Duration `envconfig:"PIPELINE_AGENT_TIMEOUT" default:"5s"`
	FanoutWorkers  int           `envconfig:"PIPELINE_FANOUT_WORKERS" default:"4"`
	AgentRateLimit float64       `envconfig:"PIPELINE_AGENT_RPS" default:"0"` // 0 disables the limiter
	AgentRateBurst int           `envconfig:"PIPELINE_AGENT_BURST" default:"4"`
	TopK           int           `envconfig:"PIPELINE_TOP_K" default:"5"`
	MaxRequested   int           `envconfig:"PIPELINE_MAX_REQUESTED" default:"50"`
	TuningFile     string        `envconfig:"PIPELINE_TUNING_FILE"`
}

type CouncilConfig struct {
	MinAggregate    float64 `envconfig:"COUNCIL_MIN_AGGREGATE" default:"0.35"`
	ReserveMin      float64 `envconfig:"COUNCIL_RESERVE_MIN" default:"0.20"`
	TieEpsilon      float64 `envconfig:"COUNCIL_TIE_EPSILON" default:"0.02"`
	DropPenalty     float64 `envconfig:"COUNCIL_DROP_PENALTY" default:"0.5"`
	MaxClusterShare float64 `envconfig:"COUNCIL_MAX_CLUSTER_SHARE" default:"0.4"`
	MaxSourceShare  float64 `envconfig:"COUNCIL_MAX_SOURCE_SHARE" default:"0.5"`
	ShortfallPolicy string  `envconfig:"COUNCIL_SHORTFALL_POLICY" default:"strict"` // strict | pad
}

type CacheConfig struct {
	TTL        time.Duration `envconfig:"CACHE_TTL" default:"3h"`
	MaxPerUser int           `envconfig:"CACHE_MAX_PER_USER" default:"8"`
	MaxTotal   int           `envconfig:"CACHE_MAX_TOTAL" default:"10000"`
}

type PreferenceConfig struct {
	MaxRetries int `envconfig:"PREFERENCES_MAX_RETRIES" default:"5"`
}

// WorkerConfig contains intervals for background maintenance
type WorkerConfig struct {
	CacheSweepInterval        time.Duration `envconfig:"WORKER_CACHE_SWEEP_INTERVAL" default:"5m"`
	InfluenceAdjustInterval   time.Duration `envconfig:"WORKER_INFLUENCE_ADJUST_INTERVAL" default:"1m"`
	CredibilityAdjustInterval time.Duration `envconfig:"WORKER_CREDIBILITY_ADJUST_INTERVAL" default:"1m"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	var errs errors.MultiError

	if c.Pipeline.RequestTimeout <= 0 {
		errs.Add(errors.NewValidationError("PIPELINE_REQUEST_TIMEOUT", "must be positive", c.Pipeline.RequestTimeout))
	}
	if c.Pipeline.AgentTimeout <= 0 || c.Pipeline.AgentTimeout > c.Pipeline.RequestTimeout {
		errs.Add(errors.NewValidationError("PIPELINE_AGENT_TIMEOUT", "must be positive and not exceed the request timeout", c.Pipeline.AgentTimeout))
	}
	if c.Pipeline.FanoutWorkers < 1 {
		errs.Add(errors.NewValidationError("PIPELINE_FANOUT_WORKERS", "must be at least 1", c.Pipeline.FanoutWorkers))
	}
	if c.Pipeline.TopK < 1 {
		errs.Add(errors.NewValidationError("PIPELINE_TOP_K", "must be at least 1", c.Pipeline.TopK))
	}
	if c.Pipeline.MaxRequested < 1 {
		errs.Add(errors.NewValidationError("PIPELINE_MAX_REQUESTED", "must be at least 1", c.Pipeline.MaxRequested))
	}
	if c.Council.ReserveMin > c.Council.MinAggregate {
		errs.Add(errors.NewValidationError("COUNCIL_RESERVE_MIN", "must not exceed COUNCIL_MIN_AGGREGATE", c.Council.ReserveMin))
	}
	if !inShareRange(c.Council.MaxClusterShare) {
		errs.Add(errors.NewValidationError("COUNCIL_MAX_CLUSTER_SHARE", "must be in (0,1]", c.Council.MaxClusterShare))
	}
	if !inShareRange(c.Council.MaxSourceShare) {
		errs.Add(errors.NewValidationError("COUNCIL_MAX_SOURCE_SHARE", "must be in (0,1]", c.Council.MaxSourceShare))
	}
	if c.Council.ShortfallPolicy != "strict" && c.Council.ShortfallPolicy != "pad" {
		errs.Add(errors.NewValidationError("COUNCIL_SHORTFALL_POLICY", "must be strict or pad", c.Council.ShortfallPolicy))
	}
	if c.Cache.TTL <= 0 {
		errs.Add(errors.NewValidationError("CACHE_TTL", "must be positive", c.Cache.TTL))
	}
	if c.Cache.MaxPerUser < 1 || c.Cache.MaxTotal < c.Cache.MaxPerUser {
		errs.Add(errors.NewValidationError("CACHE_MAX_TOTAL", "bounds must satisfy 1 <= per-user <= total", c.Cache.MaxTotal))
	}
	if c.Preferences.MaxRetries < 1 {
		errs.Add(errors.NewValidationError("PREFERENCES_MAX_RETRIES", "must be at least 1", c.Preferences.MaxRetries))
	}

	return errors.Wrap(errs.ToError(), "invalid config")
}

func inShareRange(v float64) bool {
	return v > 0 && v <= 1
}
