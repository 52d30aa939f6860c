package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
	"github.com/subosito/gotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	defaultEnvFile  = ".env"
	configPathEnv   = "SENTIMENT_PIPELINE_CONFIG"
	envFileEnv      = "SENTIMENT_PIPELINE_ENV_FILE"
	databaseDSNEnv  = "DATABASE_DSN"
	scorerAPIKeyEnv = "SCORER_API_KEY"
	scorerURLEnv    = "SCORER_ENDPOINT"
	redisURLEnv     = "REDIS_URL"
	logLevelEnv     = "LOG_LEVEL"
	httpAddrEnv     = "HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Lock      LockConfig      `yaml:"lock"`
	HTTP      HTTPConfig      `yaml:"http"`
	Sentiment SentimentConfig `yaml:"sentiment"`
	Sources   []SourceConfig  `yaml:"sources" validate:"dive"`
}

// LoggingConfig selects level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig picks the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres memory"`
	DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
}

// ScorerConfig describes the sentiment service integration.
type ScorerConfig struct {
	Kind              string        `yaml:"kind" validate:"oneof=http vader"`
	Endpoint          string        `yaml:"endpoint" validate:"required_if=Kind http"`
	APIKey            string        `yaml:"apiKey"`
	APIKeyHeader      string        `yaml:"apiKeyHeader"`
	Language          string        `yaml:"language" validate:"required"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" validate:"gte=0"`
}

// PipelineConfig bounds a scoring cycle.
type PipelineConfig struct {
	MaxBatchItems      int  `yaml:"maxBatchItems" validate:"min=1,max=1000"`
	MaxCharacters      int  `yaml:"maxCharacters" validate:"min=1,max=5000"`
	MaxBatchesPerCycle int  `yaml:"maxBatchesPerCycle" validate:"min=1"`
	DrainLimit         int  `yaml:"drainLimit" validate:"gte=0"`
	DefaultPriority    *int `yaml:"defaultPriority"`
}

// SchedulerConfig defines when ingestion and scoring run.
type SchedulerConfig struct {
	IngestCron  string         `yaml:"ingestCron" validate:"omitempty,cron"`
	ScoringCron string         `yaml:"scoringCron" validate:"omitempty,cron"`
	Timezone    string         `yaml:"timezone"`
	location    *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LockConfig selects the run-lock backend.
type LockConfig struct {
	Kind     string        `yaml:"kind" validate:"oneof=local redis"`
	RedisURL string        `yaml:"redisUrl" validate:"required_if=Kind redis"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// HTTPConfig configures the admin server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SentimentConfig carries the flag threshold table.
type SentimentConfig struct {
	Flags []FlagConfig `yaml:"flags" validate:"dive"`
}

// FlagConfig assigns Flag to scores at or above Min.
type FlagConfig struct {
	Min  int    `yaml:"min" validate:"gte=0,lte=100"`
	Flag string `yaml:"flag" validate:"oneof=very_negative negative neutral positive very_positive"`
}

// SourceConfig describes a single upstream feed with its provider strategy.
type SourceConfig struct {
	Name     string            `yaml:"name" validate:"required"`
	Provider string            `yaml:"provider" validate:"required"`
	URL      string            `yaml:"url" validate:"required,url"`
	Kind     string            `yaml:"kind" validate:"omitempty,oneof=post tweet mention comment"`
	Language string            `yaml:"language"`
	Options  map[string]string `yaml:"options"`
}

// Load reads the .env file and YAML configuration (both optional), applies
// environment overrides and validates the result.
func Load() (Config, error) {
	envFile := os.Getenv(envFileEnv)
	if envFile == "" {
		envFile = defaultEnvFile
	}
	if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
	}

	cfg := defaultConfig()
	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Validate checks struct constraints and cron expressions.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		return gronx.IsValid(fl.Field().String())
	}); err != nil {
		return err
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[int]struct{}, len(c.Sentiment.Flags))
	for _, f := range c.Sentiment.Flags {
		if _, dup := seen[f.Min]; dup {
			return fmt.Errorf("config: duplicate flag threshold %d", f.Min)
		}
		seen[f.Min] = struct{}{}
	}

	if p := c.Pipeline.DefaultPriority; p != nil && *p < 0 {
		return fmt.Errorf("config: pipeline.defaultPriority must not be negative, got %d", *p)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(scorerAPIKeyEnv); v != "" {
		c.Scorer.APIKey = v
	}

	if v := os.Getenv(scorerURLEnv); v != "" {
		c.Scorer.Endpoint = v
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Lock.RedisURL = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("config: unknown timezone %s: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Scorer.Kind != "" {
		base.Scorer.Kind = override.Scorer.Kind
	}
	if override.Scorer.Endpoint != "" {
		base.Scorer.Endpoint = override.Scorer.Endpoint
	}
	if override.Scorer.APIKey != "" {
		base.Scorer.APIKey = override.Scorer.APIKey
	}
	if override.Scorer.APIKeyHeader != "" {
		base.Scorer.APIKeyHeader = override.Scorer.APIKeyHeader
	}
	if override.Scorer.Language != "" {
		base.Scorer.Language = override.Scorer.Language
	}
	if override.Scorer.Timeout > 0 {
		base.Scorer.Timeout = override.Scorer.Timeout
	}
	if override.Scorer.RequestsPerSecond > 0 {
		base.Scorer.RequestsPerSecond = override.Scorer.RequestsPerSecond
	}

	if override.Pipeline.MaxBatchItems != 0 {
		base.Pipeline.MaxBatchItems = override.Pipeline.MaxBatchItems
	}
	if override.Pipeline.MaxCharacters != 0 {
		base.Pipeline.MaxCharacters = override.Pipeline.MaxCharacters
	}
	if override.Pipeline.MaxBatchesPerCycle != 0 {
		base.Pipeline.MaxBatchesPerCycle = override.Pipeline.MaxBatchesPerCycle
	}
	if override.Pipeline.DrainLimit != 0 {
		base.Pipeline.DrainLimit = override.Pipeline.DrainLimit
	}
	if override.Pipeline.DefaultPriority != nil {
		base.Pipeline.DefaultPriority = override.Pipeline.DefaultPriority
	}

	if override.Scheduler.IngestCron != "" {
		base.Scheduler.IngestCron = override.Scheduler.IngestCron
	}
	if override.Scheduler.ScoringCron != "" {
		base.Scheduler.ScoringCron = override.Scheduler.ScoringCron
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Lock.Kind != "" {
		base.Lock.Kind = override.Lock.Kind
	}
	if override.Lock.RedisURL != "" {
		base.Lock.RedisURL = override.Lock.RedisURL
	}
	if override.Lock.Key != "" {
		base.Lock.Key = override.Lock.Key
	}
	if override.Lock.TTL > 0 {
		base.Lock.TTL = override.Lock.TTL
	}

	if override.HTTP.Addr != "" {
		base.HTTP.Addr = override.HTTP.Addr
	}

	if len(override.Sentiment.Flags) > 0 {
		base.Sentiment.Flags = override.Sentiment.Flags
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Driver: "memory"},
		Scorer: ScorerConfig{
			Kind:         "vader",
			APIKeyHeader: "Ocp-Apim-Subscription-Key",
			Language:     "en",
			Timeout:      30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxBatchItems:      1000,
			MaxCharacters:      5000,
			MaxBatchesPerCycle: 10,
			DefaultPriority:    ptr(5),
		},
		Scheduler: SchedulerConfig{
			IngestCron:  "*/15 * * * *",
			ScoringCron: "*/5 * * * *",
			Timezone:    defaultTimezone,
			location:    tz,
		},
		Lock: LockConfig{Kind: "local", Key: "sentiment-pipeline:cycle", TTL: 10 * time.Minute},
		HTTP: HTTPConfig{Addr: ":8080"},
	}
}

func ptr[T any](v T) *T {
	return &v
}
