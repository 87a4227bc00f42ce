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
	"gopkg.in/yaml.v3"

	"github.com/i474232898/atmostream/internal/forecast"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ATMOSTREAM_"

type AppConfig struct {
	Stream  StreamConfig  `yaml:"stream"`
	HTTP    HTTPConfig    `yaml:"http"`
	API     APIConfig     `yaml:"api"`
	Nowcast NowcastConfig `yaml:"nowcast"`
	Store   StoreConfig   `yaml:"store"`
	Convert ConvertConfig `yaml:"convert"`
	Archive ArchiveConfig `yaml:"archive"`
}

// StreamConfig selects the model to stream and the session options.
type StreamConfig struct {
	Source                string        `yaml:"source"`
	Model                 string        `yaml:"model"`
	OutputRoot            string        `yaml:"outputRoot"`
	StartDay              string        `yaml:"startDay"`
	StartCycle            string        `yaml:"startCycle"`
	Variables             []string      `yaml:"variables"`
	PollInterval          time.Duration `yaml:"pollInterval"`
	ConvertOnCompletion   bool          `yaml:"convertOnCompletion"`
	DeleteRawAfterConvert bool          `yaml:"deleteRawAfterConvert"`
	VerifyOnStart         bool          `yaml:"verifyOnStart"`
	LoggingEnabled        bool          `yaml:"loggingEnabled"`
}

// HTTPConfig controls outbound catalog and download requests.
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"maxRetries"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
}

// APIConfig controls the status API and metrics listeners. An empty
// address disables the listener.
type APIConfig struct {
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metricsAddress"`
}

// NowcastConfig lists the models whose nowcast is refreshed periodically.
type NowcastConfig struct {
	Models          []string      `yaml:"models"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// StoreConfig bounds the in-memory status history.
type StoreConfig struct {
	MaxHistory int           `yaml:"maxHistory"` // 0 = unlimited
	MaxAge     time.Duration `yaml:"maxAge"`     // 0 = unlimited
}

// ConvertConfig is the external converter command and its arguments.
type ConvertConfig struct {
	Command []string `yaml:"command"`
}

// ArchiveConfig enables the S3 archiver when Bucket is set.
type ArchiveConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *AppConfig {
	return &AppConfig{
		Stream: StreamConfig{
			OutputRoot:            "data",
			PollInterval:          time.Minute,
			DeleteRawAfterConvert: true,
			VerifyOnStart:         true,
			LoggingEnabled:        true,
		},
		HTTP: HTTPConfig{
			Timeout:         60 * time.Second,
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		API: APIConfig{
			Address:        ":8080",
			MetricsAddress: ":9090",
		},
		Nowcast: NowcastConfig{
			RefreshInterval: 15 * time.Minute,
		},
		Store: StoreConfig{
			MaxHistory: 1000,
			MaxAge:     24 * time.Hour,
		},
	}
}

// Load reads configuration from an optional YAML file, then a .env file,
// then ATMOSTREAM_* environment variables. Later sources win. An empty
// path falls back to ATMOSTREAM_CONFIG.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func hydrateFromFile(cfg *AppConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *AppConfig) error {
	s := &cfg.Stream
	s.Source = getenvDefault("SOURCE", s.Source)
	s.Model = getenvDefault("MODEL", s.Model)
	s.OutputRoot = getenvDefault("OUTPUT_ROOT", s.OutputRoot)
	s.StartDay = getenvDefault("START_DAY", s.StartDay)
	s.StartCycle = getenvDefault("START_CYCLE", s.StartCycle)
	s.Variables = getenvList("VARIABLES", s.Variables)
	s.ConvertOnCompletion = getenvBool("CONVERT_ON_COMPLETION", s.ConvertOnCompletion)
	s.DeleteRawAfterConvert = getenvBool("DELETE_RAW_AFTER_CONVERT", s.DeleteRawAfterConvert)
	s.VerifyOnStart = getenvBool("VERIFY_ON_START", s.VerifyOnStart)
	s.LoggingEnabled = getenvBool("LOGGING_ENABLED", s.LoggingEnabled)

	var err error
	if s.PollInterval, err = getenvDuration("POLL_INTERVAL", s.PollInterval); err != nil {
		return err
	}
	if cfg.HTTP.Timeout, err = getenvDuration("HTTP_TIMEOUT", cfg.HTTP.Timeout); err != nil {
		return err
	}
	cfg.HTTP.MaxRetries = getenvInt("HTTP_MAX_RETRIES", cfg.HTTP.MaxRetries)
	if cfg.Nowcast.RefreshInterval, err = getenvDuration("NOWCAST_INTERVAL", cfg.Nowcast.RefreshInterval); err != nil {
		return err
	}
	cfg.Nowcast.Models = getenvList("NOWCAST_MODELS", cfg.Nowcast.Models)

	cfg.API.Address = getenvDefault("API_ADDRESS", cfg.API.Address)
	cfg.API.MetricsAddress = getenvDefault("METRICS_ADDRESS", cfg.API.MetricsAddress)

	cfg.Store.MaxHistory = getenvInt("STORE_MAX_HISTORY", cfg.Store.MaxHistory)
	if cfg.Store.MaxAge, err = getenvDuration("STORE_MAX_AGE", cfg.Store.MaxAge); err != nil {
		return err
	}

	if v := os.Getenv(EnvPrefix + "CONVERT_COMMAND"); v != "" {
		cfg.Convert.Command = strings.Fields(v)
	}

	a := &cfg.Archive
	a.Bucket = getenvDefault("ARCHIVE_BUCKET", a.Bucket)
	a.Prefix = getenvDefault("ARCHIVE_PREFIX", a.Prefix)
	a.Region = getenvDefault("ARCHIVE_REGION", a.Region)
	a.Endpoint = getenvDefault("ARCHIVE_ENDPOINT", a.Endpoint)
	a.AccessKeyID = getenvDefault("ARCHIVE_ACCESS_KEY_ID", a.AccessKeyID)
	a.SecretAccessKey = getenvDefault("ARCHIVE_SECRET_ACCESS_KEY", a.SecretAccessKey)
	return nil
}

// ResolveModel returns the registered model named by the stream section.
// A configured source must agree with the model's source.
func (c *AppConfig) ResolveModel() (forecast.Model, error) {
	if c.Stream.Model == "" {
		return forecast.Model{}, &forecast.ConfigurationError{Field: "model", Message: "model is required"}
	}
	model, err := forecast.LookupModel(c.Stream.Model)
	if err != nil {
		return forecast.Model{}, &forecast.ConfigurationError{Field: "model", Message: c.Stream.Model, Cause: err}
	}
	if c.Stream.Source != "" && !strings.EqualFold(c.Stream.Source, string(model.Source)) {
		return forecast.Model{}, &forecast.ConfigurationError{
			Field:   "source",
			Message: fmt.Sprintf("model %s is served by %s, not %s", model.Name, model.Source, c.Stream.Source),
		}
	}
	return model, nil
}

// StreamOptions returns the per-session options. Without configured
// variables every variable the model supports is streamed.
func (c *AppConfig) StreamOptions(model forecast.Model) forecast.StreamConfig {
	vars := c.Stream.Variables
	if len(vars) == 0 {
		vars = model.Variables
	}
	return forecast.StreamConfig{
		Variables:             vars,
		PollInterval:          c.Stream.PollInterval,
		ConvertOnCompletion:   c.Stream.ConvertOnCompletion,
		DeleteRawAfterConvert: c.Stream.DeleteRawAfterConvert,
		VerifyOnStart:         c.Stream.VerifyOnStart,
		LoggingEnabled:        c.Stream.LoggingEnabled,
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	return d, nil
}

// getenvList splits a comma separated value, dropping empty items.
func getenvList(key string, def []string) []string {
	v := os.Getenv(EnvPrefix + key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
