package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/confref/internal/logging"
	"github.com/eugenenazirov/confref/internal/resolver"
)

const (
	defaultPort             = "8080"
	defaultRateLimitRPS     = 25.0
	defaultRateLimitBurst   = 50
	defaultMaxDocumentBytes = 1 << 20
	defaultLogLevel         = "info"
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > Environment variables > YAML config > Defaults
type Config struct {
	Port                 string
	Documents            []string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	EnableMetrics        bool
	RateLimitRPS         float64
	RateLimitBurst       int
	MaxDocumentBytes     int64
	OpenDelimiter        string
	CloseDelimiter       string
	LogLevel             string
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string         `yaml:"port"`
	Documents            []string       `yaml:"documents"`
	ShutdownGracePeriod  string         `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string         `yaml:"read_header_timeout"`
	WriteTimeout         string         `yaml:"write_timeout"`
	IdleTimeout          string         `yaml:"idle_timeout"`
	EnableRequestLogging *bool          `yaml:"enable_request_logging"`
	EnableMetrics        *bool          `yaml:"enable_metrics"`
	MaxDocumentBytes     int64          `yaml:"max_document_bytes"`
	LogLevel             string         `yaml:"log_level"`
	RateLimit            yamlRateLimit  `yaml:"rate_limit"`
	Delimiters           yamlDelimiters `yaml:"delimiters"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

// yamlDelimiters represents the placeholder delimiter section in YAML.
type yamlDelimiters struct {
	Open  string `yaml:"open"`
	Close string `yaml:"close"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	Port           *string
	Documents      []string
	RateLimitRPS   *float64
	RateLimitBurst *int
	OpenDelimiter  *string
	CloseDelimiter *string
	LogLevel       *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > Environment variables > YAML config > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		applyYAMLConfig(&cfg, yamlCfg, filepath.Dir(overrides.ConfigFile))
	}

	applyEnvConfig(&cfg)

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		EnableMetrics:        true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		MaxDocumentBytes:     defaultMaxDocumentBytes,
		OpenDelimiter:        resolver.DefaultOpenDelimiter,
		CloseDelimiter:       resolver.DefaultCloseDelimiter,
		LogLevel:             defaultLogLevel,
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct. Relative
// document paths are taken relative to the configuration file.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig, baseDir string) {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	if len(yamlCfg.Documents) > 0 {
		docs := make([]string, 0, len(yamlCfg.Documents))
		for _, doc := range yamlCfg.Documents {
			if !filepath.IsAbs(doc) {
				doc = filepath.Join(baseDir, doc)
			}
			docs = append(docs, doc)
		}
		cfg.Documents = docs
	}

	applyDuration(&cfg.ShutdownGracePeriod, yamlCfg.ShutdownGracePeriod)
	applyDuration(&cfg.ReadHeaderTimeout, yamlCfg.ReadHeaderTimeout)
	applyDuration(&cfg.WriteTimeout, yamlCfg.WriteTimeout)
	applyDuration(&cfg.IdleTimeout, yamlCfg.IdleTimeout)

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}

	if yamlCfg.EnableMetrics != nil {
		cfg.EnableMetrics = *yamlCfg.EnableMetrics
	}

	if yamlCfg.MaxDocumentBytes > 0 {
		cfg.MaxDocumentBytes = yamlCfg.MaxDocumentBytes
	}

	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.RateLimit.RPS != nil && *yamlCfg.RateLimit.RPS >= 0 {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}

	if yamlCfg.RateLimit.Burst != nil && *yamlCfg.RateLimit.Burst >= 0 {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	if yamlCfg.Delimiters.Open != "" {
		cfg.OpenDelimiter = yamlCfg.Delimiters.Open
	}

	if yamlCfg.Delimiters.Close != "" {
		cfg.CloseDelimiter = yamlCfg.Delimiters.Close
	}
}

func applyDuration(dst *time.Duration, raw string) {
	if raw == "" {
		return
	}
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
	}
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.Port = port
	}

	if rawDocs := strings.TrimSpace(os.Getenv("DOCUMENTS")); rawDocs != "" {
		cfg.Documents = parseDocumentPaths(rawDocs)
	}

	if rps := strings.TrimSpace(os.Getenv("RATE_LIMIT_RPS")); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := strings.TrimSpace(os.Getenv("RATE_LIMIT_BURST")); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if enabled := strings.TrimSpace(os.Getenv("ENABLE_METRICS")); enabled != "" {
		if value, err := strconv.ParseBool(enabled); err == nil {
			cfg.EnableMetrics = value
		}
	}

	if size := strings.TrimSpace(os.Getenv("MAX_DOCUMENT_BYTES")); size != "" {
		if value, err := strconv.ParseInt(size, 10, 64); err == nil && value > 0 {
			cfg.MaxDocumentBytes = value
		}
	}

	if open := os.Getenv("PLACEHOLDER_OPEN"); open != "" {
		cfg.OpenDelimiter = open
	}

	if closeDelim := os.Getenv("PLACEHOLDER_CLOSE"); closeDelim != "" {
		cfg.CloseDelimiter = closeDelim
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if len(overrides.Documents) > 0 {
		cfg.Documents = append([]string(nil), overrides.Documents...)
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.OpenDelimiter != nil && *overrides.OpenDelimiter != "" {
		cfg.OpenDelimiter = *overrides.OpenDelimiter
	}

	if overrides.CloseDelimiter != nil && *overrides.CloseDelimiter != "" {
		cfg.CloseDelimiter = *overrides.CloseDelimiter
	}

	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		cfg.LogLevel = *overrides.LogLevel
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if cfg.MaxDocumentBytes <= 0 {
		return fmt.Errorf("MAX_DOCUMENT_BYTES must be > 0")
	}
	if cfg.OpenDelimiter == "" || cfg.CloseDelimiter == "" || cfg.OpenDelimiter == cfg.CloseDelimiter {
		return fmt.Errorf("placeholder delimiters %q and %q: %w", cfg.OpenDelimiter, cfg.CloseDelimiter, resolver.ErrInvalidDelimiters)
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// parseDocumentPaths parses a comma-separated list of document paths.
func parseDocumentPaths(raw string) []string {
	parts := strings.Split(raw, ",")
	paths := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		paths = append(paths, part)
	}
	return paths
}
