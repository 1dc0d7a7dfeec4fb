package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/amoylab/sessionkv/pkg/helper"
	"github.com/amoylab/sessionkv/pkg/trace"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// SessionKVConfig represents the top level configuration of the sessionkv binary
	SessionKVConfig struct {
		Port            int               `yaml:"port" toml:"port"`
		PID             string            `yaml:"pid" toml:"pid"`
		ShutdownTimeout time.Duration     `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
		Logger          LoggerConfig      `yaml:"logger" toml:"logger"`
		Store           StoreConfig       `yaml:"store" toml:"store"`
		Session         SessionConfig     `yaml:"session" toml:"session"`
		OutputCache     OutputCacheConfig `yaml:"output_cache" toml:"output_cache"`
		Metrics         MetricsConfig     `yaml:"metrics" toml:"metrics"`
		Tracing         trace.Config      `yaml:"tracing" toml:"tracing"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level" toml:"level"`             // debug, info, warn, error
		Format     string `yaml:"format" toml:"format"`           // json, console
		Output     string `yaml:"output" toml:"output"`           // stdout, file
		FilePath   string `yaml:"file_path" toml:"file_path"`     // path to log file when output is file
		MaxSize    int    `yaml:"max_size" toml:"max_size"`       // max size of log file in MB
		MaxBackups int    `yaml:"max_backups" toml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age" toml:"max_age"`         // max age of backup files in days
		Compress   bool   `yaml:"compress" toml:"compress"`       // whether to compress backup files
		Color      bool   `yaml:"color" toml:"color"`             // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace" toml:"stacktrace"`   // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone" toml:"time_zone"`     // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format" toml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}

	// MetricsConfig represents the prometheus metrics configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled" toml:"enabled"`
		Namespace string    `yaml:"namespace" toml:"namespace"`
		Path      string    `yaml:"path" toml:"path"`
		Buckets   []float64 `yaml:"buckets" toml:"buckets"`
	}
)

// LoadConfig loads configuration from a YAML or TOML file with environment variable support
func LoadConfig(filename string) (*SessionKVConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg SessionKVConfig
	switch strings.ToLower(filepath.Ext(cfgPath)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, err
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, cfgPath, err
		}
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

// SetDefaults fills zero values with their defaults
func (c *SessionKVConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 5235
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "sessionkv"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "sessionkv"
	}
	c.Store.SetDefaults()
	c.Session.SetDefaults()
	c.OutputCache.SetDefaults()
}

// resolveEnv replaces environment variable placeholders in the config content
func resolveEnv(content []byte) []byte {
	regex := regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

	return regex.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := regex.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
