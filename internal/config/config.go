package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main toolgate configuration
type Config struct {
	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tool registry
	Registry RegistryConfig `json:"registry" mapstructure:"registry"`

	// Dispatcher
	Dispatch DispatchConfig `json:"dispatch" mapstructure:"dispatch"`

	// Observability
	Audit   AuditConfig   `json:"audit" mapstructure:"audit"`
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Sample tool dependencies
	Store StoreConfig `json:"store" mapstructure:"store"`
	AI    AIConfig    `json:"ai" mapstructure:"ai"`

	// HTTP transport
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Static caller table for the HTTP transport
	Users []UserConfig `json:"users" mapstructure:"users"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// RegistryConfig holds tool registry settings
type RegistryConfig struct {
	ShortNamePolicy string `json:"short_name_policy" mapstructure:"short_name_policy"` // last_wins, first_wins, reject
}

// DispatchConfig holds dispatcher settings
type DispatchConfig struct {
	ValidateArguments bool `json:"validate_arguments" mapstructure:"validate_arguments"`
	BatchConcurrency  int  `json:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	File string `json:"file" mapstructure:"file"` // empty writes to stderr
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// StoreConfig holds the SQLite data store settings
type StoreConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Provider  string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey    string `json:"api_key" mapstructure:"api_key"`
	Model     string `json:"model" mapstructure:"model"`
	MaxTokens int    `json:"max_tokens" mapstructure:"max_tokens"`
	CacheSize int    `json:"cache_size" mapstructure:"cache_size"` // 0 disables the estimate cache
	CacheTTL  int    `json:"cache_ttl" mapstructure:"cache_ttl"`   // seconds
}

// HTTPConfig holds the HTTP server configuration
type HTTPConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ReadTimeout     int    `json:"read_timeout" mapstructure:"read_timeout"`         // seconds
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
	// RateLimitPerMinute caps calls per caller; 0 disables limiting
	RateLimitPerMinute int `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// UserConfig maps a bearer token to an authenticated caller
type UserConfig struct {
	Token string `json:"token" mapstructure:"token"`
	ID    string `json:"id" mapstructure:"id"`
	Role  string `json:"role" mapstructure:"role"` // demo, user, admin
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Registry: RegistryConfig{
			ShortNamePolicy: "last_wins",
		},
		Dispatch: DispatchConfig{
			ValidateArguments: true,
			BatchConcurrency:  8,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "toolgate",
		},
		AI: AIConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 1024,
			CacheSize: 256,
			CacheTTL:  300,
		},
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     30,
			ShutdownTimeout: 10,

			RateLimitPerMinute: 120,
		},
		Users: []UserConfig{},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.AI.APIKey != "" {
		masked.AI.APIKey = "***"
	}
	masked.Users = make([]UserConfig, len(c.Users))
	for i, u := range c.Users {
		u.Token = "***"
		masked.Users[i] = u
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errs[0])
}
